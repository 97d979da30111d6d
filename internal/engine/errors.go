package engine

import (
	"errors"
	"fmt"

	"crewline/internal/store"
)

// Kind classifies an engine failure.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindUnauthorized           Kind = "unauthorized"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindCapacityExceeded       Kind = "capacity_exceeded"
	KindNotJoinable            Kind = "not_joinable"
	KindNotLeavable            Kind = "not_leavable"
	KindDuplicateMembership    Kind = "duplicate_membership"
	KindNotAMember             Kind = "not_a_member"
	KindInvalidInput           Kind = "invalid_input"
	KindPersistence            Kind = "persistence_failure"
)

// Error is returned by every engine operation that fails.
type Error struct {
	Kind      Kind
	Op        string
	MissionID int64
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "":
		return e.Reason
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels such as ErrCapacityExceeded.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Reason == "" && t.Err == nil
}

// Retryable reports whether the failure may be transient. Business-rule
// failures never are.
func (e *Error) Retryable() bool {
	return e.Kind == KindPersistence
}

var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrCapacityExceeded       = &Error{Kind: KindCapacityExceeded}
	ErrNotJoinable            = &Error{Kind: KindNotJoinable}
	ErrNotLeavable            = &Error{Kind: KindNotLeavable}
	ErrDuplicateMembership    = &Error{Kind: KindDuplicateMembership}
	ErrNotAMember             = &Error{Kind: KindNotAMember}
	ErrInvalidInput           = &Error{Kind: KindInvalidInput}
	ErrPersistence            = &Error{Kind: KindPersistence}
)

// KindOf returns the kind of err, or "" when err is nil or not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op string, missionID int64, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, MissionID: missionID, Reason: fmt.Sprintf(format, args...)}
}

// fromStore classifies a store error. Engine errors pass through untouched.
func fromStore(op string, missionID int64, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, MissionID: missionID, Reason: fmt.Sprintf("Mission %d not found", missionID), Err: err}
	default:
		return &Error{Kind: KindPersistence, Op: op, MissionID: missionID, Reason: fmt.Sprintf("%s mission %d: %v", op, missionID, err), Err: err}
	}
}
