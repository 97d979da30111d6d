package engine

import (
	"context"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/store"
)

type transition struct {
	op     string
	target domain.Status
	event  string
}

var (
	startTransition    = transition{op: "start", target: domain.StatusInProgress, event: events.MissionStarted}
	completeTransition = transition{op: "complete", target: domain.StatusCompleted, event: events.MissionCompleted}
	failTransition     = transition{op: "fail", target: domain.StatusFailed, event: events.MissionFailed}
)

// Start moves an Open or Failed mission with 1..MaxCrew crew to InProgress.
func (e Engine) Start(ctx context.Context, missionID, actorID int64) (int64, error) {
	return e.transition(ctx, startTransition, missionID, actorID)
}

// Complete moves an InProgress mission to Completed.
func (e Engine) Complete(ctx context.Context, missionID, actorID int64) (int64, error) {
	return e.transition(ctx, completeTransition, missionID, actorID)
}

// Fail moves an InProgress mission to Failed.
func (e Engine) Fail(ctx context.Context, missionID, actorID int64) (int64, error) {
	return e.transition(ctx, failTransition, missionID, actorID)
}

// transition checks, in order, the status class, the crew bounds (start
// only) and the chief; the first violation is returned.
func (e Engine) transition(ctx context.Context, t transition, missionID, actorID int64) (int64, error) {
	var confirmed int64
	err := e.observe(ctx, t.op, missionID, actorID, func(ctx context.Context) error {
		return e.Store.InTx(ctx, func(tx store.Tx) error {
			m, err := lockAndLoad(ctx, tx, t.op, missionID)
			if err != nil {
				return err
			}
			if err := ensureMissionTransition(t, m); err != nil {
				return err
			}
			crew, err := tx.CountCrew(ctx, missionID)
			if err != nil {
				return fromStore(t.op, missionID, err)
			}
			if t.target == domain.StatusInProgress {
				if err := e.ensureCrewBounds(missionID, crew); err != nil {
					return err
				}
			}
			if m.ChiefID != actorID {
				return newError(KindUnauthorized, t.op, missionID, "Only the Chief (ID: %d) can %s this mission", m.ChiefID, t.op)
			}
			id, err := tx.SetStatus(ctx, missionID, actorID, t.target, e.stamp())
			if err != nil {
				return fromStore(t.op, missionID, err)
			}
			if err := e.appendEvent(ctx, tx, t.event, missionID, actorID, events.Payload{
				"from":       m.Status,
				"to":         t.target,
				"crew_count": crew,
			}); err != nil {
				return fromStore(t.op, missionID, err)
			}
			confirmed = id
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return confirmed, nil
}

func ensureMissionTransition(t transition, m domain.Mission) error {
	if domain.CanTransition(m.Status, t.target) {
		return nil
	}
	if t.target == domain.StatusInProgress {
		return newError(KindInvalidStateTransition, t.op, m.ID, "Mission status must be Open or Failed to start (current: %s)", m.Status)
	}
	return newError(KindInvalidStateTransition, t.op, m.ID, "Mission must be InProgress to %s (current: %s)", t.op, m.Status)
}

func (e Engine) ensureCrewBounds(missionID int64, crew int) error {
	if crew < 1 {
		return newError(KindInvalidStateTransition, "start", missionID, "Mission must have at least one crew member to start")
	}
	if crew > e.MaxCrew {
		return newError(KindCapacityExceeded, "start", missionID, "Mission crew exceeds maximum limit of %d", e.MaxCrew)
	}
	return nil
}
