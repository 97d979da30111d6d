package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a mission.
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

var statuses = []Status{StatusOpen, StatusInProgress, StatusCompleted, StatusFailed}

// Statuses returns every known status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// ParseStatus accepts the canonical names and is lenient about case and
// separators ("in_progress", "inprogress").
func ParseStatus(s string) (Status, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(s)))
	for _, st := range statuses {
		if strings.ToLower(string(st)) == key {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid mission status %q", s)
}

// Valid reports whether s is one of the canonical status names.
func (s Status) Valid() bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// RosterOpen reports whether crew may join or leave a mission in status s.
func (s Status) RosterOpen() bool {
	return s == StatusOpen || s == StatusFailed
}

// Startable reports whether a mission in status s may be started.
func (s Status) Startable() bool {
	return s == StatusOpen || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress},
	StatusFailed:     {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
