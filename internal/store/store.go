// Package store declares the persistence contracts used by the mission
// engine. repo.Repo is the SQLite implementation and memory.Store the
// in-process one.
package store

import (
	"context"
	"errors"

	"crewline/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate membership")
	ErrFull      = errors.New("crew is full")
)

type MissionView interface {
	// GetMission fails with ErrNotFound when the mission is absent or soft-deleted.
	GetMission(ctx context.Context, id int64) (domain.Mission, error)
	CountCrew(ctx context.Context, missionID int64) (int, error)
}

type MissionStatus interface {
	// SetStatus updates the row matching (id, chiefID, not deleted) and
	// returns its id, or ErrNotFound when nothing matched.
	SetStatus(ctx context.Context, id, chiefID int64, status domain.Status, at string) (int64, error)
}

type Roster interface {
	IsMember(ctx context.Context, missionID, brawlerID int64) (bool, error)
	// InsertMember adds the row only while the crew is below max.
	// It returns ErrDuplicate or ErrFull instead of a driver error.
	InsertMember(ctx context.Context, m domain.Membership, max int) error
	// DeleteMember reports whether a row was removed.
	DeleteMember(ctx context.Context, missionID, brawlerID int64) (bool, error)
}

// Tx is the handle a unit of work runs against.
type Tx interface {
	MissionView
	MissionStatus
	Roster

	// LockMission is the per-mission serialization point. It must be the
	// first call of a unit of work that reads then writes mission state.
	LockMission(ctx context.Context, id int64) error
	InsertMission(ctx context.Context, m domain.Mission) (int64, error)
	UpdateMission(ctx context.Context, m domain.Mission) error
	SoftDeleteMission(ctx context.Context, id int64, at string) error
	// EnsureBrawler registers b, keeping an existing display name when b has none.
	EnsureBrawler(ctx context.Context, b domain.Brawler) error
	AppendEvent(ctx context.Context, evt domain.Event) error
}

// Store runs units of work and serves display reads outside of them.
type Store interface {
	// InTx commits iff fn returns nil and ctx is still live.
	InTx(ctx context.Context, fn func(Tx) error) error

	MissionView
	ListMissions(ctx context.Context, f domain.MissionFilter) ([]domain.Mission, error)
	ListCrew(ctx context.Context, missionID int64) ([]domain.CrewMember, error)
	ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
	// EventsAfter returns events with ids greater than cursor, oldest first.
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}
