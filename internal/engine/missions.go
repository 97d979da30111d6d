package engine

import (
	"context"
	"strings"
	"unicode/utf8"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/store"
)

const maxNameLength = 120

// MissionCreateOptions are parameters for creating a mission.
type MissionCreateOptions struct {
	Name        string
	Description string
	ChiefID     int64
	// ChiefName optionally records the chief's display name.
	ChiefName string
}

// MissionEditOptions carries the fields to change; nil leaves a field as is.
type MissionEditOptions struct {
	Name        *string
	Description *string
}

func validateName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", newError(KindInvalidInput, op, 0, "name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", newError(KindInvalidInput, op, 0, "name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

// CreateMission opens a new mission led by opts.ChiefID.
func (e Engine) CreateMission(ctx context.Context, opts MissionCreateOptions) (domain.Mission, error) {
	const op = "create"
	var created domain.Mission
	err := e.observe(ctx, op, 0, opts.ChiefID, func(ctx context.Context) error {
		name, err := validateName(op, opts.Name)
		if err != nil {
			return err
		}
		if opts.ChiefID <= 0 {
			return newError(KindInvalidInput, op, 0, "chief id must be positive")
		}
		return e.Store.InTx(ctx, func(tx store.Tx) error {
			now := e.stamp()
			if err := tx.EnsureBrawler(ctx, domain.Brawler{ID: opts.ChiefID, DisplayName: strings.TrimSpace(opts.ChiefName), CreatedAt: now}); err != nil {
				return fromStore(op, 0, err)
			}
			id, err := tx.InsertMission(ctx, domain.Mission{
				Name:        name,
				Description: strings.TrimSpace(opts.Description),
				Status:      domain.StatusOpen,
				ChiefID:     opts.ChiefID,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				return fromStore(op, 0, err)
			}
			if err := e.appendEvent(ctx, tx, events.MissionCreated, id, opts.ChiefID, events.Payload{"name": name}); err != nil {
				return fromStore(op, id, err)
			}
			created, err = tx.GetMission(ctx, id)
			return fromStore(op, id, err)
		})
	})
	if err != nil {
		return domain.Mission{}, err
	}
	return created, nil
}

// ensureOpenForChief gates management changes: the mission must still be
// Open and the actor must be its chief.
func ensureOpenForChief(op string, m domain.Mission, actorID int64) error {
	if m.Status != domain.StatusOpen {
		return newError(KindInvalidStateTransition, op, m.ID, "Mission must be Open to %s (current: %s)", op, m.Status)
	}
	if m.ChiefID != actorID {
		return newError(KindUnauthorized, op, m.ID, "Only the Chief (ID: %d) can %s this mission", m.ChiefID, op)
	}
	return nil
}

// EditMission changes the name or description of an Open mission.
func (e Engine) EditMission(ctx context.Context, missionID, actorID int64, opts MissionEditOptions) (domain.Mission, error) {
	const op = "edit"
	var edited domain.Mission
	err := e.observe(ctx, op, missionID, actorID, func(ctx context.Context) error {
		return e.Store.InTx(ctx, func(tx store.Tx) error {
			m, err := lockAndLoad(ctx, tx, op, missionID)
			if err != nil {
				return err
			}
			if err := ensureOpenForChief(op, m, actorID); err != nil {
				return err
			}
			changed := events.Payload{}
			if opts.Name != nil {
				name, err := validateName(op, *opts.Name)
				if err != nil {
					return err
				}
				if name != m.Name {
					changed["name"] = name
				}
				m.Name = name
			}
			if opts.Description != nil {
				desc := strings.TrimSpace(*opts.Description)
				if desc != m.Description {
					changed["description"] = desc
				}
				m.Description = desc
			}
			if len(changed) == 0 {
				edited = m
				return nil
			}
			m.UpdatedAt = e.stamp()
			if err := tx.UpdateMission(ctx, m); err != nil {
				return fromStore(op, missionID, err)
			}
			if err := e.appendEvent(ctx, tx, events.MissionUpdated, missionID, actorID, changed); err != nil {
				return fromStore(op, missionID, err)
			}
			edited, err = tx.GetMission(ctx, missionID)
			return fromStore(op, missionID, err)
		})
	})
	if err != nil {
		return domain.Mission{}, err
	}
	return edited, nil
}

// RemoveMission soft-deletes an Open mission and clears its roster.
func (e Engine) RemoveMission(ctx context.Context, missionID, actorID int64) error {
	const op = "remove"
	return e.observe(ctx, op, missionID, actorID, func(ctx context.Context) error {
		return e.Store.InTx(ctx, func(tx store.Tx) error {
			m, err := lockAndLoad(ctx, tx, op, missionID)
			if err != nil {
				return err
			}
			if err := ensureOpenForChief(op, m, actorID); err != nil {
				return err
			}
			if err := tx.SoftDeleteMission(ctx, missionID, e.stamp()); err != nil {
				return fromStore(op, missionID, err)
			}
			return fromStore(op, missionID, e.appendEvent(ctx, tx, events.MissionRemoved, missionID, actorID, events.Payload{"crew_count": m.CrewCount}))
		})
	})
}

// GetMission returns a visible mission with its current crew count.
func (e Engine) GetMission(ctx context.Context, missionID int64) (domain.Mission, error) {
	m, err := e.Store.GetMission(ctx, missionID)
	if err != nil {
		return domain.Mission{}, fromStore("get", missionID, err)
	}
	return m, nil
}

func (e Engine) ListMissions(ctx context.Context, f domain.MissionFilter) ([]domain.Mission, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, newError(KindInvalidInput, "list", 0, "invalid mission status %q", f.Status)
	}
	items, err := e.Store.ListMissions(ctx, f)
	if err != nil {
		return nil, fromStore("list", 0, err)
	}
	return items, nil
}

// Crew lists the roster of a visible mission.
func (e Engine) Crew(ctx context.Context, missionID int64) ([]domain.CrewMember, error) {
	if _, err := e.GetMission(ctx, missionID); err != nil {
		return nil, err
	}
	items, err := e.Store.ListCrew(ctx, missionID)
	if err != nil {
		return nil, fromStore("crew", missionID, err)
	}
	return items, nil
}

func (e Engine) Events(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	items, err := e.Store.ListEvents(ctx, f)
	if err != nil {
		return nil, fromStore("events", f.MissionID, err)
	}
	return items, nil
}

// RegisterBrawler records or renames a brawler.
func (e Engine) RegisterBrawler(ctx context.Context, id int64, displayName string) error {
	if id <= 0 {
		return newError(KindInvalidInput, "register", 0, "brawler id must be positive")
	}
	return e.Store.InTx(ctx, func(tx store.Tx) error {
		return fromStore("register", 0, tx.EnsureBrawler(ctx, domain.Brawler{ID: id, DisplayName: strings.TrimSpace(displayName), CreatedAt: e.stamp()}))
	})
}
