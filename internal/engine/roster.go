package engine

import (
	"context"
	"errors"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/store"
)

// Join enrols brawlerID in an Open or Failed mission that has a free slot.
func (e Engine) Join(ctx context.Context, missionID, brawlerID int64) (domain.Membership, error) {
	const op = "join"
	var joined domain.Membership
	err := e.observe(ctx, op, missionID, brawlerID, func(ctx context.Context) error {
		return e.Store.InTx(ctx, func(tx store.Tx) error {
			m, err := lockAndLoad(ctx, tx, op, missionID)
			if err != nil {
				return err
			}
			if !m.Status.RosterOpen() {
				return newError(KindNotJoinable, op, missionID, "Mission is not joinable (current: %s)", m.Status)
			}
			member, err := tx.IsMember(ctx, missionID, brawlerID)
			if err != nil {
				return fromStore(op, missionID, err)
			}
			if member {
				return duplicateError(missionID, brawlerID)
			}
			crew, err := tx.CountCrew(ctx, missionID)
			if err != nil {
				return fromStore(op, missionID, err)
			}
			if crew >= e.MaxCrew {
				return fullError(missionID, e.MaxCrew)
			}
			now := e.stamp()
			if err := tx.EnsureBrawler(ctx, domain.Brawler{ID: brawlerID, CreatedAt: now}); err != nil {
				return fromStore(op, missionID, err)
			}
			ms := domain.Membership{MissionID: missionID, BrawlerID: brawlerID, JoinedAt: now}
			switch err := tx.InsertMember(ctx, ms, e.MaxCrew); {
			case errors.Is(err, store.ErrDuplicate):
				return duplicateError(missionID, brawlerID)
			case errors.Is(err, store.ErrFull):
				return fullError(missionID, e.MaxCrew)
			case err != nil:
				return fromStore(op, missionID, err)
			}
			if err := e.appendEvent(ctx, tx, events.CrewJoined, missionID, brawlerID, events.Payload{"crew_count": crew + 1}); err != nil {
				return fromStore(op, missionID, err)
			}
			joined = ms
			return nil
		})
	})
	if err != nil {
		return domain.Membership{}, err
	}
	return joined, nil
}

// Leave removes brawlerID from an Open or Failed mission it belongs to.
func (e Engine) Leave(ctx context.Context, missionID, brawlerID int64) error {
	const op = "leave"
	return e.observe(ctx, op, missionID, brawlerID, func(ctx context.Context) error {
		return e.Store.InTx(ctx, func(tx store.Tx) error {
			m, err := lockAndLoad(ctx, tx, op, missionID)
			if err != nil {
				return err
			}
			if !m.Status.RosterOpen() {
				return newError(KindNotLeavable, op, missionID, "Mission is not leavable (current: %s)", m.Status)
			}
			removed, err := tx.DeleteMember(ctx, missionID, brawlerID)
			if err != nil {
				return fromStore(op, missionID, err)
			}
			if !removed {
				return newError(KindNotAMember, op, missionID, "Brawler %d is not a member of mission %d", brawlerID, missionID)
			}
			crew, err := tx.CountCrew(ctx, missionID)
			if err != nil {
				return fromStore(op, missionID, err)
			}
			if err := e.appendEvent(ctx, tx, events.CrewLeft, missionID, brawlerID, events.Payload{"crew_count": crew}); err != nil {
				return fromStore(op, missionID, err)
			}
			return nil
		})
	})
}

func duplicateError(missionID, brawlerID int64) error {
	return newError(KindDuplicateMembership, "join", missionID, "Brawler %d is already a member of mission %d", brawlerID, missionID)
}

func fullError(missionID int64, max int) error {
	return newError(KindCapacityExceeded, "join", missionID, "Mission is full (max %d crew)", max)
}
