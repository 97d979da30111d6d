package memory

import (
	"context"

	"crewline/internal/domain"
	"crewline/internal/store"
)

type tx struct {
	st state
}

var _ store.Tx = (*tx)(nil)

// LockMission only checks visibility; Store.InTx already holds the lock.
func (t *tx) LockMission(ctx context.Context, id int64) error {
	_, err := t.st.mission(id)
	return err
}

func (t *tx) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	return t.st.mission(id)
}

func (t *tx) CountCrew(ctx context.Context, missionID int64) (int, error) {
	return len(t.st.members[missionID]), nil
}

func (t *tx) SetStatus(ctx context.Context, id, chiefID int64, status domain.Status, at string) (int64, error) {
	m, ok := t.st.missions[id]
	if !ok || m.DeletedAt != nil || m.ChiefID != chiefID {
		return 0, store.ErrNotFound
	}
	m.Status = status
	m.UpdatedAt = at
	t.st.missions[id] = m
	return id, nil
}

func (t *tx) IsMember(ctx context.Context, missionID, brawlerID int64) (bool, error) {
	_, ok := t.st.members[missionID][brawlerID]
	return ok, nil
}

func (t *tx) InsertMember(ctx context.Context, m domain.Membership, max int) error {
	if _, err := t.st.mission(m.MissionID); err != nil {
		return err
	}
	roster := t.st.members[m.MissionID]
	if _, ok := roster[m.BrawlerID]; ok {
		return store.ErrDuplicate
	}
	if len(roster) >= max {
		return store.ErrFull
	}
	if roster == nil {
		roster = map[int64]string{}
		t.st.members[m.MissionID] = roster
	}
	roster[m.BrawlerID] = m.JoinedAt
	return nil
}

func (t *tx) DeleteMember(ctx context.Context, missionID, brawlerID int64) (bool, error) {
	roster := t.st.members[missionID]
	if _, ok := roster[brawlerID]; !ok {
		return false, nil
	}
	delete(roster, brawlerID)
	return true, nil
}

func (t *tx) InsertMission(ctx context.Context, m domain.Mission) (int64, error) {
	t.st.nextMission++
	m.ID = t.st.nextMission
	m.CrewCount = 0
	m.DeletedAt = nil
	t.st.missions[m.ID] = m
	return m.ID, nil
}

func (t *tx) UpdateMission(ctx context.Context, m domain.Mission) error {
	cur, err := t.st.mission(m.ID)
	if err != nil {
		return err
	}
	cur.Name = m.Name
	cur.Description = m.Description
	cur.UpdatedAt = m.UpdatedAt
	cur.CrewCount = 0
	t.st.missions[m.ID] = cur
	return nil
}

func (t *tx) SoftDeleteMission(ctx context.Context, id int64, at string) error {
	m, err := t.st.mission(id)
	if err != nil {
		return err
	}
	m.DeletedAt = &at
	m.UpdatedAt = at
	m.CrewCount = 0
	t.st.missions[id] = m
	delete(t.st.members, id)
	return nil
}

func (t *tx) EnsureBrawler(ctx context.Context, b domain.Brawler) error {
	if cur, ok := t.st.brawlers[b.ID]; ok {
		if b.DisplayName == "" {
			return nil
		}
		cur.DisplayName = b.DisplayName
		t.st.brawlers[b.ID] = cur
		return nil
	}
	t.st.brawlers[b.ID] = b
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, evt domain.Event) error {
	t.st.nextEvent++
	evt.ID = t.st.nextEvent
	if evt.Payload == "" {
		evt.Payload = "{}"
	}
	t.st.events = append(t.st.events, evt)
	return nil
}
