// Package memory is an in-process store.Store. Units of work run against a
// private copy of the state which replaces the live state only on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"crewline/internal/domain"
	"crewline/internal/store"
)

type state struct {
	missions    map[int64]domain.Mission
	members     map[int64]map[int64]string
	brawlers    map[int64]domain.Brawler
	events      []domain.Event
	nextMission int64
	nextEvent   int64
}

func newState() state {
	return state{
		missions: map[int64]domain.Mission{},
		members:  map[int64]map[int64]string{},
		brawlers: map[int64]domain.Brawler{},
	}
}

func (s state) clone() state {
	out := state{
		missions:    make(map[int64]domain.Mission, len(s.missions)),
		members:     make(map[int64]map[int64]string, len(s.members)),
		brawlers:    make(map[int64]domain.Brawler, len(s.brawlers)),
		events:      append([]domain.Event(nil), s.events...),
		nextMission: s.nextMission,
		nextEvent:   s.nextEvent,
	}
	for k, v := range s.missions {
		if v.DeletedAt != nil {
			at := *v.DeletedAt
			v.DeletedAt = &at
		}
		out.missions[k] = v
	}
	for k, roster := range s.members {
		cp := make(map[int64]string, len(roster))
		for b, at := range roster {
			cp[b] = at
		}
		out.members[k] = cp
	}
	for k, v := range s.brawlers {
		out.brawlers[k] = v
	}
	return out
}

// Store serializes units of work with a single mutex.
type Store struct {
	mu    sync.Mutex
	state state
}

func New() *Store {
	return &Store{state: newState()}
}

var _ store.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := &tx{st: s.state.clone()}
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work.st
	return nil
}

func (s *Store) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.mission(id)
}

func (s *Store) CountCrew(ctx context.Context, missionID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.members[missionID]), nil
}

func (s *Store) ListMissions(ctx context.Context, f domain.MissionFilter) ([]domain.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.ToLower(strings.TrimSpace(f.Name))
	var res []domain.Mission
	for id := range s.state.missions {
		m, err := s.state.mission(id)
		if err != nil {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(m.Name), name) {
			continue
		}
		if f.ChiefID != 0 && m.ChiefID != f.ChiefID {
			continue
		}
		if f.Cursor > 0 && m.ID >= f.Cursor {
			continue
		}
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (s *Store) ListCrew(ctx context.Context, missionID int64) ([]domain.CrewMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.state.mission(missionID); err != nil {
		return nil, nil
	}
	var res []domain.CrewMember
	for b, at := range s.state.members[missionID] {
		res = append(res, domain.CrewMember{BrawlerID: b, DisplayName: s.state.brawlers[b].DisplayName, JoinedAt: at})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].JoinedAt != res[j].JoinedAt {
			return res[i].JoinedAt < res[j].JoinedAt
		}
		return res[i].BrawlerID < res[j].BrawlerID
	})
	return res, nil
}

func (s *Store) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var res []domain.Event
	for i := len(s.state.events) - 1; i >= 0 && len(res) < limit; i-- {
		e := s.state.events[i]
		if f.MissionID != 0 && e.MissionID != f.MissionID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Cursor > 0 && e.ID >= f.Cursor {
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

func (s *Store) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var res []domain.Event
	for _, e := range s.state.events {
		if e.ID > cursor {
			res = append(res, e)
			if len(res) == limit {
				break
			}
		}
	}
	return res, nil
}

func (s *Store) LatestEventID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.nextEvent, nil
}

// mission returns the live mission with its crew count projected.
func (s state) mission(id int64) (domain.Mission, error) {
	m, ok := s.missions[id]
	if !ok || m.DeletedAt != nil {
		return domain.Mission{}, store.ErrNotFound
	}
	m.CrewCount = len(s.members[id])
	return m, nil
}
