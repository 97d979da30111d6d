package engine_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewline/internal/domain"
	"crewline/internal/engine"
)

func strPtr(s string) *string { return &s }

func TestCreateMission(t *testing.T) {
	forEachStore(t, 4, func(t *testing.T, env testEnv) {
		m, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{
			Name:        "  Scout the ridge ",
			Description: "bring rope",
			ChiefID:     chief,
			ChiefName:   "Shelly",
		})
		require.NoError(t, err)
		assert.NotZero(t, m.ID)
		assert.Equal(t, "Scout the ridge", m.Name)
		assert.Equal(t, domain.StatusOpen, m.Status)
		assert.Equal(t, chief, m.ChiefID)
		assert.Equal(t, 0, m.CrewCount)
		assert.Equal(t, "2024-01-01T00:00:00Z", m.CreatedAt)

		_, err = env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{Name: " ", ChiefID: chief})
		requireKind(t, err, engine.KindInvalidInput)
		_, err = env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{Name: strings.Repeat("x", 121), ChiefID: chief})
		requireKind(t, err, engine.KindInvalidInput)
		_, err = env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{Name: "ok"})
		requireKind(t, err, engine.KindInvalidInput)
	})
}

func TestEditMission(t *testing.T) {
	forEachStore(t, 4, func(t *testing.T, env testEnv) {
		m := env.mission(t, 42)
		edited, err := env.Engine.EditMission(env.Ctx, m.ID, chief, engine.MissionEditOptions{Name: strPtr("Raid the other vault"), Description: strPtr("quietly")})
		require.NoError(t, err)
		assert.Equal(t, "Raid the other vault", edited.Name)
		assert.Equal(t, "quietly", edited.Description)
		assert.Equal(t, 1, edited.CrewCount)

		_, err = env.Engine.EditMission(env.Ctx, m.ID, 42, engine.MissionEditOptions{Name: strPtr("mine now")})
		requireKind(t, err, engine.KindUnauthorized)
		_, err = env.Engine.EditMission(env.Ctx, m.ID, chief, engine.MissionEditOptions{Name: strPtr("")})
		requireKind(t, err, engine.KindInvalidInput)

		_, err = env.Engine.Start(env.Ctx, m.ID, chief)
		require.NoError(t, err)
		_, err = env.Engine.EditMission(env.Ctx, m.ID, chief, engine.MissionEditOptions{Name: strPtr("too late")})
		requireKind(t, err, engine.KindInvalidStateTransition)
		assert.Equal(t, "Raid the other vault", env.get(t, m.ID).Name)
	})
}

func TestRemoveMission(t *testing.T) {
	forEachStore(t, 4, func(t *testing.T, env testEnv) {
		m := env.mission(t, 42)
		err := env.Engine.RemoveMission(env.Ctx, m.ID, 42)
		requireKind(t, err, engine.KindUnauthorized)

		require.NoError(t, env.Engine.RemoveMission(env.Ctx, m.ID, chief))
		_, err = env.Engine.GetMission(env.Ctx, m.ID)
		requireKind(t, err, engine.KindNotFound)
		_, err = env.Engine.Join(env.Ctx, m.ID, 43)
		requireKind(t, err, engine.KindNotFound)
		err = env.Engine.Leave(env.Ctx, m.ID, 42)
		requireKind(t, err, engine.KindNotFound)
		_, err = env.Engine.Start(env.Ctx, m.ID, chief)
		requireKind(t, err, engine.KindNotFound)
		_, err = env.Engine.Crew(env.Ctx, m.ID)
		requireKind(t, err, engine.KindNotFound)
		err = env.Engine.RemoveMission(env.Ctx, m.ID, chief)
		requireKind(t, err, engine.KindNotFound)
	})
}

func TestListMissions(t *testing.T) {
	forEachStore(t, 4, func(t *testing.T, env testEnv) {
		a, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{Name: "Alpha Strike", ChiefID: chief})
		require.NoError(t, err)
		b, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{Name: "Beta 100%", ChiefID: 8})
		require.NoError(t, err)
		c, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{Name: "alpha recon", ChiefID: chief})
		require.NoError(t, err)
		_, err = env.Engine.Join(env.Ctx, a.ID, 1)
		require.NoError(t, err)
		_, err = env.Engine.Start(env.Ctx, a.ID, chief)
		require.NoError(t, err)

		all, err := env.Engine.ListMissions(env.Ctx, domain.MissionFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int64{c.ID, b.ID, a.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})
		assert.Equal(t, 1, all[2].CrewCount)

		byName, err := env.Engine.ListMissions(env.Ctx, domain.MissionFilter{Name: "ALPHA"})
		require.NoError(t, err)
		assert.Len(t, byName, 2)

		pct, err := env.Engine.ListMissions(env.Ctx, domain.MissionFilter{Name: "%"})
		require.NoError(t, err)
		require.Len(t, pct, 1)
		assert.Equal(t, b.ID, pct[0].ID)

		open, err := env.Engine.ListMissions(env.Ctx, domain.MissionFilter{Status: domain.StatusOpen, ChiefID: chief})
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, c.ID, open[0].ID)

		page, err := env.Engine.ListMissions(env.Ctx, domain.MissionFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		rest, err := env.Engine.ListMissions(env.Ctx, domain.MissionFilter{Limit: 2, Cursor: page[1].ID})
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, a.ID, rest[0].ID)

		_, err = env.Engine.ListMissions(env.Ctx, domain.MissionFilter{Status: "Paused"})
		requireKind(t, err, engine.KindInvalidInput)
	})
}

func TestCrewListing(t *testing.T) {
	forEachStore(t, 4, func(t *testing.T, env testEnv) {
		require.NoError(t, env.Engine.RegisterBrawler(env.Ctx, 42, "Colt"))
		m := env.mission(t, 42, 43)
		crew, err := env.Engine.Crew(env.Ctx, m.ID)
		require.NoError(t, err)
		require.Len(t, crew, 2)
		assert.Equal(t, int64(42), crew[0].BrawlerID)
		assert.Equal(t, "Colt", crew[0].DisplayName)
		assert.Equal(t, int64(43), crew[1].BrawlerID)
		assert.Empty(t, crew[1].DisplayName)
	})
}
