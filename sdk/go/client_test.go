package crewlinesdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewline/internal/config"
	"crewline/internal/engine"
	"crewline/internal/repo/memory"
	"crewline/internal/server"
	crewlinesdk "crewline/sdk/go"
)

func newAPI(t *testing.T, maxCrew int) *httptest.Server {
	t.Helper()
	handler, err := server.New(server.Config{
		Engine: engine.New(memory.New(), maxCrew),
		Stage:  config.StageLocal,
		Auth:   server.AuthConfig{JWTSecret: "sdk-secret"},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, baseURL string, id int64) *crewlinesdk.Client {
	t.Helper()
	c := crewlinesdk.New(baseURL, "")
	_, err := c.DevLogin(context.Background(), id, "")
	require.NoError(t, err)
	return c
}

func TestClientMissionFlow(t *testing.T) {
	ctx := context.Background()
	srv := newAPI(t, 2)
	chief := login(t, srv.URL, 1)
	bull := login(t, srv.URL, 2)
	colt := login(t, srv.URL, 3)
	nita := login(t, srv.URL, 4)

	m, err := chief.CreateMission(ctx, "Gem grab", "hold the mine")
	require.NoError(t, err)
	assert.Equal(t, crewlinesdk.StatusOpen, m.Status)

	renamed := "Gem grab II"
	m, err = chief.EditMission(ctx, m.ID, &renamed, nil)
	require.NoError(t, err)
	assert.Equal(t, renamed, m.Name)
	assert.Equal(t, "hold the mine", m.Description)

	_, err = bull.Join(ctx, m.ID)
	require.NoError(t, err)
	_, err = colt.Join(ctx, m.ID)
	require.NoError(t, err)
	_, err = nita.Join(ctx, m.ID)
	assert.True(t, crewlinesdk.IsCode(err, "capacity_exceeded"), "got %v", err)

	_, err = bull.Start(ctx, m.ID)
	assert.True(t, crewlinesdk.IsCode(err, "unauthorized"), "got %v", err)
	var apiErr *crewlinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Only the Chief (ID: 1) can start this mission", apiErr.Message)

	tr, err := chief.Start(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, crewlinesdk.StatusInProgress, tr.Status)

	err = colt.Leave(ctx, m.ID)
	assert.True(t, crewlinesdk.IsCode(err, "not_leavable"), "got %v", err)

	tr, err = chief.Complete(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, crewlinesdk.StatusCompleted, tr.Status)
	_, err = chief.Fail(ctx, m.ID)
	assert.True(t, crewlinesdk.IsCode(err, "invalid_state_transition"), "got %v", err)

	crew, err := chief.Crew(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, crew, 2)
	assert.Equal(t, int64(2), crew[0].BrawlerID)

	page, err := chief.EventsPage(ctx, m.ID, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "mission.completed", page.Items[0].Type)
	assert.Equal(t, "mission.started", page.Items[1].Type)
	require.NotEmpty(t, page.NextCursor)
	older, err := chief.EventsPage(ctx, m.ID, 50, page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "mission.created", older.Items[len(older.Items)-1].Type)

	list, err := chief.ListMissions(ctx, crewlinesdk.ListMissionsOptions{Status: crewlinesdk.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, m.ID, list.Items[0].ID)
	assert.Equal(t, 2, list.Items[0].CrewCount)
}

func TestClientRemoveMission(t *testing.T) {
	ctx := context.Background()
	srv := newAPI(t, 4)
	chief := login(t, srv.URL, 1)

	m, err := chief.CreateMission(ctx, "Short lived", "")
	require.NoError(t, err)
	require.NoError(t, chief.RemoveMission(ctx, m.ID))
	_, err = chief.GetMission(ctx, m.ID)
	assert.True(t, crewlinesdk.IsCode(err, "not_found"), "got %v", err)
}

func TestClientUnauthenticated(t *testing.T) {
	srv := newAPI(t, 4)
	c := crewlinesdk.New(srv.URL, "")
	_, err := c.ListMissions(context.Background(), crewlinesdk.ListMissionsOptions{})
	var apiErr *crewlinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)
}

func TestClientRetriesReadsOnly(t *testing.T) {
	var gets, posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if gets.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":5,"name":"ok","status":"Open"}`))
			return
		}
		posts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := crewlinesdk.New(srv.URL, "token")
	m, err := c.GetMission(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "ok", m.Name)
	assert.Equal(t, int32(3), gets.Load())

	_, err = c.Join(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, int32(1), posts.Load())
}
