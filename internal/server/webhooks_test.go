package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewline/internal/config"
	"crewline/internal/engine"
	"crewline/internal/repo/memory"
)

type hookRecorder struct {
	mu      sync.Mutex
	events  []webhookEvent
	headers []http.Header
}

func (h *hookRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var evt webhookEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		h.mu.Lock()
		h.events = append(h.events, evt)
		h.headers = append(h.headers, r.Header.Clone())
		h.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *hookRecorder) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, evt := range h.events {
		out = append(out, evt.Type)
	}
	return out
}

func fastBackoff(int) backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
}

func TestWebhookDispatcherDeliversNewEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	e := engine.New(st, 4)

	_, err := e.CreateMission(ctx, engine.MissionCreateOptions{Name: "before start", ChiefID: 7})
	require.NoError(t, err)

	all := &hookRecorder{}
	allSrv := httptest.NewServer(all.handler(t))
	defer allSrv.Close()
	started := &hookRecorder{}
	startedSrv := httptest.NewServer(started.handler(t))
	defer startedSrv.Close()
	disabled := false

	d := NewWebhookDispatcher(st, []config.WebhookConfig{
		{URL: allSrv.URL, Secret: "s3cret"},
		{URL: startedSrv.URL, Events: []string{"mission.started"}},
		{URL: allSrv.URL, Enabled: &disabled},
	}, nil)
	d.backoff = fastBackoff

	// First pass pins cursors to the existing history.
	d.DispatchOnce(ctx)
	assert.Empty(t, all.types())

	m, err := e.CreateMission(ctx, engine.MissionCreateOptions{Name: "watched", ChiefID: 7})
	require.NoError(t, err)
	_, err = e.Join(ctx, m.ID, 8)
	require.NoError(t, err)
	_, err = e.Start(ctx, m.ID, 7)
	require.NoError(t, err)

	d.DispatchOnce(ctx)
	assert.Equal(t, []string{"mission.created", "crew.joined", "mission.started"}, all.types())
	assert.Equal(t, []string{"mission.started"}, started.types())

	all.mu.Lock()
	first := all.events[0]
	hdr := all.headers[0]
	all.mu.Unlock()
	assert.Equal(t, m.ID, first.MissionID)
	assert.Equal(t, int64(7), first.ActorID)
	assert.JSONEq(t, `{"name":"watched"}`, string(first.Payload))
	assert.Equal(t, "s3cret", hdr.Get("X-Crewline-Secret"))
	assert.Equal(t, "mission.created", hdr.Get("X-Crewline-Event"))
	assert.NotEmpty(t, hdr.Get("X-Crewline-Delivery"))

	// Nothing new: nothing resent.
	d.DispatchOnce(ctx)
	assert.Len(t, all.types(), 3)
}

func TestWebhookDispatcherRetriesServerErrors(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	e := engine.New(st, 4)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(st, []config.WebhookConfig{{URL: srv.URL}}, nil)
	d.backoff = fastBackoff
	d.DispatchOnce(ctx)

	_, err := e.CreateMission(ctx, engine.MissionCreateOptions{Name: "flaky", ChiefID: 7})
	require.NoError(t, err)
	d.DispatchOnce(ctx)
	assert.Equal(t, int32(3), calls.Load())

	d.DispatchOnce(ctx)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookDispatcherSkipsRejectedEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	e := engine.New(st, 4)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(st, []config.WebhookConfig{{URL: srv.URL}}, nil)
	d.backoff = fastBackoff
	d.DispatchOnce(ctx)

	m, err := e.CreateMission(ctx, engine.MissionCreateOptions{Name: "rejected", ChiefID: 7})
	require.NoError(t, err)
	_, err = e.Join(ctx, m.ID, 8)
	require.NoError(t, err)

	d.DispatchOnce(ctx)
	assert.Equal(t, int32(2), calls.Load(), "each event is tried once")
	d.DispatchOnce(ctx)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookDispatcherRunStopsOnCancel(t *testing.T) {
	d := NewWebhookDispatcher(memory.New(), []config.WebhookConfig{{URL: "http://127.0.0.1:1"}}, nil)
	d.interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match("crew.left"))
	assert.True(t, newEventFilter([]string{" "}).match("crew.left"))
	f := newEventFilter([]string{"crew.joined", " crew.left "})
	assert.True(t, f.match("crew.left"))
	assert.False(t, f.match("mission.started"))
}
