package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"crewline/internal/config"
	"crewline/internal/domain"
	"crewline/internal/metrics"
	"crewline/internal/store"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
	defaultWebhookRetries  = 3
)

// errHookRejected marks a 4xx answer; the event is not retried.
var errHookRejected = errors.New("webhook rejected event")

// EventSource is the slice of store.Store the dispatcher reads.
type EventSource interface {
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

var _ EventSource = store.Store(nil)

// WebhookDispatcher posts committed events to the configured hooks. Each
// hook keeps its own cursor, starting at the newest event seen at startup.
type WebhookDispatcher struct {
	source   EventSource
	webhooks []config.WebhookConfig
	client   *http.Client
	logger   *slog.Logger
	interval time.Duration
	// backoff builds the retry policy for a single delivery.
	backoff func(maxRetries int) backoff.BackOff

	mu      sync.Mutex
	cursors map[int]int64
}

func NewWebhookDispatcher(source EventSource, hooks []config.WebhookConfig, logger *slog.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		source:   source,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		logger:   logger.With("component", "webhooks"),
		interval: defaultWebhookInterval,
		backoff: func(maxRetries int) backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return backoff.WithMaxRetries(b, uint64(maxRetries))
		},
		cursors: make(map[int]int64),
	}
}

// Run dispatches until ctx is done. It returns nil on cancellation.
func (d *WebhookDispatcher) Run(ctx context.Context) error {
	if len(d.webhooks) == 0 {
		<-ctx.Done()
		return nil
	}
	d.logger.Info("webhook dispatcher started", "hooks", len(d.webhooks))
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			d.logger.Info("webhook dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers every pending event to every active hook.
func (d *WebhookDispatcher) DispatchOnce(ctx context.Context) {
	for i, hook := range d.webhooks {
		if !hook.Active() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *WebhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor := d.cursorFor(ctx, idx)
	events, err := d.source.EventsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		d.logger.Error("fetch events failed", slog.Any("error", err))
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		err := d.deliver(ctx, hook, evt)
		if errors.Is(err, errHookRejected) {
			d.logger.Warn("webhook rejected event, skipping", "url", hook.URL, "event_id", evt.ID, slog.Any("error", err))
			d.setCursor(idx, evt.ID)
			continue
		}
		if err != nil {
			d.logger.Warn("webhook delivery failed", "url", hook.URL, "event_id", evt.ID, slog.Any("error", err))
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

// cursorFor starts a hook at the latest event so a restart does not replay
// history.
func (d *WebhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.source.LatestEventID(ctx)
	if err != nil {
		d.logger.Error("init cursor failed", slog.Any("error", err))
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *WebhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	MissionID int64           `json:"mission_id"`
	ActorID   int64           `json:"actor_id"`
	TS        string          `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

func (d *WebhookDispatcher) deliver(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	resp := eventResponse(evt)
	data, err := json.Marshal(webhookEvent{
		ID:        resp.ID,
		Type:      resp.Type,
		MissionID: resp.MissionID,
		ActorID:   resp.ActorID,
		TS:        resp.TS,
		Payload:   resp.Payload,
	})
	if err != nil {
		return err
	}
	retries := hook.MaxRetries
	if retries <= 0 {
		retries = defaultWebhookRetries
	}
	delivery := uuid.NewString()
	op := func() error {
		err := d.postEvent(ctx, hook, evt, delivery, data)
		metrics.ObserveWebhook(err == nil)
		return err
	}
	return backoff.Retry(op, backoff.WithContext(d.backoff(retries), ctx))
}

func (d *WebhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event, delivery string, data []byte) error {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Crewline-Event", evt.Type)
	req.Header.Set("X-Crewline-Event-Id", strconv.FormatInt(evt.ID, 10))
	req.Header.Set("X-Crewline-Delivery", delivery)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Crewline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", errHookRejected, res.StatusCode, strings.TrimSpace(string(bodyBytes))))
		}
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
