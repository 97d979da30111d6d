package crewlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client is a minimal Crewline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
	// MaxRetries bounds retries of idempotent reads on 5xx or transport errors.
	MaxRetries int
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: token,
		Timeout:     10 * time.Second,
		MaxRetries:  2,
	}
}

// Mission statuses.
const (
	StatusOpen       = "Open"
	StatusInProgress = "InProgress"
	StatusCompleted  = "Completed"
	StatusFailed     = "Failed"
)

type Mission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	ChiefID     int64  `json:"chief_id"`
	CrewCount   int    `json:"crew_count"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type Membership struct {
	MissionID int64  `json:"mission_id"`
	BrawlerID int64  `json:"brawler_id"`
	JoinedAt  string `json:"joined_at"`
}

type CrewMember struct {
	BrawlerID   int64  `json:"brawler_id"`
	DisplayName string `json:"display_name,omitempty"`
	JoinedAt    string `json:"joined_at"`
}

// Event represents a log entry.
type Event struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	MissionID int64          `json:"mission_id"`
	ActorID   int64          `json:"actor_id"`
	Payload   map[string]any `json:"payload"`
}

// Transition is the result of start, complete or fail.
type Transition struct {
	MissionID int64  `json:"mission_id"`
	Status    string `json:"status"`
}

// PaginatedMissions wraps list responses with cursors.
type PaginatedMissions struct {
	Items      []Mission `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type ListMissionsOptions struct {
	Status  string
	Name    string
	ChiefID int64
	Limit   int
	Cursor  string
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code, such as
// "capacity_exceeded".
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// DevLogin mints a token through the Local-stage login route and stores it
// on the client.
func (c *Client) DevLogin(ctx context.Context, brawlerID int64, displayName string) (string, error) {
	body := map[string]any{"brawler_id": brawlerID}
	if displayName != "" {
		body["display_name"] = displayName
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// CreateMission opens a mission led by the caller.
func (c *Client) CreateMission(ctx context.Context, name, description string) (Mission, error) {
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", body, &resp)
	return resp, err
}

func (c *Client) ListMissions(ctx context.Context, opts ListMissionsOptions) (PaginatedMissions, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Name != "" {
		q.Set("name", opts.Name)
	}
	if opts.ChiefID > 0 {
		q.Set("chief_id", strconv.FormatInt(opts.ChiefID, 10))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	endpoint := "missions"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedMissions
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) GetMission(ctx context.Context, id int64) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, missionPath(id, ""), nil, &resp)
	return resp, err
}

// EditMission changes the name and/or description; nil leaves a field as is.
func (c *Client) EditMission(ctx context.Context, id int64, name, description *string) (Mission, error) {
	body := map[string]any{}
	if name != nil {
		body["name"] = *name
	}
	if description != nil {
		body["description"] = *description
	}
	var resp Mission
	err := c.do(ctx, http.MethodPatch, missionPath(id, ""), body, &resp)
	return resp, err
}

func (c *Client) RemoveMission(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, missionPath(id, ""), nil, nil)
}

func (c *Client) Start(ctx context.Context, id int64) (Transition, error) {
	return c.transition(ctx, id, "start")
}

func (c *Client) Complete(ctx context.Context, id int64) (Transition, error) {
	return c.transition(ctx, id, "complete")
}

func (c *Client) Fail(ctx context.Context, id int64) (Transition, error) {
	return c.transition(ctx, id, "fail")
}

func (c *Client) transition(ctx context.Context, id int64, action string) (Transition, error) {
	var resp Transition
	err := c.do(ctx, http.MethodPost, missionPath(id, action), nil, &resp)
	return resp, err
}

// Join adds the caller to the mission crew.
func (c *Client) Join(ctx context.Context, id int64) (Membership, error) {
	var resp Membership
	err := c.do(ctx, http.MethodPost, missionPath(id, "join"), nil, &resp)
	return resp, err
}

// Leave removes the caller from the mission crew.
func (c *Client) Leave(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, missionPath(id, "leave"), nil, nil)
}

func (c *Client) Crew(ctx context.Context, id int64) ([]CrewMember, error) {
	var resp struct {
		Items []CrewMember `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, missionPath(id, "crew"), nil, &resp)
	return resp.Items, err
}

// EventsPage returns a mission's events, newest first.
func (c *Client) EventsPage(ctx context.Context, id int64, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := missionPath(id, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	op := func() error {
		return c.once(ctx, method, target, payload, out)
	}
	if method != http.MethodGet || c.MaxRetries <= 0 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	return backoff.Retry(func() error {
		err := op()
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxRetries)), ctx))
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func missionPath(id int64, action string) string {
	p := fmt.Sprintf("missions/%d", id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) base() string {
	basePath := "/" + strings.Trim(c.BasePath, "/")
	if basePath == "/" {
		basePath = ""
	}
	return strings.TrimRight(c.BaseURL, "/") + basePath
}
