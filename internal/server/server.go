package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"crewline/internal/config"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/metrics"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Stage    config.Stage
	// Timeout bounds each request; zero disables the deadline.
	Timeout   time.Duration
	BodyLimit int64
	Logger    *slog.Logger
	Version   string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"capacity_exceeded"`
	Message string         `json:"message" example:"Mission is full (max 4 crew)"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"mission_id\":1}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the crewline API.
func New(cfg Config) (http.Handler, error) {
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Stage == "" {
		cfg.Stage = config.StageLocal
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}

	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema/request validation errors are plain bad requests.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)
	if cfg.BodyLimit > 0 {
		router.Use(middleware.RequestSize(cfg.BodyLimit))
	}
	if cfg.Timeout > 0 {
		router.Use(middleware.Timeout(cfg.Timeout))
	}
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	router.Handle("/metrics", metrics.Handler())

	hcfg := huma.DefaultConfig("Crewline API", cfg.Version)
	hcfg.OpenAPIPath = "/openapi"
	hcfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
	}
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerMe(group)
	registerMissions(group, cfg.Engine)
	registerLifecycle(group, cfg.Engine)
	registerRoster(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	if cfg.Stage == config.StageLocal {
		registerDevAuth(group, cfg.Engine, cfg.Auth)
	}

	return router, nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(middleware.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var details map[string]any
	var ee *engine.Error
	if errors.As(err, &ee) && ee.MissionID != 0 {
		details = map[string]any{"mission_id": ee.MissionID}
	}
	kind := engine.KindOf(err)
	switch kind {
	case engine.KindNotFound, engine.KindNotAMember:
		return newAPIError(http.StatusNotFound, string(kind), err.Error(), details)
	case engine.KindUnauthorized:
		return newAPIError(http.StatusForbidden, string(kind), err.Error(), details)
	case engine.KindInvalidStateTransition,
		engine.KindCapacityExceeded,
		engine.KindNotJoinable,
		engine.KindNotLeavable,
		engine.KindDuplicateMembership:
		return newAPIError(http.StatusConflict, string(kind), err.Error(), details)
	case engine.KindInvalidInput:
		return newAPIError(http.StatusBadRequest, string(kind), err.Error(), details)
	case engine.KindPersistence:
		return newAPIError(http.StatusInternalServerError, string(kind), "internal error", details)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

var bearerSecurity = []map[string][]string{{"bearerAuth": {}}}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Security:    bearerSecurity,
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{BrawlerID: p.BrawlerID, Source: p.Source}}, nil
	})
}

type missionPath struct {
	ID int64 `path:"id"`
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create mission",
		Description:   "Opens a new mission led by the caller.",
		DefaultStatus: http.StatusCreated,
		Security:      bearerSecurity,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateMission(ctx, engine.MissionCreateOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			ChiefID:     actor,
			ChiefName:   input.Body.ChiefName,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
		Security:    bearerSecurity,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status  string `query:"status" doc:"Open, InProgress, Completed or Failed"`
		Name    string `query:"name" doc:"Case-insensitive name substring"`
		ChiefID int64  `query:"chief_id"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*struct {
		Body paginatedMissions `json:"body"`
	}, error) {
		var status domain.Status
		if strings.TrimSpace(input.Status) != "" {
			parsed, err := domain.ParseStatus(input.Status)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"status": input.Status})
			}
			status = parsed
		}
		cursor, cerr := parseCursor(input.Cursor)
		if cerr != nil {
			return nil, cerr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListMissions(ctx, domain.MissionFilter{
			Status:  status,
			Name:    strings.TrimSpace(input.Name),
			ChiefID: input.ChiefID,
			Limit:   limit + 1,
			Cursor:  cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedMissions{}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = mapMissions(items)
		return &struct {
			Body paginatedMissions `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission",
		Security:    bearerSecurity,
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.GetMission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mission",
		Method:      http.MethodPatch,
		Path:        "/missions/{id}",
		Summary:     "Edit mission name or description",
		Description: "Chief only, while the mission is Open. Status is changed through start, complete and fail.",
		Security:    bearerSecurity,
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body UpdateMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.EditMission(ctx, input.ID, actor, engine.MissionEditOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-mission",
		Method:        http.MethodDelete,
		Path:          "/missions/{id}",
		Summary:       "Remove mission",
		Description:   "Chief only, while the mission is Open. The roster is cleared.",
		DefaultStatus: http.StatusNoContent,
		Security:      bearerSecurity,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *missionPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMission(ctx, input.ID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerLifecycle(api huma.API, e engine.Engine) {
	steps := []struct {
		name   string
		target domain.Status
		run    func(context.Context, int64, int64) (int64, error)
	}{
		{"start", domain.StatusInProgress, e.Start},
		{"complete", domain.StatusCompleted, e.Complete},
		{"fail", domain.StatusFailed, e.Fail},
	}
	for _, step := range steps {
		huma.Register(api, huma.Operation{
			OperationID: step.name + "-mission",
			Method:      http.MethodPost,
			Path:        "/missions/{id}/" + step.name,
			Summary:     fmt.Sprintf("Move mission to %s", step.target),
			Security:    bearerSecurity,
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *missionPath) (*struct {
			Body TransitionResponse `json:"body"`
		}, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			id, err := step.run(ctx, input.ID, actor)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body TransitionResponse `json:"body"`
			}{Body: TransitionResponse{MissionID: id, Status: step.target}}, nil
		})
	}
}

func registerRoster(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "join-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/join",
		Summary:     "Join mission crew",
		Description: "Adds the caller to the crew of an Open or Failed mission.",
		Security:    bearerSecurity,
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body MembershipResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ms, err := e.Join(ctx, input.ID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MembershipResponse `json:"body"`
		}{Body: ms}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "leave-mission",
		Method:        http.MethodPost,
		Path:          "/missions/{id}/leave",
		Summary:       "Leave mission crew",
		DefaultStatus: http.StatusNoContent,
		Security:      bearerSecurity,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *missionPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Leave(ctx, input.ID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-crew",
		Method:      http.MethodGet,
		Path:        "/missions/{id}/crew",
		Summary:     "List mission crew",
		Security:    bearerSecurity,
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body crewList `json:"body"`
	}, error) {
		items, err := e.Crew(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := crewList{Items: []domain.CrewMember{}}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body crewList `json:"body"`
		}{Body: resp}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-mission-events",
		Method:      http.MethodGet,
		Path:        "/missions/{id}/events",
		Summary:     "List mission events, newest first",
		Security:    bearerSecurity,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID     int64  `path:"id"`
		Type   string `query:"type"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		cursor, cerr := parseCursor(input.Cursor)
		if cerr != nil {
			return nil, cerr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.Events(ctx, domain.EventFilter{
			MissionID: input.ID,
			Type:      strings.TrimSpace(input.Type),
			Limit:     limit + 1,
			Cursor:    cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if input.Body.BrawlerID <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "brawler_id is required", nil)
		}
		if name := strings.TrimSpace(input.Body.DisplayName); name != "" {
			if err := e.RegisterBrawler(ctx, input.Body.BrawlerID, name); err != nil {
				return nil, handleError(err)
			}
		}
		token, expires, err := IssueToken(authCfg.JWTSecret, input.Body.BrawlerID, authCfg.ttl(), time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, ExpiresAt: expires.Format(time.RFC3339)}}, nil
	})
}

func parseCursor(raw string) (int64, huma.StatusError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": raw})
	}
	return id, nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
