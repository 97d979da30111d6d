package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/metrics"
	"crewline/internal/store"
	"crewline/internal/telemetry"
)

// DefaultMaxCrew is used when no capacity is configured.
const DefaultMaxCrew = 4

// Engine drives mission lifecycle and roster changes. It holds no state of
// its own; every decision is taken inside a store transaction.
type Engine struct {
	Store   store.Store
	MaxCrew int
	Now     func() time.Time
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

func New(s store.Store, maxCrew int) Engine {
	return Engine{
		Store:   s,
		MaxCrew: maxCrew,
		Now:     time.Now,
		Logger:  slog.Default().With("logger", "engine"),
		Tracer:  telemetry.Tracer("crewline/engine"),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return telemetry.Tracer("crewline/engine")
}

// observe wraps one operation with a span, an outcome counter and logging.
func (e Engine) observe(ctx context.Context, op string, missionID, actorID int64, fn func(context.Context) error) error {
	ctx, span := e.tracer().Start(ctx, "engine."+op, trace.WithAttributes(
		attribute.Int64("mission.id", missionID),
		attribute.Int64("actor.id", actorID),
	))
	defer span.End()

	err := fn(ctx)
	outcome := "ok"
	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = KindPersistence
			err = &Error{Kind: KindPersistence, Op: op, MissionID: missionID, Reason: err.Error(), Err: err}
		}
		outcome = string(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if kind == KindPersistence {
			e.logger().Error("operation failed", "op", op, "mission_id", missionID, "actor_id", actorID, slog.Any("error", err))
		} else {
			e.logger().Debug("operation rejected", "op", op, "mission_id", missionID, "actor_id", actorID, "kind", kind, "reason", err.Error())
		}
	} else {
		e.logger().Info("operation committed", "op", op, "mission_id", missionID, "actor_id", actorID)
	}
	metrics.ObserveOperation(op, outcome)
	return err
}

func (e Engine) appendEvent(ctx context.Context, tx store.Tx, evtType string, missionID, actorID int64, payload events.Payload) error {
	evt, err := events.New(e.now(), evtType, missionID, actorID, payload)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, evt)
}

// lockAndLoad takes the mission's serialization point and reads it back.
func lockAndLoad(ctx context.Context, tx store.Tx, op string, missionID int64) (domain.Mission, error) {
	if err := tx.LockMission(ctx, missionID); err != nil {
		return domain.Mission{}, fromStore(op, missionID, err)
	}
	m, err := tx.GetMission(ctx, missionID)
	if err != nil {
		return domain.Mission{}, fromStore(op, missionID, err)
	}
	return m, nil
}
