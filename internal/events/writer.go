package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"crewline/internal/domain"
)

const (
	MissionCreated   = "mission.created"
	MissionUpdated   = "mission.updated"
	MissionRemoved   = "mission.removed"
	MissionStarted   = "mission.started"
	MissionCompleted = "mission.completed"
	MissionFailed    = "mission.failed"
	CrewJoined       = "crew.joined"
	CrewLeft         = "crew.left"
)

// Types lists every event type the engine emits.
func Types() []string {
	return []string{MissionCreated, MissionUpdated, MissionRemoved, MissionStarted, MissionCompleted, MissionFailed, CrewJoined, CrewLeft}
}

type Payload map[string]any

// New builds an event stamped with now.
func New(now time.Time, evtType string, missionID, actorID int64, payload Payload) (domain.Event, error) {
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return domain.Event{
		TS:        now.UTC().Format(time.RFC3339),
		Type:      evtType,
		MissionID: missionID,
		ActorID:   actorID,
		Payload:   string(data),
	}, nil
}

// Writer appends events inside the caller's transaction.
type Writer struct{}

func (Writer) Append(ctx context.Context, tx *sql.Tx, evt domain.Event) (int64, error) {
	if evt.Payload == "" {
		evt.Payload = "{}"
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,mission_id,actor_id,payload_json) VALUES (?,?,?,?,?)`,
		evt.TS, evt.Type, evt.MissionID, evt.ActorID, evt.Payload)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
