package server

import (
	"encoding/json"

	"crewline/internal/domain"
)

// Request payloads

type CreateMissionRequest struct {
	Name        string `json:"name" minLength:"1" maxLength:"120"`
	Description string `json:"description,omitempty"`
	// ChiefName optionally records the caller's display name.
	ChiefName string `json:"chief_name,omitempty"`
}

type UpdateMissionRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type DevLoginRequest struct {
	BrawlerID   int64  `json:"brawler_id" minimum:"1"`
	DisplayName string `json:"display_name,omitempty"`
}

// Response payloads

type MissionResponse = domain.Mission

type MembershipResponse = domain.Membership

type TransitionResponse struct {
	MissionID int64         `json:"mission_id"`
	Status    domain.Status `json:"status"`
}

type paginatedMissions struct {
	Items      []MissionResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type crewList struct {
	Items []domain.CrewMember `json:"items"`
}

type EventResponse struct {
	ID        int64           `json:"id"`
	TS        string          `json:"ts"`
	Type      string          `json:"type"`
	MissionID int64           `json:"mission_id"`
	ActorID   int64           `json:"actor_id"`
	Payload   json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	BrawlerID int64  `json:"brawler_id"`
	Source    string `json:"source"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:        evt.ID,
		TS:        evt.TS,
		Type:      evt.Type,
		MissionID: evt.MissionID,
		ActorID:   evt.ActorID,
		Payload:   payload,
	}
}

func mapMissions(items []domain.Mission) []MissionResponse {
	out := make([]MissionResponse, 0, len(items))
	return append(out, items...)
}
