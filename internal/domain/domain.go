package domain

type Mission struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      Status  `json:"status" enum:"Open,InProgress,Completed,Failed"`
	ChiefID     int64   `json:"chief_id"`
	CrewCount   int     `json:"crew_count"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	DeletedAt   *string `json:"deleted_at,omitempty" format:"date-time"`
}

// Deleted reports whether the mission has been soft-deleted.
func (m Mission) Deleted() bool {
	return m.DeletedAt != nil
}

type Membership struct {
	MissionID int64  `json:"mission_id"`
	BrawlerID int64  `json:"brawler_id"`
	JoinedAt  string `json:"joined_at" format:"date-time"`
}

type Brawler struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// CrewMember is a roster row joined with the brawler registry.
type CrewMember struct {
	BrawlerID   int64  `json:"brawler_id"`
	DisplayName string `json:"display_name,omitempty"`
	JoinedAt    string `json:"joined_at" format:"date-time"`
}

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	MissionID int64  `json:"mission_id"`
	ActorID   int64  `json:"actor_id"`
	Payload   string `json:"payload_json"`
}

type MissionFilter struct {
	Status  Status
	Name    string
	ChiefID int64
	Limit   int
	// Cursor is the id of the last mission of the previous page.
	Cursor int64
}

type EventFilter struct {
	MissionID int64
	Type      string
	Limit     int
	Cursor    int64
}
