package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/store"
)

// Repo is the SQLite-backed store.Store.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
}

var (
	ErrNotFound  = store.ErrNotFound
	ErrDuplicate = store.ErrDuplicate
	ErrFull      = store.ErrFull
)

var _ store.Store = Repo{}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InTx runs fn in a transaction, rolling back on error or cancellation.
func (r Repo) InTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(sqlTx{tx: tx, events: r.Events}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const missionColumns = `m.id,m.name,COALESCE(m.description,''),m.status,m.chief_id,m.created_at,m.updated_at,m.deleted_at,
	(SELECT COUNT(*) FROM crew_memberships c WHERE c.mission_id=m.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (domain.Mission, error) {
	var m domain.Mission
	var status string
	var deletedAt sql.NullString
	err := row.Scan(&m.ID, &m.Name, &m.Description, &status, &m.ChiefID, &m.CreatedAt, &m.UpdatedAt, &deletedAt, &m.CrewCount)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Status = domain.Status(status)
	if !m.Status.Valid() {
		return m, fmt.Errorf("mission %d has unknown status %q", m.ID, status)
	}
	if deletedAt.Valid {
		m.DeletedAt = &deletedAt.String
	}
	return m, nil
}

func getMission(ctx context.Context, q querier, id int64) (domain.Mission, error) {
	return scanMission(q.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions m WHERE m.id=? AND m.deleted_at IS NULL`, id))
}

func countCrew(ctx context.Context, q querier, missionID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM crew_memberships WHERE mission_id=?`, missionID).Scan(&n)
	return n, err
}

func (r Repo) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	return getMission(ctx, r.DB, id)
}

func (r Repo) CountCrew(ctx context.Context, missionID int64) (int, error) {
	return countCrew(ctx, r.DB, missionID)
}

func (r Repo) ListMissions(ctx context.Context, f domain.MissionFilter) ([]domain.Mission, error) {
	clauses := []string{"m.deleted_at IS NULL"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "m.status=?")
		args = append(args, string(f.Status))
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		clauses = append(clauses, "m.name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(name)+"%")
	}
	if f.ChiefID != 0 {
		clauses = append(clauses, "m.chief_id=?")
		args = append(args, f.ChiefID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "m.id<?")
		args = append(args, f.Cursor)
	}
	query := `SELECT ` + missionColumns + ` FROM missions m WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY m.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r Repo) ListCrew(ctx context.Context, missionID int64) ([]domain.CrewMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT c.brawler_id, COALESCE(b.display_name,''), c.joined_at
FROM crew_memberships c
JOIN missions m ON m.id=c.mission_id AND m.deleted_at IS NULL
LEFT JOIN brawlers b ON b.id=c.brawler_id
WHERE c.mission_id=?
ORDER BY c.joined_at ASC, c.brawler_id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CrewMember
	for rows.Next() {
		var cm domain.CrewMember
		if err := rows.Scan(&cm.BrawlerID, &cm.DisplayName, &cm.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, cm)
	}
	return res, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.MissionID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListEvents returns events newest first, starting below f.Cursor when set.
func (r Repo) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.MissionID != 0 {
		clauses = append(clauses, "mission_id=?")
		args = append(args, f.MissionID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf(`SELECT id,ts,type,mission_id,actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND ")), args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,mission_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}
