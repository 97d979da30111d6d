package repo

import (
	"context"
	"database/sql"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/store"
)

type sqlTx struct {
	tx     *sql.Tx
	events events.Writer
}

var _ store.Tx = sqlTx{}

// LockMission touches the mission row so the transaction holds the write
// lock before any precondition is read.
func (t sqlTx) LockMission(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE missions SET updated_at=updated_at WHERE id=? AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t sqlTx) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	return getMission(ctx, t.tx, id)
}

func (t sqlTx) CountCrew(ctx context.Context, missionID int64) (int, error) {
	return countCrew(ctx, t.tx, missionID)
}

func (t sqlTx) SetStatus(ctx context.Context, id, chiefID int64, status domain.Status, at string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE missions SET status=?, updated_at=? WHERE id=? AND chief_id=? AND deleted_at IS NULL`,
		string(status), at, id, chiefID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	return id, nil
}

func (t sqlTx) IsMember(ctx context.Context, missionID, brawlerID int64) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM crew_memberships WHERE mission_id=? AND brawler_id=?`, missionID, brawlerID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// InsertMember writes the row only if the crew is still below max when the
// statement runs.
func (t sqlTx) InsertMember(ctx context.Context, m domain.Membership, max int) error {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO crew_memberships(mission_id,brawler_id,joined_at)
SELECT ?,?,?
WHERE (SELECT COUNT(*) FROM crew_memberships WHERE mission_id=?) < ?
  AND EXISTS (SELECT 1 FROM missions WHERE id=? AND deleted_at IS NULL)`,
		m.MissionID, m.BrawlerID, m.JoinedAt, m.MissionID, max, m.MissionID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := getMission(ctx, t.tx, m.MissionID); err != nil {
		return err
	}
	return ErrFull
}

func (t sqlTx) DeleteMember(ctx context.Context, missionID, brawlerID int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM crew_memberships WHERE mission_id=? AND brawler_id=?`, missionID, brawlerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t sqlTx) InsertMission(ctx context.Context, m domain.Mission) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO missions(name,description,status,chief_id,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		m.Name, nullable(m.Description), string(m.Status), m.ChiefID, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t sqlTx) UpdateMission(ctx context.Context, m domain.Mission) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE missions SET name=?, description=?, updated_at=? WHERE id=? AND deleted_at IS NULL`,
		m.Name, nullable(m.Description), m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteMission marks the mission deleted and clears its roster.
func (t sqlTx) SoftDeleteMission(ctx context.Context, id int64, at string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE missions SET deleted_at=?, updated_at=? WHERE id=? AND deleted_at IS NULL`, at, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = t.tx.ExecContext(ctx, `DELETE FROM crew_memberships WHERE mission_id=?`, id)
	return err
}

func (t sqlTx) EnsureBrawler(ctx context.Context, b domain.Brawler) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO brawlers(id,display_name,created_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=COALESCE(excluded.display_name, brawlers.display_name)`,
		b.ID, nullable(b.DisplayName), b.CreatedAt)
	return err
}

func (t sqlTx) AppendEvent(ctx context.Context, evt domain.Event) error {
	_, err := t.events.Append(ctx, t.tx, evt)
	return err
}
