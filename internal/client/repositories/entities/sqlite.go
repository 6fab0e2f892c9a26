package entities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/status"
	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `id, remote_id, category, incident_id, room_id, owner, status, payload, last_update, seq_time`

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func remoteArg(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*models.Entity, error) {
	var (
		e          models.Entity
		remote     sql.NullString
		category   string
		st         int64
		payload    []byte
		lastUpdate int64
		seqTime    int64
	)
	if err := row.Scan(&e.ID, &remote, &category, &e.Scope.IncidentID, &e.Scope.RoomID,
		&e.Owner, &st, &payload, &lastUpdate, &seqTime); err != nil {
		return nil, err
	}
	e.Payload = payload
	e.RemoteID = remote.String
	e.Category = models.Category(category)
	e.Status = status.SendStatus(st)
	e.LastUpdate = fromMillis(lastUpdate)
	e.SeqTime = fromMillis(seqTime)
	return &e, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.Entity) (int64, error) {
	if !e.Status.Valid() {
		return 0, fmt.Errorf("upsert entity %d: %w", e.ID, status.ErrUnknownStatus)
	}
	args := []any{remoteArg(e.RemoteID), string(e.Category), e.Scope.IncidentID, e.Scope.RoomID,
		e.Owner, int64(e.Status), []byte(e.Payload), toMillis(e.LastUpdate), toMillis(e.SeqTime)}

	if e.ID == 0 {
		var id int64
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO entities (remote_id, category, incident_id, room_id, owner, status, payload, last_update, seq_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`, args...).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert entity: %w", err)
		}
		return id, nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entities (id, remote_id, category, incident_id, room_id, owner, status, payload, last_update, seq_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_id = excluded.remote_id,
			category = excluded.category,
			incident_id = excluded.incident_id,
			room_id = excluded.room_id,
			owner = excluded.owner,
			status = excluded.status,
			payload = excluded.payload,
			last_update = excluded.last_update,
			seq_time = excluded.seq_time`, append([]any{e.ID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert entity %d: %w", e.ID, err)
	}
	return e.ID, nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, where string, args ...any) (*models.Entity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM entities WHERE `+where, args...)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Entity, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *SQLiteRepository) GetByRemoteID(ctx context.Context, category models.Category, remoteID string) (*models.Entity, error) {
	return r.getOne(ctx, `category = ? AND remote_id = ?`, string(category), remoteID)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entities: %w", err)
	}
	defer rows.Close()

	var result []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, owner string, statuses ...status.SendStatus) ([]models.Entity, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, int64(s))
	}

	query := `SELECT ` + columns + ` FROM entities WHERE status IN (` + marks + `)`
	if owner != "" {
		query += ` AND owner = ?`
		args = append(args, owner)
	}
	return r.list(ctx, query+` ORDER BY id`, args...)
}

func (r *SQLiteRepository) ListByScope(ctx context.Context, category models.Category, scope models.Scope) ([]models.Entity, error) {
	return r.list(ctx, `SELECT `+columns+` FROM entities
		WHERE category = ? AND incident_id = ? AND room_id = ?
		ORDER BY id`, string(category), scope.IncidentID, scope.RoomID)
}

func (r *SQLiteRepository) ListByIncident(ctx context.Context, incidentID, roomID int64) ([]models.Entity, error) {
	return r.list(ctx, `SELECT `+columns+` FROM entities
		WHERE incident_id = ? AND (room_id = 0 OR room_id = ?)
		ORDER BY id`, incidentID, roomID)
}

func (r *SQLiteRepository) PullCursor(ctx context.Context, category models.Category, scope models.Scope) (time.Time, error) {
	var ms int64
	err := r.db.QueryRowContext(ctx, `
		SELECT seq_time FROM pull_cursors
		WHERE category = ? AND incident_id = ? AND room_id = ?`,
		string(category), scope.IncidentID, scope.RoomID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get pull cursor: %w", err)
	}
	return fromMillis(ms), nil
}

func (r *SQLiteRepository) AdvancePullCursor(ctx context.Context, category models.Category, scope models.Scope, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pull_cursors (category, incident_id, room_id, seq_time) VALUES (?, ?, ?, ?)
		ON CONFLICT(category, incident_id, room_id) DO UPDATE SET seq_time = MAX(seq_time, excluded.seq_time)`,
		string(category), scope.IncidentID, scope.RoomID, toMillis(t))
	if err != nil {
		return fmt.Errorf("failed to advance pull cursor: %w", err)
	}
	return nil
}

// DeleteByID removes the row. It expects exactly one row to be affected.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return fmt.Errorf("failed to clear entities: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pull_cursors`); err != nil {
		return fmt.Errorf("failed to clear pull cursors: %w", err)
	}
	return nil
}
