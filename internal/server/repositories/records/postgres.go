package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/dbx"
	"github.com/dmitrijs2005/fieldsync/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// invalid_text_representation, raised for ids that are not uuids.
const invalidText = "22P02"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.Record) error {
	query := `
		INSERT INTO records (category, incident_id, room_id, owner, payload, seq_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		rec.Category, rec.IncidentID, rec.RoomID, rec.Owner, []byte(rec.Payload), rec.SeqTime).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, rec *models.Record) error {
	query := `
		UPDATE records SET payload = $1, seq_time = $2
		WHERE id = $3 AND category = $4 AND NOT deleted
		RETURNING incident_id, room_id, owner
	`
	err := r.db.QueryRowContext(ctx, query,
		[]byte(rec.Payload), rec.SeqTime, rec.ID, rec.Category).Scan(&rec.IncidentID, &rec.RoomID, &rec.Owner)
	if err != nil {
		return mapLookupErr(err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, category, id string, seq time.Time) error {
	query := `
		UPDATE records SET deleted = TRUE, payload = '{}', seq_time = $1
		WHERE id = $2 AND category = $3 AND NOT deleted
	`
	res, err := r.db.ExecContext(ctx, query, seq, id, category)
	if err != nil {
		return mapLookupErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListSince(ctx context.Context, q models.RecordQuery) ([]models.Record, error) {
	query := `
		SELECT id, category, incident_id, room_id, owner, payload, seq_time, deleted
		FROM records
		WHERE category = $1 AND incident_id = $2 AND room_id = $3 AND seq_time > $4
		ORDER BY seq_time
	`
	rows, err := r.db.QueryContext(ctx, query, q.Category, q.IncidentID, q.RoomID, q.Since)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		var (
			rec     models.Record
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Category, &rec.IncidentID, &rec.RoomID,
			&rec.Owner, &payload, &rec.SeqTime, &rec.Deleted); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		rec.Payload = append([]byte(nil), payload...)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func mapLookupErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == invalidText {
		return common.ErrorNotFound
	}
	return fmt.Errorf("db error: %w", err)
}
