// Package records stores the server copies of synced entities. Deletes
// leave tombstones behind so incremental pulls can report them.
package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/server/models"
)

type Repository interface {
	// Create inserts rec and fills in its id.
	Create(ctx context.Context, rec *models.Record) error
	// Update replaces the payload of a live record and stamps seq. The
	// stored scope and owner are copied back into rec. Missing or deleted
	// records yield common.ErrorNotFound.
	Update(ctx context.Context, rec *models.Record) error
	// Delete turns a live record into a tombstone stamped with seq.
	Delete(ctx context.Context, category, id string, seq time.Time) error
	// ListSince returns records and tombstones of q's category and exact
	// scope whose seq time is after q.Since, oldest first.
	ListSince(ctx context.Context, q models.RecordQuery) ([]models.Record, error)
}
