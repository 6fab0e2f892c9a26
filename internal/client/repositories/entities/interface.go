package entities

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/status"
)

// Repository describes CRUD and query operations on entities.
type Repository interface {
	// Upsert inserts e when e.ID is 0 and replaces the row with the same
	// local id otherwise. It returns the local id.
	Upsert(ctx context.Context, e *models.Entity) (int64, error)

	// GetByID returns common.ErrorNotFound when there is no such row.
	GetByID(ctx context.Context, id int64) (*models.Entity, error)

	// GetByRemoteID looks a row up by its server identity.
	GetByRemoteID(ctx context.Context, category models.Category, remoteID string) (*models.Entity, error)

	// ListByStatus returns the rows of owner in any of the given statuses,
	// oldest first. An empty owner matches every owner.
	ListByStatus(ctx context.Context, owner string, statuses ...status.SendStatus) ([]models.Entity, error)

	// ListByScope returns the rows of one category in exactly the given scope.
	ListByScope(ctx context.Context, category models.Category, scope models.Scope) ([]models.Entity, error)

	// ListByIncident returns every row of the incident that is either
	// incident wide or belongs to roomID.
	ListByIncident(ctx context.Context, incidentID, roomID int64) ([]models.Entity, error)

	// PullCursor is the server time the last pull of a category and scope
	// reached. It is zero before the first pull.
	PullCursor(ctx context.Context, category models.Category, scope models.Scope) (time.Time, error)

	// AdvancePullCursor moves the cursor to t. It never moves backwards.
	AdvancePullCursor(ctx context.Context, category models.Category, scope models.Scope, t time.Time) error

	DeleteByID(ctx context.Context, id int64) error

	// Clear removes every row and every pull cursor.
	Clear(ctx context.Context) error
}
