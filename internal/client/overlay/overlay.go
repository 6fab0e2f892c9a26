// Package overlay keeps the map layers of the selected incident and room in
// line with the local store. Each layer is one diff.Reconciler fed with
// store snapshots of its category.
package overlay

import (
	"context"

	"github.com/dmitrijs2005/fieldsync/internal/client/diff"
	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/render"
	"github.com/dmitrijs2005/fieldsync/internal/client/status"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
)

// Overlay is one map layer driven by entities of a single category.
type Overlay interface {
	Name() string
	Category() models.Category
	// Sync reconciles the layer with a snapshot of its category.
	Sync(ctx context.Context, items []models.Entity) (diff.Stats, error)
	Clear(ctx context.Context) (diff.Stats, error)
	Len() int
}

type layer[K comparable, P any, H any] struct {
	name     string
	category models.Category
	rec      *diff.Reconciler[models.Entity, K, P, H]
}

func newLayer[K comparable, P any, H any](
	name string,
	category models.Category,
	src diff.Source[models.Entity, K, P],
	renderer render.Renderer[P, H],
	exec diff.Executor,
	logger logging.Logger,
) *layer[K, P, H] {
	active := src.Active
	src.Active = func(e models.Entity) bool {
		if e.Status == status.Delete || e.Status == status.Deleting {
			return false
		}
		return active == nil || active(e)
	}
	return &layer[K, P, H]{
		name:     name,
		category: category,
		rec:      diff.NewReconciler(name, src, renderer, exec, logger),
	}
}

func (l *layer[K, P, H]) Name() string              { return l.name }
func (l *layer[K, P, H]) Category() models.Category { return l.category }
func (l *layer[K, P, H]) Len() int                  { return l.rec.Len() }

func (l *layer[K, P, H]) Sync(ctx context.Context, items []models.Entity) (diff.Stats, error) {
	return l.rec.Reconcile(ctx, items)
}

func (l *layer[K, P, H]) Clear(ctx context.Context) (diff.Stats, error) {
	return l.rec.Clear(ctx)
}
