package overlay

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
)

// Watcher streams store snapshots of one category in one scope.
type Watcher interface {
	Watch(ctx context.Context, category models.Category, scope models.Scope) <-chan []models.Entity
}

// Map drives a set of overlays from the store for the selected scope.
type Map struct {
	store    Watcher
	overlays []Overlay
	logger   logging.Logger

	mu     sync.Mutex
	scope  models.Scope
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMap(store Watcher, logger logging.Logger, overlays ...Overlay) *Map {
	return &Map{
		store:    store,
		overlays: overlays,
		logger:   logger.With("module", "map"),
	}
}

func (m *Map) Overlays() []Overlay {
	return m.overlays
}

// Scope is the scope the overlays currently follow.
func (m *Map) Scope() models.Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

// SetScope stops following the old scope and follows scope. The first
// snapshot of the new scope replaces whatever the old scope left on the map.
func (m *Map) SetScope(ctx context.Context, scope models.Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.scope = scope

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, o := range m.overlays {
		snaps := m.store.Watch(ctx, o.Category(), scope)
		m.wg.Add(1)
		go m.follow(ctx, o, snaps)
	}
}

func (m *Map) follow(ctx context.Context, o Overlay, snaps <-chan []models.Entity) {
	defer m.wg.Done()
	for snap := range snaps {
		stats, err := o.Sync(ctx, snap)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn(ctx, "overlay sync failed", "overlay", o.Name(), "error", err)
			continue
		}
		if stats.Ops() > 0 || stats.Failed > 0 {
			m.logger.Debug(ctx, "overlay synced", "overlay", o.Name(),
				"added", stats.Added, "replaced", stats.Replaced, "removed", stats.Removed, "failed", stats.Failed)
		}
	}
}

func (m *Map) stopLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.wg.Wait()
}

// Stop stops following the store and clears every overlay.
func (m *Map) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	for _, o := range m.overlays {
		if _, err := o.Clear(ctx); err != nil {
			m.logger.Warn(ctx, "overlay clear failed", "overlay", o.Name(), "error", err)
		}
	}
}
