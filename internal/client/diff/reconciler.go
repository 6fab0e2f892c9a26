package diff

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/fieldsync/internal/client/render"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
)

// Executor runs fn on the rendering goroutine and waits for it.
// *render.Loop implements it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Inline runs functions on the caller's goroutine. For tests and for
// structures that have no rendering thread.
type Inline struct{}

func (Inline) Do(_ context.Context, fn func()) error {
	fn()
	return nil
}

// Stats describes one reconciliation pass.
type Stats struct {
	Added    int
	Replaced int
	Removed  int
	Failed   int
	// Superseded is set when a newer snapshot made this pass stop early
	// (or not start at all).
	Superseded bool
}

// Ops is the number of handle operations the pass performed.
func (s Stats) Ops() int {
	return s.Added + s.Replaced + s.Removed
}

// Reconciler keeps the handles of one key space in line with the most
// recently applied snapshot.
//
// Passes are serialized. Each snapshot is stamped by Submit; a pass whose
// stamp is older than the latest submitted one is skipped, and a running
// pass stops between operations as soon as a newer snapshot is submitted.
// The applied payload index changes only after the matching handle
// operation ran, so a pass that stops early leaves a consistent state for
// the next one.
type Reconciler[T any, K comparable, P any, H any] struct {
	name     string
	src      Source[T, K, P]
	renderer render.Renderer[P, H]
	exec     Executor
	logger   logging.Logger

	mu      sync.Mutex
	applied map[K]P
	latest  atomic.Uint64
	// resync is set when a handle operation could not be confirmed; the
	// next pass rebuilds from scratch.
	resync bool

	// handles is only touched from inside exec.Do.
	handles map[K]H
}

func NewReconciler[T any, K comparable, P any, H any](
	name string,
	src Source[T, K, P],
	renderer render.Renderer[P, H],
	exec Executor,
	logger logging.Logger,
) *Reconciler[T, K, P, H] {
	if exec == nil {
		exec = Inline{}
	}
	return &Reconciler[T, K, P, H]{
		name:     name,
		src:      src,
		renderer: renderer,
		exec:     exec,
		logger:   logger.With("overlay", name),
		applied:  make(map[K]P),
		handles:  make(map[K]H),
	}
}

// Submit stamps a new snapshot and returns its generation.
func (r *Reconciler[T, K, P, H]) Submit() uint64 {
	return r.latest.Add(1)
}

// Reconcile submits items and applies them right away.
func (r *Reconciler[T, K, P, H]) Reconcile(ctx context.Context, items []T) (Stats, error) {
	return r.Apply(ctx, r.Submit(), items)
}

// Clear tears every handle down.
func (r *Reconciler[T, K, P, H]) Clear(ctx context.Context) (Stats, error) {
	return r.Reconcile(ctx, nil)
}

func (r *Reconciler[T, K, P, H]) superseded(gen uint64) bool {
	return gen < r.latest.Load()
}

// Apply reconciles the snapshot stamped gen.
func (r *Reconciler[T, K, P, H]) Apply(ctx context.Context, gen uint64, items []T) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats Stats
	if r.superseded(gen) {
		stats.Superseded = true
		return stats, nil
	}

	if r.resync {
		if err := r.exec.Do(ctx, r.teardown); err != nil {
			return stats, err
		}
		r.applied = make(map[K]P)
		r.resync = false
	}

	for _, c := range Plan(r.applied, items, r.src) {
		if r.superseded(gen) {
			stats.Superseded = true
			r.logger.Debug(ctx, "reconcile pass superseded", "generation", gen)
			break
		}
		if err := r.step(ctx, c, &stats); err != nil {
			r.resync = true
			return stats, err
		}
	}
	return stats, nil
}

func (r *Reconciler[T, K, P, H]) step(ctx context.Context, c Change[K, P], stats *Stats) error {
	var (
		removed  bool
		built    bool
		buildErr error
	)

	err := r.exec.Do(ctx, func() {
		switch c.Op {
		case OpRemoveAll:
			r.teardown()
			removed = true
		case OpRemove:
			removed = r.drop(c.Key)
		case OpReplace:
			removed = r.drop(c.Key)
			built, buildErr = r.build(c.Key, c.Payload)
		case OpAdd:
			built, buildErr = r.build(c.Key, c.Payload)
		}
	})
	if err != nil {
		return err
	}

	switch c.Op {
	case OpRemoveAll:
		stats.Removed += len(r.applied)
		r.applied = make(map[K]P)
		return nil
	case OpRemove:
		if removed {
			stats.Removed++
		}
		delete(r.applied, c.Key)
		return nil
	}

	if !built {
		stats.Failed++
		delete(r.applied, c.Key)
		r.logger.Warn(ctx, "skipping key, handle construction failed", "key", c.Key, "op", c.Op.String(), "error", buildErr)
		return nil
	}

	if c.Op == OpReplace {
		stats.Replaced++
	} else {
		stats.Added++
	}
	r.applied[c.Key] = c.Payload
	return nil
}

// drop, build and teardown run on the executor.

func (r *Reconciler[T, K, P, H]) drop(k K) bool {
	h, ok := r.handles[k]
	if !ok {
		return false
	}
	r.renderer.RemoveHandle(h)
	delete(r.handles, k)
	return true
}

func (r *Reconciler[T, K, P, H]) build(k K, p P) (bool, error) {
	h, err := r.renderer.AddHandle(p)
	if err != nil {
		return false, err
	}
	r.handles[k] = h
	return true, nil
}

func (r *Reconciler[T, K, P, H]) teardown() {
	for k, h := range r.handles {
		r.renderer.RemoveHandle(h)
		delete(r.handles, k)
	}
}

// Keys returns the keys of the last applied snapshot.
func (r *Reconciler[T, K, P, H]) Keys() []K {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]K, 0, len(r.applied))
	for k := range r.applied {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of applied keys.
func (r *Reconciler[T, K, P, H]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied)
}
