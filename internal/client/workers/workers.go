// Package workers holds the units of sync work the scheduler runs: an
// incremental pull of one category and the post, update and delete pushes of
// a single entity.
//
// A push always re-reads the entity, requires the status that asked for it
// and applies its completion event to whatever status the entity has by
// then. Local changes made while a push is outstanding are therefore kept.
package workers

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/status"
	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
)

type Store interface {
	Get(ctx context.Context, id int64) (*models.Entity, error)
	Transition(ctx context.Context, id int64, ev status.Event, edit func(*models.Entity)) (*models.Entity, status.Step, error)
	Receive(ctx context.Context, e models.Entity) (bool, error)
	RemoveRemote(ctx context.Context, category models.Category, remoteID string) (bool, error)
	PullCursor(ctx context.Context, category models.Category, scope models.Scope) (time.Time, error)
	AdvancePullCursor(ctx context.Context, category models.Category, scope models.Scope, t time.Time) error
}

type Remote interface {
	Push(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Update(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Delete(ctx context.Context, category models.Category, remoteID string) error
	Pull(ctx context.Context, req models.PullRequest) (*models.PullResult, error)
}

type Workers struct {
	store  Store
	remote Remote
	// notFound tells a server "no such record" apart from other failures.
	notFound func(error) bool
	logger   logging.Logger
}

func New(store Store, remote Remote, notFound func(error) bool, logger logging.Logger) *Workers {
	if notFound == nil {
		notFound = func(error) bool { return false }
	}
	return &Workers{
		store:    store,
		remote:   remote,
		notFound: notFound,
		logger:   logger.With("module", "workers"),
	}
}

// Result is the entity as a push left it. Entity is nil when the push
// removed it or found nothing to do.
type Result struct {
	Entity *models.Entity
	// Stale is set when the entity no longer waited for this push.
	Stale bool
}

// Push runs the push of kind for entity id.
func (w *Workers) Push(ctx context.Context, id int64, kind models.OpKind) (Result, error) {
	switch kind {
	case models.OpPost:
		return w.Post(ctx, id)
	case models.OpUpdate:
		return w.Update(ctx, id)
	case models.OpDelete:
		return w.Delete(ctx, id)
	default:
		return Result{Stale: true}, nil
	}
}

// begin loads id and moves it to the in-flight status of kind. ok is false
// when the entity is gone or not waiting for kind.
func (w *Workers) begin(ctx context.Context, id int64, kind models.OpKind, needRemote bool) (*models.Entity, bool, error) {
	e, err := w.store.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if e.Status != kind.Pending() {
		w.logger.Debug(ctx, "stale push", "id", id, "kind", kind, "status", e.Status)
		return nil, false, nil
	}
	if needRemote && e.RemoteID == "" {
		// the post is still outstanding; its completion asks again
		w.logger.Debug(ctx, "push waits for post", "id", id, "kind", kind)
		return nil, false, nil
	}

	started, _, _ := kind.Events()
	e, _, err = w.store.Transition(ctx, id, started, nil)
	if err != nil {
		if errors.Is(err, status.ErrIllegalTransition) || isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return e, true, nil
}

// finish applies ev to the current status of id.
func (w *Workers) finish(ctx context.Context, id int64, ev status.Event, edit func(*models.Entity)) (Result, error) {
	e, step, err := w.store.Transition(ctx, id, ev, edit)
	if err != nil {
		if isNotFound(err) {
			return Result{}, nil
		}
		return Result{}, err
	}
	if step.Remove {
		return Result{}, nil
	}
	return Result{Entity: e}, nil
}

func (w *Workers) Post(ctx context.Context, id int64) (Result, error) {
	e, ok, err := w.begin(ctx, id, models.OpPost, false)
	if err != nil || !ok {
		return Result{Stale: err == nil}, err
	}

	remote, err := w.remote.Push(ctx, e)
	if err != nil {
		if _, ferr := w.finish(ctx, id, status.PostFailed, nil); ferr != nil {
			w.logger.Error(ctx, "post failure not recorded", "id", id, "error", ferr)
		}
		return Result{}, err
	}

	return w.finish(ctx, id, status.PostSucceeded, func(cur *models.Entity) {
		cur.RemoteID = remote.RemoteID
		cur.SeqTime = remote.SeqTime
	})
}

func (w *Workers) Update(ctx context.Context, id int64) (Result, error) {
	e, ok, err := w.begin(ctx, id, models.OpUpdate, true)
	if err != nil || !ok {
		return Result{Stale: err == nil}, err
	}

	remote, err := w.remote.Update(ctx, e)
	if err != nil {
		if _, ferr := w.finish(ctx, id, status.UpdateFailed, nil); ferr != nil {
			w.logger.Error(ctx, "update failure not recorded", "id", id, "error", ferr)
		}
		return Result{}, err
	}

	return w.finish(ctx, id, status.UpdateSucceeded, func(cur *models.Entity) {
		cur.SeqTime = remote.SeqTime
	})
}

func (w *Workers) Delete(ctx context.Context, id int64) (Result, error) {
	e, ok, err := w.begin(ctx, id, models.OpDelete, true)
	if err != nil || !ok {
		return Result{Stale: err == nil}, err
	}

	err = w.remote.Delete(ctx, e.Category, e.RemoteID)
	if err != nil && !w.notFound(err) {
		if _, ferr := w.finish(ctx, id, status.DeleteFailed, nil); ferr != nil {
			w.logger.Error(ctx, "delete failure not recorded", "id", id, "error", ferr)
		}
		return Result{}, err
	}

	return w.finish(ctx, id, status.DeleteSucceeded, nil)
}

type PullStats struct {
	Applied int
	// Skipped counts records shadowed by a pending local change.
	Skipped int
	Removed int
	Invalid int
}

// Pull fetches what changed in category and scope since the pull cursor and
// merges it into the store.
func (w *Workers) Pull(ctx context.Context, category models.Category, scope models.Scope) (PullStats, error) {
	scope = scope.ForCategory(category)

	res, err := w.Fetch(ctx, category, scope)
	if err != nil {
		return PullStats{}, err
	}
	return w.Merge(ctx, category, scope, res)
}

// Fetch asks the server for the changes after the pull cursor of category
// in scope. It does not write anything.
func (w *Workers) Fetch(ctx context.Context, category models.Category, scope models.Scope) (*models.PullResult, error) {
	scope = scope.ForCategory(category)

	since, err := w.store.PullCursor(ctx, category, scope)
	if err != nil {
		return nil, err
	}
	return w.remote.Pull(ctx, models.PullRequest{Category: category, Scope: scope, Since: since})
}

// Merge applies a fetched result and then advances the pull cursor. Records
// the store rejects are logged and counted, the rest of the batch still
// applies. A store failure aborts before the cursor moves, so the next pull
// fetches the same changes again.
func (w *Workers) Merge(ctx context.Context, category models.Category, scope models.Scope, res *models.PullResult) (PullStats, error) {
	var stats PullStats
	scope = scope.ForCategory(category)
	if res == nil {
		res = &models.PullResult{}
	}

	for _, remoteID := range res.Deleted {
		removed, err := w.store.RemoveRemote(ctx, category, remoteID)
		if err != nil {
			return stats, err
		}
		if removed {
			stats.Removed++
		}
	}

	until := res.Until
	for _, rec := range res.Records {
		if rec.SeqTime.After(until) {
			until = rec.SeqTime
		}
		if rec.Category != category {
			w.logger.Warn(ctx, "skipping record of another category", "category", category, "got", rec.Category, "remote_id", rec.RemoteID)
			stats.Invalid++
			continue
		}

		applied, err := w.store.Receive(ctx, rec)
		if errors.Is(err, common.ErrorValidation) {
			w.logger.Warn(ctx, "skipping invalid record", "category", category, "remote_id", rec.RemoteID, "error", err)
			stats.Invalid++
			continue
		}
		if err != nil {
			return stats, err
		}
		if applied {
			stats.Applied++
		} else {
			stats.Skipped++
		}
	}

	for _, bad := range res.Invalid {
		w.logger.Warn(ctx, "skipping malformed record", "category", category, "error", bad)
	}
	stats.Invalid += len(res.Invalid)

	if err := w.store.AdvancePullCursor(ctx, category, scope, until); err != nil {
		return stats, err
	}

	w.logger.Debug(ctx, "pulled", "category", category, "scope", scope.String(),
		"applied", stats.Applied, "skipped", stats.Skipped, "removed", stats.Removed, "invalid", stats.Invalid)
	return stats, nil
}
