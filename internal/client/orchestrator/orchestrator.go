// Package orchestrator decides when sync work runs. It turns user actions,
// scope changes, connectivity changes and polling into scheduler jobs, and
// guarantees at most one outstanding push per entity and push kind.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/scheduler"
	"github.com/dmitrijs2005/fieldsync/internal/client/status"
	"github.com/dmitrijs2005/fieldsync/internal/client/workers"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
)

var (
	ErrNoScope = errors.New("no incident selected")
	// ErrMergeRejected is returned by a pull whose merge the scheduler did
	// not accept.
	ErrMergeRejected = errors.New("merge not accepted")
)

type Store interface {
	workers.Store
	Create(ctx context.Context, e *models.Entity) (*models.Entity, error)
	GetPending(ctx context.Context, owner string, kind models.OpKind) ([]models.Entity, error)
	InFlight(ctx context.Context) ([]models.Entity, error)
}

type Session interface {
	IsAuthenticated() bool
	Username() string
	Scope() models.Scope
	SelectIncident(ctx context.Context, id int64) error
	SelectRoom(ctx context.Context, id int64) error
}

type Scheduler interface {
	Submit(job scheduler.Job) bool
	Observe(name string) (<-chan scheduler.State, bool)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type pushKey struct {
	id   int64
	kind models.OpKind
}

type Orchestrator struct {
	store   Store
	session Session
	sched   Scheduler
	workers *workers.Workers
	remote  Pinger
	logger  logging.Logger

	mu       sync.Mutex
	inflight map[pushKey]struct{}

	online        atomic.Bool
	onScopeChange func(context.Context, models.Scope)
	onOnline      func(bool)
}

func New(store Store, session Session, sched Scheduler, w *workers.Workers, remote Pinger, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		session:  session,
		sched:    sched,
		workers:  w,
		remote:   remote,
		logger:   logger.With("module", "orchestrator"),
		inflight: make(map[pushKey]struct{}),
	}
}

// OnScopeChange registers fn to run after the selected incident or room
// changed. Set it before use.
func (o *Orchestrator) OnScopeChange(fn func(context.Context, models.Scope)) {
	o.onScopeChange = fn
}

// OnOnlineChange registers fn to run when a probe flips connectivity.
// Set it before use.
func (o *Orchestrator) OnOnlineChange(fn func(online bool)) {
	o.onOnline = fn
}

func PushJobName(kind models.OpKind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

func PullJobName(category models.Category, scope models.Scope) string {
	return fmt.Sprintf("pull:%s:%d:%d", category, scope.IncidentID, scope.RoomID)
}

// MergeJobName names the database half of a pull.
func MergeJobName(category models.Category, scope models.Scope) string {
	return fmt.Sprintf("merge:%s:%d:%d", category, scope.IncidentID, scope.RoomID)
}

const ProbeJobName = "probe"

// Observe streams the states of a job by name.
func (o *Orchestrator) Observe(name string) (<-chan scheduler.State, bool) {
	return o.sched.Observe(name)
}

func (o *Orchestrator) Online() bool {
	return o.online.Load()
}

// Push requests the push of kind for entity id. It reports false when the
// session is not authenticated or the same push is already outstanding.
func (o *Orchestrator) Push(ctx context.Context, id int64, kind models.OpKind) bool {
	if !o.session.IsAuthenticated() {
		return false
	}

	key := pushKey{id: id, kind: kind}
	o.mu.Lock()
	if _, busy := o.inflight[key]; busy {
		o.mu.Unlock()
		return false
	}
	o.inflight[key] = struct{}{}
	o.mu.Unlock()

	ok := o.sched.Submit(scheduler.Job{
		Name:   PushJobName(kind, id),
		Kind:   string(kind),
		Policy: scheduler.KeepExisting,
		Pool:   scheduler.PoolNetwork,
		Run: func(ctx context.Context) error {
			_, err := o.workers.Push(ctx, id, kind)
			return err
		},
		OnDone: func(final scheduler.State, err error) {
			o.release(key)
			if final == scheduler.Succeeded {
				o.followUp(context.WithoutCancel(ctx), id)
			}
		},
	})
	if !ok {
		o.release(key)
	}
	return ok
}

func (o *Orchestrator) release(key pushKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, key)
}

// followUp requests the push a local change made while the previous one
// was outstanding. Edits and deletes wait for the post to settle first.
func (o *Orchestrator) followUp(ctx context.Context, id int64) {
	e, err := o.store.Get(ctx, id)
	if err != nil {
		return
	}
	kind, ok := models.KindFor(e.Status)
	if !ok || (kind != models.OpPost && e.RemoteID == "") {
		return
	}
	o.Push(ctx, id, kind)
}

// PushPending requests a push of kind for every entity of the signed-in user
// waiting for one and returns how many were enqueued.
func (o *Orchestrator) PushPending(ctx context.Context, kind models.OpKind) int {
	if !o.session.IsAuthenticated() {
		return 0
	}
	pending, err := o.store.GetPending(ctx, o.session.Username(), kind)
	if err != nil {
		o.logger.Error(ctx, "listing pending failed", "kind", kind, "error", err)
		return 0
	}

	n := 0
	for _, e := range pending {
		if o.Push(ctx, e.ID, kind) {
			n++
		}
	}
	return n
}

// SendAllLocalContent flushes every pending local change: deletes, then
// new content, then edits.
func (o *Orchestrator) SendAllLocalContent(ctx context.Context) int {
	n := 0
	for _, kind := range models.OpKinds() {
		n += o.PushPending(ctx, kind)
	}
	if n > 0 {
		o.logger.Info(ctx, "sending local content", "jobs", n)
	}
	return n
}

func needsRoom(c models.Category) bool {
	return c.RoomScoped()
}

// Pull requests an incremental pull of category for the selected scope. The
// fetch runs on the network pool, then the pull waits for its merge into the
// store on the database pool.
func (o *Orchestrator) Pull(ctx context.Context, category models.Category) bool {
	if !o.session.IsAuthenticated() {
		return false
	}
	scope := o.session.Scope().ForCategory(category)
	if scope.IncidentID == 0 && category != models.CategoryTrackingLayer {
		return false
	}
	if needsRoom(category) && scope.RoomID == 0 {
		return false
	}

	return o.sched.Submit(scheduler.Job{
		Name:   PullJobName(category, scope),
		Kind:   "pull",
		Policy: scheduler.KeepExisting,
		Pool:   scheduler.PoolNetwork,
		Run: func(ctx context.Context) error {
			res, err := o.workers.Fetch(ctx, category, scope)
			if err != nil {
				return err
			}
			return o.merge(ctx, category, scope, res)
		},
	})
}

func (o *Orchestrator) merge(ctx context.Context, category models.Category, scope models.Scope, res *models.PullResult) error {
	name := MergeJobName(category, scope)
	done := make(chan error, 1)

	ok := o.sched.Submit(scheduler.Job{
		Name:   name,
		Kind:   "merge",
		Policy: scheduler.KeepExisting,
		Pool:   scheduler.PoolDB,
		Run: func(ctx context.Context) error {
			_, err := o.workers.Merge(ctx, category, scope, res)
			return err
		},
		OnDone: func(final scheduler.State, err error) {
			if final == scheduler.Cancelled && err == nil {
				err = context.Canceled
			}
			done <- err
		},
	})
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrMergeRejected)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	incidentCategories = []models.Category{
		models.CategoryCollabroom,
		models.CategoryTrackingLayer,
		models.CategoryTracking,
		models.CategoryReport,
		models.CategoryGeneralMessage,
	}
	roomCategories = []models.Category{
		models.CategoryMarkup,
		models.CategoryHazard,
		models.CategoryCollabroomLayer,
		models.CategoryChat,
	}
)

func (o *Orchestrator) pullAll(ctx context.Context, categories []models.Category) int {
	n := 0
	for _, c := range categories {
		if o.Pull(ctx, c) {
			n++
		}
	}
	return n
}

// RefreshIncident pulls everything incident wide.
func (o *Orchestrator) RefreshIncident(ctx context.Context) int {
	return o.pullAll(ctx, incidentCategories)
}

// RefreshCollabroom pulls everything of the selected room.
func (o *Orchestrator) RefreshCollabroom(ctx context.Context) int {
	return o.pullAll(ctx, roomCategories)
}

// RefreshAll is the polling tick.
func (o *Orchestrator) RefreshAll(ctx context.Context) int {
	return o.RefreshIncident(ctx) + o.RefreshCollabroom(ctx)
}

func (o *Orchestrator) scopeChanged(ctx context.Context) {
	if o.onScopeChange != nil {
		o.onScopeChange(ctx, o.session.Scope())
	}
}

// SelectIncident flushes local changes, switches incident and pulls it.
func (o *Orchestrator) SelectIncident(ctx context.Context, id int64) error {
	o.SendAllLocalContent(ctx)
	if err := o.session.SelectIncident(ctx, id); err != nil {
		return err
	}
	o.scopeChanged(ctx)
	o.RefreshIncident(ctx)
	return nil
}

// SelectCollabroom flushes local changes, enters room id of the selected
// incident and pulls it.
func (o *Orchestrator) SelectCollabroom(ctx context.Context, id int64) error {
	if o.session.Scope().IncidentID == 0 {
		return ErrNoScope
	}
	o.SendAllLocalContent(ctx)
	if err := o.session.SelectRoom(ctx, id); err != nil {
		return err
	}
	o.scopeChanged(ctx)
	o.Pull(ctx, models.CategoryCollabroom)
	o.RefreshCollabroom(ctx)
	return nil
}

// Probe checks connectivity in the background. A newer probe replaces one
// still waiting. Coming back online flushes local changes.
func (o *Orchestrator) Probe(ctx context.Context) bool {
	return o.sched.Submit(scheduler.Job{
		Name:   ProbeJobName,
		Kind:   "probe",
		Policy: scheduler.ReplacePending,
		Pool:   scheduler.PoolNetwork,
		Run: func(ctx context.Context) error {
			err := o.remote.Ping(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.setOnline(ctx, err == nil)
			return nil
		},
	})
}

func (o *Orchestrator) setOnline(ctx context.Context, online bool) {
	if o.online.Swap(online) == online {
		return
	}
	o.logger.Info(ctx, "connectivity changed", "online", online)
	if o.onOnline != nil {
		o.onOnline(online)
	}
	if online {
		o.SendAllLocalContent(ctx)
	}
}

// Recover reverts pushes a previous run left outstanding so they are sent
// again. It must run before any push is requested.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	n := 0

	inflight, err := o.store.InFlight(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range inflight {
		if _, _, err := o.store.Transition(ctx, e.ID, status.Interrupted, nil); err != nil {
			return n, err
		}
		n++
	}

	// edits and deletes of content whose post never completed
	for _, kind := range []models.OpKind{models.OpUpdate, models.OpDelete} {
		pending, err := o.store.GetPending(ctx, "", kind)
		if err != nil {
			return n, err
		}
		for _, e := range pending {
			if e.RemoteID != "" {
				continue
			}
			if _, _, err := o.store.Transition(ctx, e.ID, status.PostFailed, nil); err != nil {
				return n, err
			}
			n++
		}
	}

	if n > 0 {
		o.logger.Info(ctx, "recovered interrupted pushes", "count", n)
	}
	return n, nil
}

// Create stores new content in the selected scope and requests its post.
func (o *Orchestrator) Create(ctx context.Context, category models.Category, payload json.RawMessage) (*models.Entity, error) {
	scope := o.session.Scope().ForCategory(category)
	if scope.IncidentID == 0 {
		return nil, ErrNoScope
	}
	if needsRoom(category) && scope.RoomID == 0 {
		return nil, fmt.Errorf("%w: %s needs a room", ErrNoScope, category)
	}

	e, err := o.store.Create(ctx, &models.Entity{
		Category: category,
		Scope:    scope,
		Owner:    o.session.Username(),
		Payload:  payload,
	})
	if err != nil {
		return nil, err
	}
	o.Push(ctx, e.ID, models.OpPost)
	return e, nil
}

// Edit replaces the payload of entity id and requests the matching push.
func (o *Orchestrator) Edit(ctx context.Context, id int64, payload json.RawMessage) (*models.Entity, error) {
	e, _, err := o.store.Transition(ctx, id, status.Edit, func(e *models.Entity) {
		e.Payload = payload
	})
	if err != nil {
		return nil, err
	}
	if kind, ok := models.KindFor(e.Status); ok {
		o.Push(ctx, id, kind)
	}
	return e, nil
}

// Remove deletes entity id locally and requests the server delete when the
// server knows it.
func (o *Orchestrator) Remove(ctx context.Context, id int64) error {
	e, step, err := o.store.Transition(ctx, id, status.Remove, nil)
	if err != nil {
		return err
	}
	if step.Remove {
		return nil
	}
	if kind, ok := models.KindFor(e.Status); ok {
		o.Push(ctx, id, kind)
	}
	return nil
}
