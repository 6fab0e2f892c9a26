package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Close when the scheduler is already closed.
var ErrClosed = errors.New("scheduler closed")

type Job struct {
	// Name identifies the job for deduplication and observation.
	Name string
	// Kind labels metrics, e.g. "pull" or "post".
	Kind   string
	Policy Policy
	Pool   Pool
	Run    func(ctx context.Context) error
	// OnDone, when set, runs once after the job reached its terminal state
	// and released its name. err is the last error of Run.
	OnDone func(final State, err error)
}

type Config struct {
	DBWorkers      int64
	NetworkWorkers int64
	RetryAttempts  uint64
	RetryBase      time.Duration
	RetryMax       time.Duration
	// IsTransient selects the errors worth retrying. Nothing is retried when
	// it is nil.
	IsTransient func(error) bool
}

type task struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc

	// guarded by Scheduler.mu
	state    State
	watchers []chan State
}

type Scheduler struct {
	cfg     Config
	pools   map[Pool]*semaphore.Weighted
	metrics *Metrics
	logger  logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	jobs   map[string]*task
	active int
	idle   chan struct{}
	closed bool
}

func New(cfg Config, metrics *Metrics, logger logging.Logger) *Scheduler {
	if cfg.DBWorkers <= 0 {
		cfg.DBWorkers = 1
	}
	if cfg.NetworkWorkers <= 0 {
		cfg.NetworkWorkers = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = cfg.RetryBase
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &Scheduler{
		cfg: cfg,
		pools: map[Pool]*semaphore.Weighted{
			PoolDB:      semaphore.NewWeighted(cfg.DBWorkers),
			PoolNetwork: semaphore.NewWeighted(cfg.NetworkWorkers),
		},
		metrics: metrics,
		logger:  logger.With("module", "scheduler"),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*task),
		idle:    idle,
	}
}

// Submit enqueues job and reports whether it was accepted.
func (s *Scheduler) Submit(job Job) bool {
	if job.Pool == "" {
		job.Pool = PoolNetwork
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.pools[job.Pool]; !ok {
		s.logger.Error(s.ctx, "unknown pool", "job", job.Name, "pool", job.Pool)
		return false
	}

	if prev, ok := s.jobs[job.Name]; ok {
		if job.Policy == KeepExisting {
			s.metrics.Deduplicated.WithLabelValues(job.Kind).Inc()
			return false
		}
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{job: job, ctx: ctx, cancel: cancel, state: Enqueued}
	s.jobs[job.Name] = t

	if s.active == 0 {
		s.idle = make(chan struct{})
	}
	s.active++
	s.metrics.Submitted.WithLabelValues(job.Kind).Inc()

	go s.run(t)
	return true
}

// Pending reports whether a job called name is enqueued or running.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Observe streams the states of the job called name, starting with the
// current one. A slow reader only sees the latest state; the terminal state
// is always delivered before the channel closes. ok is false when no such
// job is pending or running.
func (s *Scheduler) Observe(name string) (states <-chan State, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.jobs[name]
	if !ok {
		return nil, false
	}
	ch := make(chan State, 1)
	ch <- t.state
	t.watchers = append(t.watchers, ch)
	return ch, true
}

// setState must be called with s.mu held.
func (s *Scheduler) setState(t *task, st State) {
	t.state = st
	for _, ch := range t.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- st
		if st.Terminal() {
			close(ch)
		}
	}
	if st.Terminal() {
		t.watchers = nil
	}
}

func (s *Scheduler) transition(t *task, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(t, st)
}

func (s *Scheduler) run(t *task) {
	job := t.job
	err := s.execute(t)

	final := Succeeded
	switch {
	case t.ctx.Err() != nil:
		final = Cancelled
	case err != nil:
		final = Failed
	}

	switch final {
	case Failed:
		s.logger.Warn(t.ctx, "job failed", "job", job.Name, "error", err)
	case Cancelled:
		s.logger.Debug(t.ctx, "job cancelled", "job", job.Name)
	default:
		s.logger.Debug(t.ctx, "job done", "job", job.Name)
	}
	s.metrics.Completed.WithLabelValues(job.Kind, final.String()).Inc()

	t.cancel()

	s.mu.Lock()
	s.setState(t, final)
	if s.jobs[job.Name] == t {
		delete(s.jobs, job.Name)
	}
	s.mu.Unlock()

	if job.OnDone != nil {
		job.OnDone(final, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if s.active == 0 {
		close(s.idle)
	}
}

func (s *Scheduler) execute(t *task) error {
	sem := s.pools[t.job.Pool]
	if err := sem.Acquire(t.ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)

	gauge := s.metrics.Running.WithLabelValues(string(t.job.Pool))
	gauge.Inc()
	defer gauge.Dec()

	b := retry.NewExponential(s.cfg.RetryBase)
	b = retry.WithCappedDuration(s.cfg.RetryMax, b)
	b = retry.WithMaxRetries(s.cfg.RetryAttempts, b)

	return retry.Do(t.ctx, b, func(ctx context.Context) error {
		s.transition(t, Running)

		err := safeRun(ctx, t.job.Run)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if s.cfg.IsTransient != nil && s.cfg.IsTransient(err) {
			s.logger.Debug(ctx, "job will retry", "job", t.job.Name, "error", err)
			s.transition(t, Retrying)
			return retry.RetryableError(err)
		}
		return err
	})
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until no job is pending or running.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels every job, refuses new ones and waits for the workers to
// return.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.Wait(context.Background())
}
