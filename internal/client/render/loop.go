// Package render owns the single rendering goroutine. Everything that
// touches live map handles runs on a Loop; other goroutines hop onto it
// with Post or Do.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/fieldsync/internal/logging"
)

var ErrLoopClosed = errors.New("render loop closed")

// Loop is a FIFO of tasks drained by exactly one goroutine (the one that
// calls Run). The queue is unbounded so producers never block on it.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{}
	done   chan struct{}

	running atomic.Bool
	logger  logging.Logger
}

func NewLoop(logger logging.Logger) *Loop {
	return &Loop{
		tasks:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.With("module", "render_loop"),
	}
}

// Post enqueues fn and returns immediately. It returns false once the loop
// is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from a task already running on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopClosed
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a task is executing on the loop right now.
// Renderers use it to catch calls made off the rendering goroutine.
func (l *Loop) Running() bool {
	return l.running.Load()
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	if len(l.tasks) == 1 {
		l.tasks = l.tasks[:0]
	} else {
		l.tasks = l.tasks[1:]
	}
	return fn, true
}

func (l *Loop) exec(ctx context.Context, fn func()) {
	l.running.Store(true)
	defer func() {
		l.running.Store(false)
		if p := recover(); p != nil {
			l.logger.Error(ctx, "render task panicked", "panic", fmt.Sprint(p))
		}
	}()
	fn()
}

// Run drains the queue until ctx is cancelled or the loop is closed and
// empty. Call it from the goroutine that owns rendering.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		if fn, ok := l.next(); ok {
			l.exec(ctx, fn)
			continue
		}

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.signal:
		}
	}
}

// Close stops accepting tasks. Already queued tasks still run.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	select {
	case l.signal <- struct{}{}:
	default:
	}
}
