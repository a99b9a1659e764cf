// Package tasks runs work that outlives the request that started it and
// drains it on shutdown.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanmeadows/chetter/internal/metrics"
)

// DefaultDrainTimeout bounds how long Shutdown waits for outstanding tasks.
const DefaultDrainTimeout = 600 * time.Second

var (
	// ErrShuttingDown is returned by Go once Shutdown has been called.
	ErrShuttingDown = errors.New("task tracker is shutting down")
	// ErrDrainTimeout is returned by Shutdown when tasks were still running
	// at the deadline. Their contexts are cancelled.
	ErrDrainTimeout = errors.New("timed out waiting for background tasks")
)

// Tracker starts named background tasks and waits for them on Shutdown.
type Tracker struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
	pending atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	clock   clockwork.Clock
	onError func(name string, err error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithErrorHook registers fn to be called with every failed task.
func WithErrorHook(fn func(name string, err error)) Option {
	return func(t *Tracker) { t.onError = fn }
}

func New(opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		ctx:    ctx,
		cancel: cancel,
		clock:  clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Go runs fn in a new goroutine. fn receives a context that is independent of
// any request and is only cancelled when a Shutdown drain times out.
func (t *Tracker) Go(name string, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return fmt.Errorf("%s: %w", name, ErrShuttingDown)
	}

	t.wg.Add(1)
	t.pending.Add(1)
	metrics.TaskStarted()
	go t.run(name, fn)
	return nil
}

func (t *Tracker) run(name string, fn func(ctx context.Context) error) {
	defer t.wg.Done()

	start := t.clock.Now()
	err := call(t.ctx, fn)
	t.pending.Add(-1)
	elapsed := t.clock.Since(start)

	switch {
	case err == nil:
		metrics.TaskFinished("ok")
		slog.Info("background task finished", "task", name, "elapsed", elapsed)
		return
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		metrics.TaskFinished("cancelled")
	default:
		metrics.TaskFinished("failed")
	}

	slog.Error("background task failed", "task", name, "elapsed", elapsed, "error", err)
	if t.onError != nil {
		t.onError(name, err)
	}
}

// call runs fn, turning a panic into an error so one task cannot take down
// the process.
func call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Pending reports how many tasks are still running.
func (t *Tracker) Pending() int {
	return int(t.pending.Load())
}

// Shutdown stops accepting tasks and waits up to timeout for running ones.
// On timeout the remaining tasks are cancelled and ErrDrainTimeout returned.
// A non-positive timeout uses DefaultDrainTimeout.
func (t *Tracker) Shutdown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}

	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	if n := t.Pending(); n > 0 {
		slog.Info("waiting for background tasks", "pending", n, "timeout", timeout)
	}

	select {
	case <-done:
		t.cancel()
		return nil
	case <-t.clock.After(timeout):
		slog.Warn("background tasks still running at shutdown deadline", "pending", t.Pending())
		t.cancel()
		return ErrDrainTimeout
	}
}
