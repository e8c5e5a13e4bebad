package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrTrackerClosed is returned when a task is submitted after shutdown has
// begun.
var ErrTrackerClosed = errors.New("task tracker is shut down")

// Tracker owns the fire-and-forget observability tasks. Tasks launched
// through it are detached from the submitting caller's cancellation scope
// and respond only to process-wide shutdown: Drain cancels them when the
// grace period expires, and no task is ever silently lost.
//
// The tracker has an explicit lifecycle: create it at startup, Drain it at
// shutdown.
type Tracker struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	inflight int
	closed   bool

	baseCtx context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// NewTracker creates a tracker ready to accept tasks.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		baseCtx: ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Go launches fn on its own goroutine under the tracker's detached
// context. The name is used for logging only. Returns ErrTrackerClosed
// once shutdown has begun.
func (t *Tracker) Go(name string, fn func(ctx context.Context)) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("%w: rejecting task %q", ErrTrackerClosed, name)
	}
	t.inflight++
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			t.inflight--
			t.mu.Unlock()
			t.wg.Done()
		}()
		fn(t.baseCtx)
	}()
	return nil
}

// InFlight returns the number of tasks currently running.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight
}

// Drain stops accepting new tasks and waits for the in-flight ones. When
// ctx expires first, the tracker cancels the tasks' shared context and
// returns an error naming how many tasks were still running; callers bound
// the grace period via ctx.
func (t *Tracker) Drain(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.cancel()
		remaining := t.InFlight()
		t.logger.Warn("grace period expired, cancelling observability tasks", "remaining", remaining)
		// Cancelled tasks are expected to return promptly; give them the
		// chance so goroutines do not outlive shutdown.
		<-done
		return fmt.Errorf("tracker drain exceeded grace period with %d tasks in flight: %w", remaining, ctx.Err())
	}
}
