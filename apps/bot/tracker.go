package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getevo/evo/v2/lib/log"
)

// Tracker runs the background tasks spawned after a webhook is acknowledged
// and waits for them on shutdown
type Tracker struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
	failed   atomic.Int64
}

// NewTracker creates a tracker whose tasks each get timeout to finish
func NewTracker(timeout time.Duration) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{ctx: ctx, cancel: cancel, timeout: timeout}
}

// Go runs fn in the background. It returns false once Wait has been called.
func (t *Tracker) Go(id string, fn func(ctx context.Context) error) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.wg.Add(1)
	t.inFlight.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer t.inFlight.Add(-1)

		ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
		defer cancel()

		if err := t.run(ctx, fn); err != nil {
			t.failed.Add(1)
			log.Error("Task %s failed: %v", id, err)
		}
	}()
	return true
}

func (t *Tracker) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Context is cancelled once Wait gives up or returns
func (t *Tracker) Context() context.Context {
	return t.ctx
}

// InFlight returns the number of running tasks
func (t *Tracker) InFlight() int64 {
	return t.inFlight.Load()
}

// Failed returns the number of tasks that returned an error
func (t *Tracker) Failed() int64 {
	return t.failed.Load()
}

// Wait stops accepting tasks and waits up to timeout for running ones. Tasks
// still running after that are cancelled and false is returned.
func (t *Tracker) Wait(timeout time.Duration) bool {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	defer t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.Warning("%d background tasks still running after %s, cancelling", t.InFlight(), timeout)
		return false
	}
}
