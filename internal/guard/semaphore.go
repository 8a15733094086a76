// Package guard provides the two synchronization primitives the
// orchestrator uses to hand off between the caller and the collection
// thread: a timed continuation semaphore, and a scoped guard around the
// target allocator.
package guard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// ContinuationSemaphore is posted exactly once by the collection thread
// (after it has released the caller's thread) and waited on exactly once by
// the caller, with a generous bound -- an expired wait is a fatal failure of
// the scan, not a retryable condition.
//
// It is a thin, single-use wrapper over a weighted semaphore so that the
// wait can carry its own timeout independent of whatever context the caller
// passed into the scan.
type ContinuationSemaphore struct {
	sem *semaphore.Weighted
}

// NewContinuationSemaphore returns a semaphore with its single token
// already held; the first Post releases it.
func NewContinuationSemaphore() *ContinuationSemaphore {
	sem := semaphore.NewWeighted(1)
	_ = sem.Acquire(context.Background(), 1)
	return &ContinuationSemaphore{sem: sem}
}

// Post releases the single token, unblocking a pending or future Wait. It
// is a programmer error to call Post more than once; subsequent calls are
// no-ops (the release would otherwise panic on an unheld semaphore).
func (c *ContinuationSemaphore) Post() {
	defer func() { _ = recover() }()
	c.sem.Release(1)
}

// Wait blocks until Post is called, ctx is cancelled, or timeout elapses,
// whichever comes first. A timeout expiry is reported distinctly so the
// caller can classify it as the "continuation semaphore not posted within
// the bound" failure.
func (c *ContinuationSemaphore) Wait(ctx context.Context, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("guard: continuation semaphore not posted within %s: %w", timeout, err)
	}
	// immediately give the token back: Wait is meant to be called once, but
	// leaving the semaphore held would make a defensive double-Wait hang
	// forever instead of returning promptly.
	c.sem.Release(1)
	return nil
}
