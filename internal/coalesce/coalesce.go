// Package coalesce collapses concurrent scan requests for the same pid into
// a single underlying run, broadcasting its result to every waiter.
//
// It is adapted from the teacher's microbatch package: the same
// state-with-a-done-channel shape (set the result, then close done) stands
// in for microbatch's batcherState/JobResult pair, but there is no batch
// size or flush interval to configure -- a scan is either already in flight
// for a pid, in which case the caller attaches to it, or it isn't, in which
// case the caller starts it. Concurrent scans for two different pids never
// wait on each other.
package coalesce

import (
	"context"
	"sync"
)

// Func performs the actual (expensive) scan for pid.
type Func[Result any] func(ctx context.Context, pid int) (Result, error)

// Group coalesces concurrent calls to Do for the same pid.
type Group[Result any] struct {
	fn Func[Result]

	mu      sync.Mutex
	pending map[int]*call[Result]
}

type call[Result any] struct {
	done   chan struct{}
	result Result
	err    error
}

// NewGroup constructs a Group that runs fn for the first caller of a given
// pid, and shares its result with every caller that arrives before it
// completes.
func NewGroup[Result any](fn Func[Result]) *Group[Result] {
	if fn == nil {
		panic(`coalesce: nil fn`)
	}
	return &Group[Result]{fn: fn, pending: make(map[int]*call[Result])}
}

// Do runs fn for pid, or, if a call for pid is already in flight, waits for
// that call's result instead of starting a second one. Canceling ctx only
// stops the caller from waiting -- it never cancels a call other goroutines
// are still attached to, since the fn being coalesced (a freeze-the-world
// scan) is not a per-waiter operation to begin with.
func (g *Group[Result]) Do(ctx context.Context, pid int) (Result, error) {
	g.mu.Lock()
	c, inFlight := g.pending[pid]
	if !inFlight {
		c = &call[Result]{done: make(chan struct{})}
		g.pending[pid] = c
		go g.run(pid, c)
	}
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		var zero Result
		return zero, ctx.Err()
	case <-c.done:
		return c.result, c.err
	}
}

func (g *Group[Result]) run(pid int, c *call[Result]) {
	defer func() {
		g.mu.Lock()
		if g.pending[pid] == c {
			delete(g.pending, pid)
		}
		g.mu.Unlock()
		close(c.done)
	}()

	// no ctx is passed to fn: the underlying scan freezes the target
	// process and must run to completion regardless of which waiter's
	// context is canceled first, same as a microbatch BatchProcessor runs
	// to completion independent of any one Submit's caller going away.
	c.result, c.err = g.fn(context.Background(), pid)
}

// InFlight reports whether a scan for pid is currently coalescing, for
// tests and diagnostics.
func (g *Group[Result]) InFlight(pid int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[pid]
	return ok
}
