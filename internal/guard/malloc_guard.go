package guard

import (
	"fmt"
	"sync"
)

// Mallocator is the target allocator's quiesce/resume contract: Quiesce
// disables the allocator's global lock-free fast paths and forces it into a
// state safe to introspect (spec.md's "malloc guard"); Resume undoes that.
// A real implementation talks to a specific allocator's introspection
// hooks; tests and the default orchestration path use NoopMallocator, since
// this module does not ship a coupling to any particular allocator.
type Mallocator interface {
	Quiesce() error
	Resume() error
}

// NoopMallocator is a Mallocator that does nothing. It is the default: the
// detector does not assume any particular target allocator, and most
// allocators (including Go's own) do not expose -- or need -- an
// introspection-quiesce hook for this use case.
type NoopMallocator struct{}

func (NoopMallocator) Quiesce() error { return nil }
func (NoopMallocator) Resume() error  { return nil }

// ScopedMallocGuard acquires a Mallocator's quiesced state and guarantees
// its release on every exit path of the enclosing scope, matching spec.md's
// requirement that the guard be dropped exactly once no matter how the
// critical section exits.
type ScopedMallocGuard struct {
	m        Mallocator
	mu       sync.Mutex
	released bool
}

// Acquire quiesces m and returns a guard over it. The returned guard's
// Release must be called exactly once (typically via defer) to resume m;
// calling Release more than once is a safe no-op.
func Acquire(m Mallocator) (*ScopedMallocGuard, error) {
	if m == nil {
		m = NoopMallocator{}
	}
	if err := m.Quiesce(); err != nil {
		return nil, fmt.Errorf("guard: quiesce allocator: %w", err)
	}
	return &ScopedMallocGuard{m: m}, nil
}

// Release resumes the guarded allocator, if not already released.
func (g *ScopedMallocGuard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil
	}
	g.released = true
	if err := g.m.Resume(); err != nil {
		return fmt.Errorf("guard: resume allocator: %w", err)
	}
	return nil
}
