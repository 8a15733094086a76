package guard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestContinuationSemaphore_PostThenWait(t *testing.T) {
	s := NewContinuationSemaphore()
	s.Post()
	if err := s.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestContinuationSemaphore_WaitBeforePost(t *testing.T) {
	s := NewContinuationSemaphore()
	done := make(chan error, 1)
	go func() {
		done <- s.Wait(context.Background(), time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	s.Post()
	if err := <-done; err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestContinuationSemaphore_TimeoutExpires(t *testing.T) {
	s := NewContinuationSemaphore()
	err := s.Wait(context.Background(), 10*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestContinuationSemaphore_ContextCancelled(t *testing.T) {
	s := NewContinuationSemaphore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Wait(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestContinuationSemaphore_DoublePostIsSafe(t *testing.T) {
	s := NewContinuationSemaphore()
	s.Post()
	s.Post() // must not panic
	if err := s.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

type fakeMallocator struct {
	quiesced   bool
	resumed    bool
	quiesceErr error
	resumeErr  error
}

func (f *fakeMallocator) Quiesce() error {
	f.quiesced = true
	return f.quiesceErr
}

func (f *fakeMallocator) Resume() error {
	f.resumed = true
	return f.resumeErr
}

func TestScopedMallocGuard_AcquireRelease(t *testing.T) {
	m := &fakeMallocator{}
	g, err := Acquire(m)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !m.quiesced {
		t.Fatalf("expected Quiesce to have been called")
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !m.resumed {
		t.Fatalf("expected Resume to have been called")
	}
}

func TestScopedMallocGuard_ReleaseIsIdempotent(t *testing.T) {
	m := &fakeMallocator{}
	g, err := Acquire(m)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got: %v", err)
	}
}

func TestScopedMallocGuard_QuiesceFailurePropagates(t *testing.T) {
	m := &fakeMallocator{quiesceErr: errors.New("boom")}
	if _, err := Acquire(m); err == nil {
		t.Fatalf("expected Acquire to propagate Quiesce error")
	}
}

func TestScopedMallocGuard_NilMallocatorUsesNoop(t *testing.T) {
	g, err := Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestNoopMallocator(t *testing.T) {
	var m NoopMallocator
	if err := m.Quiesce(); err != nil {
		t.Fatalf("Quiesce: %v", err)
	}
	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
}
