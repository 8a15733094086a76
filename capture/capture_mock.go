package capture

import (
	"fmt"
	"sort"
	"sync"

	"github.com/joeycumines/go-unreachable/internal/model"
)

// Mock is a deterministic, in-memory ThreadCapture used throughout this
// module's test suite in place of a live ptrace session: orchestration and
// mark-phase tests need to control exactly which threads exist and what
// their register/stack-pointer snapshots contain, without a real target
// process.
type Mock struct {
	mu sync.Mutex

	threads  map[int]model.ThreadInfo
	captured bool
	attached map[int]bool
	released map[int]bool
}

var _ ThreadCapture = (*Mock)(nil)

// NewMock constructs a Mock seeded with the given thread snapshots, keyed by
// tid. Every seeded thread is captured by CaptureThreads (the caller's own
// tid should simply be omitted from the seed).
func NewMock(threads ...model.ThreadInfo) *Mock {
	m := &Mock{threads: make(map[int]model.ThreadInfo, len(threads))}
	for _, ti := range threads {
		m.threads[ti.TID] = ti
	}
	return m
}

func (m *Mock) CaptureThreads() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = make(map[int]bool, len(m.threads))
	m.released = make(map[int]bool, len(m.threads))
	for tid := range m.threads {
		m.attached[tid] = true
	}
	m.captured = true
	return nil
}

func (m *Mock) CapturedThreadInfo() ([]model.ThreadInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.captured {
		return nil, fmt.Errorf("capture: CapturedThreadInfo called before CaptureThreads")
	}
	tids := make([]int, 0, len(m.attached))
	for tid := range m.attached {
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	infos := make([]model.ThreadInfo, 0, len(tids))
	for _, tid := range tids {
		infos = append(infos, m.threads[tid])
	}
	return infos, nil
}

func (m *Mock) ReleaseThread(tid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached[tid] {
		return fmt.Errorf("capture: release of tid %d not captured", tid)
	}
	m.released[tid] = true
	return nil
}

func (m *Mock) ReleaseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tid := range m.attached {
		m.released[tid] = true
	}
	return nil
}

func (m *Mock) Close() error {
	return m.ReleaseAll()
}

// Released reports whether tid has been released, for use in assertions.
func (m *Mock) Released(tid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[tid]
}

// AllReleased reports whether every captured thread has been released.
func (m *Mock) AllReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tid := range m.attached {
		if !m.released[tid] {
			return false
		}
	}
	return true
}
