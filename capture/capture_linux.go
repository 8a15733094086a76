//go:build linux

package capture

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-unreachable/internal/model"
)

// Linux is a ThreadCapture backed by PTRACE_ATTACH/PTRACE_GETREGS/
// PTRACE_DETACH via golang.org/x/sys/unix.
//
// Linux ptrace ties a tracee to the specific OS thread that attached to it:
// only that thread may subsequently call PTRACE_GETREGS or PTRACE_DETACH for
// that tracee. Every method of Linux must therefore be called from the same
// goroutine, and that goroutine must hold runtime.LockOSThread() for the
// entire CaptureThreads/CapturedThreadInfo/Release* sequence. This is the
// Go-idiomatic shape of spec.md's "collection thread": a single OS thread
// dedicated to the ptrace session.
type Linux struct {
	pid       int
	callerTID int

	mu       sync.Mutex
	attached map[int]bool
	released map[int]bool
}

var _ ThreadCapture = (*Linux)(nil)

// NewLinux constructs a Linux ThreadCapture for pid, excluding callerTID
// from capture.
func NewLinux(pid, callerTID int) ThreadCapture {
	return &Linux{pid: pid, callerTID: callerTID}
}

func (c *Linux) CaptureThreads() error {
	tids, err := listTasks(c.pid)
	if err != nil {
		return fmt.Errorf("capture: list tasks of pid %d: %w", c.pid, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = make(map[int]bool, len(tids))
	c.released = make(map[int]bool, len(tids))

	var attachedAny bool
	var candidates int
	for _, tid := range tids {
		if tid == c.callerTID {
			continue
		}
		candidates++
		if err := unix.PtraceAttach(tid); err != nil {
			// a thread that exited between enumeration and attach, or one
			// this process lacks permission to trace, is skipped rather
			// than failing the whole capture (spec.md §7: per-thread
			// failures in the capture layer are non-fatal).
			continue
		}
		var status unix.WaitStatus
		if _, err := unix.Wait4(tid, &status, 0, nil); err != nil {
			_ = unix.PtraceDetach(tid)
			continue
		}
		c.attached[tid] = true
		attachedAny = true
	}

	if !attachedAny && candidates > 0 {
		return fmt.Errorf("capture: failed to attach to any thread of pid %d", c.pid)
	}
	return nil
}

func (c *Linux) CapturedThreadInfo() ([]model.ThreadInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]model.ThreadInfo, 0, len(c.attached))
	for tid := range c.attached {
		var regs unix.PtraceRegs
		if err := unix.PtraceGetRegs(tid, &regs); err != nil {
			// ESRCH here means the thread exited after attach but before
			// we read it back; benign per spec.md §7.
			continue
		}
		infos = append(infos, model.ThreadInfo{
			TID:  tid,
			Regs: regsBytes(&regs),
			SP:   uintptr(regsStackPointer(&regs)),
		})
	}
	return infos, nil
}

func (c *Linux) ReleaseThread(tid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached[tid] || c.released[tid] {
		return nil
	}
	if err := unix.PtraceDetach(tid); err != nil && err != unix.ESRCH {
		return fmt.Errorf("capture: detach tid %d: %w", tid, err)
	}
	c.released[tid] = true
	return nil
}

func (c *Linux) ReleaseAll() error {
	c.mu.Lock()
	tids := make([]int, 0, len(c.attached))
	for tid := range c.attached {
		if !c.released[tid] {
			tids = append(tids, tid)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, tid := range tids {
		if err := c.ReleaseThread(tid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Linux) Close() error {
	return c.ReleaseAll()
}

// listTasks enumerates the kernel thread ids of pid via /proc/<pid>/task,
// matching spec.md's "consumed system interfaces" (no cgo, no libc thread
// enumeration helper).
func listTasks(pid int) ([]int, error) {
	dir := fmt.Sprintf("/proc/%d/task", pid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		var tid int
		if _, err := fmt.Sscanf(e.Name(), "%d", &tid); err == nil {
			tids = append(tids, tid)
		}
	}
	return tids, nil
}

// regsBytes reinterprets a PtraceRegs struct as an opaque byte slice, per
// spec.md's "register buffer ... scanned word-by-word, never interpreted".
func regsBytes(regs *unix.PtraceRegs) []byte {
	size := int(unsafe.Sizeof(*regs))
	b := unsafe.Slice((*byte)(unsafe.Pointer(regs)), size)
	out := make([]byte, size)
	copy(out, b)
	return out
}
