// Package capture defines the contract the core heap walker consumes from
// the platform's thread-freezing primitive (spec.md §4.E), and ships a real
// linux/amd64 implementation built on ptrace, plus a deterministic mock for
// tests.
//
// ThreadCapture is intentionally narrow: freeze every thread but the
// caller, read back registers and stack pointers, and selectively resume
// threads. Everything else -- how threads are enumerated, how ptrace
// errors are classified, how attach failures for a single dead thread are
// tolerated -- is an implementation concern behind this interface.
package capture

import "github.com/joeycumines/go-unreachable/internal/model"

// ThreadCapture freezes every thread of a target process except the
// calling thread, and lets the caller read back per-thread state and
// selectively release threads.
//
// A ThreadCapture is used for exactly one capture/release cycle; it is not
// safe for concurrent use, and CaptureThreads must be called before any
// other method.
type ThreadCapture interface {
	// CaptureThreads stops every thread of the target process except
	// callerTID (given at construction). A thread that dies mid-attach is
	// skipped, not fatal, per spec.md §7. Returns an error only if no
	// threads at all could be captured, or /proc enumeration itself failed.
	CaptureThreads() error

	// CapturedThreadInfo returns one ThreadInfo per successfully captured
	// thread: its tid, an opaque register snapshot, and its stack pointer
	// at freeze time.
	CapturedThreadInfo() ([]model.ThreadInfo, error)

	// ReleaseThread resumes a single stopped thread. It is used to release
	// the caller's own thread early, while the caller still holds the
	// malloc guard (see spec.md §4.F, P1.4).
	ReleaseThread(tid int) error

	// ReleaseAll resumes every thread still stopped by this capture. It is
	// always safe to call, including after partial failure, and must be
	// called (directly or via Close) on every exit path.
	ReleaseAll() error

	// Close is equivalent to ReleaseAll followed by releasing any other
	// resources (e.g. open /proc fds). Safe to call multiple times.
	Close() error
}

// Factory constructs a ThreadCapture for the given target pid and the tid
// of the thread that must never be stopped (the caller). Swappable so
// orchestration code is platform-independent and testable against Mock.
type Factory func(pid, callerTID int) ThreadCapture
