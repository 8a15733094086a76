//go:build linux

package unreachable

import (
	"os"

	"github.com/joeycumines/go-unreachable/internal/orchestrate"
)

// walkerJobFD and walkerLeakFD are the well-known file descriptors the
// orchestrator passes to a re-exec'd walker subprocess via
// exec.Cmd.ExtraFiles: fd 3 is the job-description pipe's read end, fd 4 is
// the leak-report pipe's write end. Go guarantees ExtraFiles land at fd 3,
// 4, ... in order.
const (
	walkerJobFD  = 3
	walkerLeakFD = 4
)

// init installs this module's re-exec trampoline: if the process was
// launched as a walker subprocess (orchestrate.WalkerEnv set), it runs the
// walker's entire job and terminates the process before any of the
// embedding application's own main() executes.
//
// This is the Go-idiomatic substitute for spec.md's COW-fork walker child:
// since the Go runtime cannot safely continue after a raw fork() (only the
// calling thread survives; the scheduler, GC workers, and sysmon do not),
// the walker instead re-execs the running binary itself and is recognized
// here, at the earliest possible point in its life, via an environment
// variable sentinel. This mirrors the well-known re-exec-as-helper-process
// pattern used by container runtimes that need a fresh, minimal process
// image without forking the current one.
func init() {
	if os.Getenv(orchestrate.WalkerEnv) == "" {
		return
	}
	jobR := os.NewFile(walkerJobFD, "go-unreachable-walker-job")
	leakW := os.NewFile(walkerLeakFD, "go-unreachable-walker-leak")
	if jobR == nil || leakW == nil {
		os.Exit(1)
	}
	orchestrate.RunWalker(jobR, leakW) // never returns
}
