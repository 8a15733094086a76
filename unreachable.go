//go:build linux

package unreachable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-unreachable/capture"
	"github.com/joeycumines/go-unreachable/internal/coalesce"
	"github.com/joeycumines/go-unreachable/internal/model"
	"github.com/joeycumines/go-unreachable/internal/orchestrate"
	"github.com/joeycumines/go-unreachable/internal/render"
	"github.com/joeycumines/go-unreachable/internal/sysmem"
	"github.com/joeycumines/go-unreachable/internal/telemetry"
	"github.com/joeycumines/go-unreachable/internal/throttle"
)

// singleton mirrors the original detector's file-scope state: one
// process-wide throttle and coalescer, lazily built from whichever
// ScanConfig reaches GetUnreachableMemory first. Every later call shares
// that same throttle configuration and attaches to (rather than racing)
// any already in-flight scan for the same pid. Every scan also uses that
// first ScanConfig's ContentLength, ContinuationTimeout and logger; later
// calls' values for those fields are not applied.
var singleton struct {
	once      sync.Once
	throttle  *throttle.Throttle
	coalescer *coalesce.Group[model.UnreachableMemoryInfo]
	logger    *telemetry.Logger
}

func getSingleton(cfg ScanConfig) (*throttle.Throttle, *coalesce.Group[model.UnreachableMemoryInfo], *telemetry.Logger) {
	singleton.once.Do(func() {
		singleton.throttle = throttle.New(cfg.Rates)
		singleton.logger = cfg.logger()
		singleton.coalescer = coalesce.NewGroup(func(ctx context.Context, pid int) (model.UnreachableMemoryInfo, error) {
			return scanOrchestrator(ctx, pid, cfg, singleton.logger)
		})
	})
	return singleton.throttle, singleton.coalescer, singleton.logger
}

// scanOrchestrator runs one orchestration pass for pid. It is a package
// variable, following the seam pattern internal/throttle uses for
// time.Now, so tests can substitute a mocked orchestration run instead of
// driving a real ptrace-based scan.
var scanOrchestrator = runScan

// GetUnreachableMemory scans pid for unreachable allocations.
func GetUnreachableMemory(ctx context.Context, pid int, cfg ScanConfig) (UnreachableMemoryInfo, error) {
	th, group, logger := getSingleton(cfg)

	if retry, ok := th.Allow(pid); !ok {
		telemetry.Refused(logger, pid, retry.UnixMilli())
		return UnreachableMemoryInfo{}, newScanError(ClassResource, "throttle", fmt.Errorf("scan refused, retry after %s", retry))
	}

	mem := sysmem.Read()
	if mem.BelowFloor(cfg.MinFreeMemory) {
		return UnreachableMemoryInfo{}, newScanError(ClassResource, "memory-floor", fmt.Errorf("free memory %d bytes below floor %d bytes", mem.Free, cfg.MinFreeMemory))
	}

	info, err := group.Do(ctx, pid)
	if err != nil {
		var se *ScanError
		if as, ok := err.(*ScanError); ok {
			se = as
		} else {
			se = newScanError(classifyOrchestrateError(err), "scan", err)
		}
		return UnreachableMemoryInfo{}, se
	}

	if cfg.Limit > 0 && len(info.Leaks) > cfg.Limit {
		info.Leaks = info.Leaks[:cfg.Limit]
	}
	return info, nil
}

// LogUnreachableMemory scans pid and logs every leak found through cfg's
// configured logger, matching the original detector's LogUnreachableMemory
// entry point: an informational summary line, then one error-level line
// per leak (carrying its escaped contents if logContents). If logContents
// is set, a hex+ASCII dump of each leak's content snapshot is also written
// to os.Stderr, not through the logger.
func LogUnreachableMemory(ctx context.Context, pid int, logContents bool, cfg ScanConfig) error {
	logger := cfg.logger()

	info, err := GetUnreachableMemory(ctx, pid, cfg)
	if err != nil {
		telemetry.Failure(logger, pid, "log", err)
		return err
	}

	logResult(logger, os.Stderr, pid, info, logContents)
	return nil
}

// LogResult logs an already-collected scan result the same way
// LogUnreachableMemory does, without triggering another scan. It's meant
// for callers -- such as a CI-gate CLI -- that need the UnreachableMemoryInfo
// for their own purposes (e.g. a threshold check) in addition to the log
// output, and would otherwise have to scan twice.
func LogResult(w io.Writer, pid int, info UnreachableMemoryInfo, logContents bool, cfg ScanConfig) {
	logResult(cfg.logger(), w, pid, info, logContents)
}

func logResult(logger *telemetry.Logger, dumpWriter io.Writer, pid int, info UnreachableMemoryInfo, logContents bool) {
	logger.Info().
		Int("pid", pid).
		Int64("leak_bytes", int64(info.LeakBytes)).
		Int("num_leaks", int(info.NumLeaks)).
		Int64("allocation_bytes", int64(info.AllocationBytes)).
		Int("num_allocations", int(info.NumAllocations)).
		Log("unreachable memory detection done")

	for _, leak := range info.Leaks {
		b := logger.Err().
			Int("pid", pid).
			Str("begin", fmt.Sprintf("0x%x", leak.Begin)).
			Int64("size", int64(leak.Size))
		if logContents && len(leak.Contents) > 0 {
			b = b.Str("contents", render.FieldString(leak.Contents))
		}
		b.Log("unreachable allocation")

		if logContents && len(leak.Contents) > 0 && dumpWriter != nil {
			fmt.Fprintln(dumpWriter, render.HexDump(leak.Begin, leak.Contents, 16))
		}
	}
}

// runScan assembles and executes one orchestration run for pid.
func runScan(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error) {
	telemetry.Phase(logger, pid, "P0", "acquiring malloc guard, starting collection")

	info, err := orchestrate.Run(ctx, orchestrate.Options{
		PID:                 pid,
		CaptureFactory:      capture.NewLinux,
		ContentLength:       cfg.ContentLength,
		ContinuationTimeout: cfg.ContinuationTimeout,
	})
	if err != nil {
		telemetry.Failure(logger, pid, "orchestrate", err)
		return model.UnreachableMemoryInfo{}, err
	}

	telemetry.Phase(logger, pid, "P5", "scan complete")
	return info, nil
}

// classifyOrchestrateError maps an orchestration failure to the error
// taxonomy when the failure wasn't already produced as a ScanError.
func classifyOrchestrateError(err error) ErrorClass {
	if errIsTimeout(err) {
		return ClassTimeout
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ESRCH) {
		return ClassPrivilege
	}
	return ClassProtocol
}

func errIsTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}
