//go:build linux

package unreachable

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-unreachable/internal/model"
	"github.com/joeycumines/go-unreachable/internal/sysmem"
	"github.com/joeycumines/go-unreachable/internal/telemetry"
)

// resetSingleton drops the process-wide singleton so the next
// GetUnreachableMemory call in a test rebuilds it from that test's own
// ScanConfig, rather than inheriting whatever an earlier test configured.
func resetSingleton() {
	singleton.once = sync.Once{}
	singleton.throttle = nil
	singleton.coalescer = nil
	singleton.logger = nil
}

func withScanOrchestrator(t *testing.T, fn func(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error)) {
	t.Helper()
	prev := scanOrchestrator
	scanOrchestrator = fn
	resetSingleton()
	t.Cleanup(func() {
		scanOrchestrator = prev
		resetSingleton()
	})
}

// manyLeaksOfSize16 builds n leaks, all size 16, at ascending addresses --
// already in the order SortLeaks would produce, since equal sizes break
// ties by ascending Begin.
func manyLeaksOfSize16(n int) []Leak {
	leaks := make([]Leak, n)
	for i := range leaks {
		leaks[i] = Leak{Begin: uintptr(0x10000 + i*0x20), Size: 16}
	}
	return leaks
}

// TestGetUnreachableMemory_LimitTruncation drives the scenario 6 property:
// 100 leaks, limit=10 -> totals reflect all 100, but the returned slice is
// truncated to the 10 largest (here, all equal size, so the 10 lowest
// addresses).
func TestGetUnreachableMemory_LimitTruncation(t *testing.T) {
	leaks := manyLeaksOfSize16(100)
	withScanOrchestrator(t, func(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error) {
		return model.UnreachableMemoryInfo{
			NumAllocations:  100,
			AllocationBytes: 1600,
			NumLeaks:        100,
			LeakBytes:       1600,
			Leaks:           append([]Leak(nil), leaks...),
		}, nil
	})

	info, err := GetUnreachableMemory(context.Background(), 1234, ScanConfig{Limit: 10})
	if err != nil {
		t.Fatalf("GetUnreachableMemory: %v", err)
	}
	if info.NumLeaks != 100 {
		t.Fatalf("expected NumLeaks to reflect the untruncated total, got %d", info.NumLeaks)
	}
	if info.LeakBytes != 1600 {
		t.Fatalf("expected LeakBytes to reflect the untruncated total, got %d", info.LeakBytes)
	}
	if len(info.Leaks) != 10 {
		t.Fatalf("expected the returned slice truncated to 10, got %d", len(info.Leaks))
	}
	for i, leak := range info.Leaks {
		if leak.Begin != leaks[i].Begin {
			t.Fatalf("leak %d: expected Begin %#x (largest-first/ascending-tie order), got %#x", i, leaks[i].Begin, leak.Begin)
		}
	}
}

// TestGetUnreachableMemory_NoLimitReturnsEverything confirms a zero Limit
// leaves the leak slice untouched.
func TestGetUnreachableMemory_NoLimitReturnsEverything(t *testing.T) {
	leaks := manyLeaksOfSize16(5)
	withScanOrchestrator(t, func(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error) {
		return model.UnreachableMemoryInfo{NumLeaks: 5, Leaks: append([]Leak(nil), leaks...)}, nil
	})

	info, err := GetUnreachableMemory(context.Background(), 1234, ScanConfig{})
	if err != nil {
		t.Fatalf("GetUnreachableMemory: %v", err)
	}
	if len(info.Leaks) != 5 {
		t.Fatalf("expected all 5 leaks returned, got %d", len(info.Leaks))
	}
}

// TestGetUnreachableMemory_ThrottleRefusal checks that a second scan of
// the same pid, inside an exhausted window, is refused with a
// ClassResource ScanError and never reaches the orchestrator.
func TestGetUnreachableMemory_ThrottleRefusal(t *testing.T) {
	var calls int
	withScanOrchestrator(t, func(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error) {
		calls++
		return model.UnreachableMemoryInfo{}, nil
	})

	cfg := ScanConfig{Rates: map[time.Duration]int{time.Hour: 1}}
	if _, err := GetUnreachableMemory(context.Background(), 5678, cfg); err != nil {
		t.Fatalf("first scan: unexpected error: %v", err)
	}
	_, err := GetUnreachableMemory(context.Background(), 5678, cfg)
	if err == nil {
		t.Fatal("expected the second scan within the window to be refused")
	}
	var se *ScanError
	if !errors.As(err, &se) {
		t.Fatalf("expected a *ScanError, got %T: %v", err, err)
	}
	if se.Class != ClassResource {
		t.Fatalf("expected ClassResource, got %s", se.Class)
	}
	if calls != 1 {
		t.Fatalf("expected the refused attempt to never reach the orchestrator, got %d calls", calls)
	}
}

// TestGetUnreachableMemory_MemoryFloorRefusal checks that an unreachably
// high MinFreeMemory refuses the scan before it ever reaches the
// orchestrator.
func TestGetUnreachableMemory_MemoryFloorRefusal(t *testing.T) {
	if sysmem.Read().Free == 0 {
		t.Skip("host does not report free memory")
	}

	var calls int
	withScanOrchestrator(t, func(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error) {
		calls++
		return model.UnreachableMemoryInfo{}, nil
	})

	cfg := ScanConfig{MinFreeMemory: 1 << 62}
	_, err := GetUnreachableMemory(context.Background(), 9999, cfg)
	if err == nil {
		t.Fatal("expected the scan to be refused below the memory floor")
	}
	var se *ScanError
	if !errors.As(err, &se) {
		t.Fatalf("expected a *ScanError, got %T: %v", err, err)
	}
	if se.Class != ClassResource {
		t.Fatalf("expected ClassResource, got %s", se.Class)
	}
	if calls != 0 {
		t.Fatalf("expected the refused attempt to never reach the orchestrator, got %d calls", calls)
	}
}

// TestGetUnreachableMemory_WrapsOrchestrationError checks that a plain
// error from the orchestrator comes back classified as a ScanError.
func TestGetUnreachableMemory_WrapsOrchestrationError(t *testing.T) {
	boom := errors.New("boom")
	withScanOrchestrator(t, func(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error) {
		return model.UnreachableMemoryInfo{}, boom
	})

	_, err := GetUnreachableMemory(context.Background(), 4242, ScanConfig{})
	if err == nil {
		t.Fatal("expected an error")
	}
	var se *ScanError
	if !errors.As(err, &se) {
		t.Fatalf("expected a *ScanError, got %T: %v", err, err)
	}
	if !errors.Is(se, boom) {
		t.Fatalf("expected the ScanError to wrap the original error, got %v", se)
	}
}

// TestGetUnreachableMemory_PreservesScanErrorClass checks that a
// ScanError surfaced by the orchestrator keeps its original Class instead
// of being reclassified.
func TestGetUnreachableMemory_PreservesScanErrorClass(t *testing.T) {
	inner := newScanError(ClassData, "parse-maps", errors.New("short read"))
	withScanOrchestrator(t, func(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error) {
		return model.UnreachableMemoryInfo{}, inner
	})

	_, err := GetUnreachableMemory(context.Background(), 4343, ScanConfig{})
	var se *ScanError
	if !errors.As(err, &se) {
		t.Fatalf("expected a *ScanError, got %T: %v", err, err)
	}
	if se.Class != ClassData {
		t.Fatalf("expected the inner ScanError's Class (data) to survive, got %s", se.Class)
	}
}

// TestLogResult_WritesSummaryAndContents checks LogResult logs a summary
// line and, when requested, dumps leak contents without triggering
// another scan.
func TestLogResult_WritesSummaryAndContents(t *testing.T) {
	var logBuf, dumpBuf bytes.Buffer
	cfg := ScanConfig{LogWriter: &logBuf}

	info := UnreachableMemoryInfo{
		NumLeaks:  1,
		LeakBytes: 4,
		Leaks:     []Leak{{Begin: 0x1000, Size: 4, Contents: []byte("leak")}},
	}

	LogResult(&dumpBuf, 555, info, true, cfg)

	if !strings.Contains(logBuf.String(), `"num_leaks":1`) {
		t.Fatalf("expected the summary line to report num_leaks, got: %s", logBuf.String())
	}
	if !strings.Contains(logBuf.String(), "unreachable allocation") {
		t.Fatalf("expected a per-leak log line, got: %s", logBuf.String())
	}
	if !strings.Contains(dumpBuf.String(), "leak") {
		t.Fatalf("expected the hex dump to contain the leak's bytes, got: %s", dumpBuf.String())
	}
}

// TestLogResult_NoContentsSkipsDump checks that logContents=false produces
// no hex dump output at all.
func TestLogResult_NoContentsSkipsDump(t *testing.T) {
	var logBuf, dumpBuf bytes.Buffer
	cfg := ScanConfig{LogWriter: &logBuf}
	info := UnreachableMemoryInfo{NumLeaks: 1, Leaks: []Leak{{Begin: 0x1000, Size: 4, Contents: []byte("leak")}}}

	LogResult(&dumpBuf, 555, info, false, cfg)

	if dumpBuf.Len() != 0 {
		t.Fatalf("expected no dump output, got: %s", dumpBuf.String())
	}
}

// TestLogUnreachableMemory_LogsAndReturnsScanResult exercises the
// scan-then-log entry point end to end against a mocked orchestrator.
func TestLogUnreachableMemory_LogsAndReturnsScanResult(t *testing.T) {
	var logBuf bytes.Buffer
	withScanOrchestrator(t, func(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error) {
		return model.UnreachableMemoryInfo{NumLeaks: 2, Leaks: []Leak{{Begin: 1, Size: 1}, {Begin: 2, Size: 1}}}, nil
	})

	if err := LogUnreachableMemory(context.Background(), 777, false, ScanConfig{LogWriter: &logBuf}); err != nil {
		t.Fatalf("LogUnreachableMemory: %v", err)
	}
	if !strings.Contains(logBuf.String(), `"num_leaks":2`) {
		t.Fatalf("expected the summary to reflect both leaks, got: %s", logBuf.String())
	}
}

// TestLogUnreachableMemory_PropagatesFailure checks that a scan failure
// is logged and returned, rather than swallowed.
func TestLogUnreachableMemory_PropagatesFailure(t *testing.T) {
	var logBuf bytes.Buffer
	boom := errors.New("boom")
	withScanOrchestrator(t, func(ctx context.Context, pid int, cfg ScanConfig, logger *telemetry.Logger) (model.UnreachableMemoryInfo, error) {
		return model.UnreachableMemoryInfo{}, boom
	})

	err := LogUnreachableMemory(context.Background(), 888, false, ScanConfig{LogWriter: &logBuf})
	if err == nil {
		t.Fatal("expected the failure to propagate")
	}
	if !strings.Contains(logBuf.String(), "scan failed") {
		t.Fatalf("expected a failure log line, got: %s", logBuf.String())
	}
}

func TestClassifyOrchestrateError_Timeout(t *testing.T) {
	err := context.DeadlineExceeded
	if got := classifyOrchestrateError(err); got != ClassTimeout {
		t.Fatalf("expected ClassTimeout, got %s", got)
	}
}

func TestClassifyOrchestrateError_DefaultsToProtocol(t *testing.T) {
	if got := classifyOrchestrateError(errors.New("mystery failure")); got != ClassProtocol {
		t.Fatalf("expected ClassProtocol, got %s", got)
	}
}

func TestScanError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("underlying")
	se := newScanError(ClassPrivilege, "attach", inner)
	if !strings.Contains(se.Error(), "attach") || !strings.Contains(se.Error(), "privilege") {
		t.Fatalf("expected the message to mention op and class, got: %s", se.Error())
	}
	if !errors.Is(se, inner) {
		t.Fatalf("expected Unwrap to expose the inner error")
	}
}

func TestNewScanError_FlattensNestedScanError(t *testing.T) {
	inner := newScanError(ClassData, "parse-maps", errors.New("short read"))
	outer := newScanError(ClassProtocol, "scan", inner)
	if outer.Class != ClassData {
		t.Fatalf("expected the innermost Class (data) to win, got %s", outer.Class)
	}
	if outer.Op != "scan" {
		t.Fatalf("expected the outer Op to be preserved, got %s", outer.Op)
	}
}
