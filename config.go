package unreachable

import (
	"io"
	"time"

	"github.com/joeycumines/go-unreachable/internal/telemetry"
)

// ScanConfig configures a single scan (or a shared set of scans, when
// reused across calls). The zero value is usable: it disables throttling,
// logs nothing, applies no memory floor, and uses the library defaults
// for content length and the continuation-semaphore timeout.
type ScanConfig struct {
	// ContentLength is the leak-content snapshot length. 0 uses
	// DefaultLeakContentLength.
	ContentLength int

	// Limit caps the number of leaks returned (largest first, ties by
	// ascending address); 0 means unlimited. Totals (NumLeaks, LeakBytes)
	// are unaffected -- only the returned slice is truncated.
	Limit int

	// ContinuationTimeout bounds how long the caller waits on the
	// continuation semaphore before giving up. 0 uses the orchestrator's
	// default (100s).
	ContinuationTimeout time.Duration

	// Rates configures the scan throttle: a set of sliding windows, e.g.
	// {time.Second: 1, time.Minute: 10}. A nil or empty map disables
	// throttling.
	Rates map[time.Duration]int

	// MinFreeMemory refuses a scan (ScanError{Class: ClassResource}) when
	// free system memory is below this many bytes. 0 disables the check.
	MinFreeMemory uint64

	// LogWriter receives structured log output, if non-nil. Defaults to
	// no logging.
	LogWriter io.Writer

	// LogLevel is the minimum level logged; meaningless if LogWriter is
	// nil. The zero value means telemetry.LevelInformational (the
	// default); logiface.LevelEmergency, which also happens to be 0,
	// cannot be selected through this field.
	LogLevel telemetry.Level
}

func (c ScanConfig) logger() *telemetry.Logger {
	if c.LogWriter == nil {
		return telemetry.Discard()
	}
	level := c.LogLevel
	if level == 0 {
		level = telemetry.LevelInformational
	}
	return telemetry.New(c.LogWriter, level)
}
