// Package telemetry wires structured logging through logiface, using
// zerolog as the backing implementation, the same stack the teacher's own
// izerolog adapter targets. It mirrors the platform logger collaborator
// described for the original detector: phase transitions log at
// informational level, failures at error level, and per-mapping/per-thread
// detail at debug level, matching that detector's ALOGI/ALOGV/ALOGE tiers.
package telemetry

import (
	"io"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the concrete logger type every component in this module logs
// through.
type Logger = logiface.Logger[*izerolog.Event]

// Level re-exports logiface's level type so callers configuring a Logger
// don't need to import logiface directly.
type Level = logiface.Level

const (
	LevelError         = logiface.LevelError
	LevelWarning       = logiface.LevelWarning
	LevelInformational = logiface.LevelInformational
	LevelDebug         = logiface.LevelDebug
	LevelTrace         = logiface.LevelTrace
	LevelDisabled      = logiface.LevelDisabled
)

// New builds a Logger writing newline-delimited JSON to w, at the given
// minimum level. A nil w defaults to os.Stderr, and a disabled level
// silences every event.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	z := zerolog.New(w).With().Timestamp().Logger()
	return izerolog.L.New(
		izerolog.L.WithZerolog(z),
		izerolog.L.WithLevel(level),
	)
}

// Discard is a Logger that drops every event, used as the zero-config
// default and in tests that don't care about log output.
func Discard() *Logger {
	return New(io.Discard, LevelDisabled)
}
