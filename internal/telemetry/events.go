package telemetry

// Phase logs an orchestration phase transition (P0-P5) at informational
// level, tagged with the target pid.
func Phase(l *Logger, pid int, phase, msg string) {
	if l == nil {
		return
	}
	l.Info().Int("pid", pid).Str("phase", phase).Log(msg)
}

// Failure logs a phase or component failure at error level.
func Failure(l *Logger, pid int, phase string, err error) {
	if l == nil {
		return
	}
	l.Err().Int("pid", pid).Str("phase", phase).Err(err).Log("scan failed")
}

// Detail logs per-mapping/per-thread detail at debug level, the Go
// analogue of the original detector's ALOGV tier.
func Detail(l *Logger, pid int, msg string, fields map[string]any) {
	if l == nil {
		return
	}
	b := l.Debug().Int("pid", pid)
	for k, v := range fields {
		b = b.Any(k, v)
	}
	b.Log(msg)
}

// Refused logs a throttle refusal at warning level.
func Refused(l *Logger, pid int, retryAfterMS int64) {
	if l == nil {
		return
	}
	l.Warning().Int("pid", pid).Int64("retry_after_ms", retryAfterMS).Log("scan throttled")
}

// Coalesced logs a coalescer attach/detach at debug level.
func Coalesced(l *Logger, pid int, attached bool) {
	if l == nil {
		return
	}
	msg := "attached to in-flight scan"
	if !attached {
		msg = "started a new scan"
	}
	l.Debug().Int("pid", pid).Log(msg)
}
