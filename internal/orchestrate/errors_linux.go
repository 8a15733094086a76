//go:build linux

package orchestrate

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// classifyWalkerFailure turns a failed pipe receive plus the walker
// subprocess's exit status into one diagnostic error, mapping the exit
// codes from spec.md §6 (0 success, 1 pipe-open, 2 collection, 3 send) to
// a human-readable phase.
func classifyWalkerFailure(waitErr, recvErr error) error {
	if errors.Is(recvErr, io.EOF) {
		// the walker exited (or crashed) before writing anything; the exit
		// code, if available, says which phase it failed in.
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			switch exitErr.ExitCode() {
			case exitPipeOpen:
				return fmt.Errorf("orchestrate: walker failed to open its job/leak pipes: %w", exitErr)
			case exitCollection:
				return fmt.Errorf("orchestrate: walker failed during collection: %w", exitErr)
			case exitSend:
				return fmt.Errorf("orchestrate: walker failed to send its result: %w", exitErr)
			default:
				return fmt.Errorf("orchestrate: walker exited unexpectedly: %w", exitErr)
			}
		}
		return fmt.Errorf("orchestrate: walker closed its pipe without sending a result: %w", recvErr)
	}
	return fmt.Errorf("orchestrate: receive walker result: %w", recvErr)
}
