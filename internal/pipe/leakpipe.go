// Package pipe implements the one-shot, typed IPC channel the orchestrator
// uses to carry a walker's results back across the os.Pipe() it inherits: a
// length-prefixed payload, sent exactly once per scan, read back by exactly
// one receiver.
//
// Framing is deliberately simple -- a native-endian uint32 length, followed
// by that many raw bytes -- since both ends of every pipe used here are the
// same binary (the orchestrator and its re-exec'd walker), so there is no
// cross-version or cross-architecture compatibility concern to design for.
package pipe

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// maxPayload bounds a single frame, guarding against a corrupted or
// malicious length prefix causing an unbounded allocation.
const maxPayload = 256 << 20 // 256MiB; generous relative to any realistic leak report

// Sender writes exactly one framed payload to an underlying *os.File, then
// is expected to be closed by the caller (typically by exiting the
// process).
type Sender struct {
	w *os.File
}

// OpenSender wraps w (one end of an os.Pipe()) as a Sender.
func OpenSender(w *os.File) *Sender {
	return &Sender{w: w}
}

// Send writes payload as a single length-prefixed frame. It is intended to
// be called exactly once per Sender; calling it more than once produces
// multiple frames, which no Receiver in this package reads (Receive only
// ever reads the first).
func (s *Sender) Send(payload []byte) error {
	var lenBuf [4]byte
	binary.NativeEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := s.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("pipe: write length prefix: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := s.w.Write(payload); err != nil {
		return fmt.Errorf("pipe: write payload: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *Sender) Close() error {
	return s.w.Close()
}

// Receiver reads the single framed payload written by a Sender.
type Receiver struct {
	r *os.File
}

// OpenReceiver wraps r (the other end of the same os.Pipe()) as a Receiver.
// The Sender's end must be closed (by the sending process exiting, or
// explicitly) before Receive returns io.EOF in the no-data case; Receive
// otherwise blocks until a full frame, or the pipe's closure, is observed.
func OpenReceiver(r *os.File) *Receiver {
	return &Receiver{r: r}
}

// Receive reads back the one frame written by Send. If the writer closed
// the pipe without writing anything, Receive returns io.EOF.
func (r *Receiver) Receive() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("pipe: truncated length prefix: %w", err)
		}
		return nil, err
	}
	n := binary.NativeEndian.Uint32(lenBuf[:])
	if n > maxPayload {
		return nil, fmt.Errorf("pipe: frame length %d exceeds maximum %d", n, maxPayload)
	}
	if n == 0 {
		return nil, nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, fmt.Errorf("pipe: read payload: %w", err)
	}
	return payload, nil
}

// Close closes the underlying file.
func (r *Receiver) Close() error {
	return r.r.Close()
}

// New creates an anonymous os.Pipe() and returns it already wrapped as a
// Sender/Receiver pair, matching spec.md's "Leak Pipe": one dedicated,
// single-use channel per scan.
func New() (*Sender, *Receiver, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("pipe: create: %w", err)
	}
	return OpenSender(w), OpenReceiver(r), nil
}
