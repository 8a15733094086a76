package pipe

import (
	"io"
	"testing"
)

func TestPipe_SendReceiveRoundTrip(t *testing.T) {
	s, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []byte("the quick brown fox jumps over the lazy dog")

	done := make(chan error, 1)
	go func() {
		done <- s.Send(want)
		done <- s.Close()
	}()

	got, err := r.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-done
	_ = r.Close()
}

func TestPipe_EmptyPayload(t *testing.T) {
	s, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go func() {
		_ = s.Send(nil)
		_ = s.Close()
	}()
	got, err := r.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestPipe_ClosedBeforeSendYieldsEOF(t *testing.T) {
	s, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.Receive(); err != io.EOF {
		t.Fatalf("got err %v, want io.EOF", err)
	}
}

func TestPipe_OversizeFrameRejected(t *testing.T) {
	s, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	defer r.Close()

	var lenBuf [4]byte
	// directly craft an oversize length prefix, bypassing Send, to exercise
	// the guard against a corrupted/hostile frame header.
	lenBuf[0], lenBuf[1], lenBuf[2], lenBuf[3] = 0xff, 0xff, 0xff, 0x7f
	go func() {
		_, _ = s.w.Write(lenBuf[:])
	}()

	if _, err := r.Receive(); err == nil {
		t.Fatalf("expected error for oversize frame length")
	}
}
