package dowownet

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

func TestFrameSelfDescription(t *testing.T) {
	r := NewRequest("ping", NewDatum("n", NewU32(1)))
	r.ID = 7
	wire := encodeFrame(r)
	if len(wire) < 4 {
		t.Fatalf("frame too short: %d bytes", len(wire))
	}
	declared := uint32(wire[0]) | uint32(wire[1])<<8 | uint32(wire[2])<<16 | uint32(wire[3])<<24
	if int(declared) != len(wire) {
		t.Fatalf("declared length %d != actual %d", declared, len(wire))
	}
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	r := NewRequest("echo", NewDatum("payload", NewStr("hello")))
	r.ID = 99
	var buf bytes.Buffer
	if err := writeFrame(&buf, r, 3); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	got, err := readFrame(&buf, defaultMaxFrameSize)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if got.ID != r.ID || got.Name != r.Name {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
}

func TestReadFrameRejectsOversizedDeclaration(t *testing.T) {
	r := NewRequest("big")
	var buf bytes.Buffer
	if err := writeFrame(&buf, r, 0); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if _, err := readFrame(&buf, 4); err == nil || !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameRejectsUndersizedDeclaration(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{4, 0, 0, 0}) // declares a 4-byte frame, below minFrameSize
	if _, err := readFrame(&buf, defaultMaxFrameSize); err == nil || !errors.Is(err, ErrFrameTooSmall) {
		t.Fatalf("expected ErrFrameTooSmall, got %v", err)
	}
}

func TestReadFrameReportsTransportClosedOnEOF(t *testing.T) {
	var buf bytes.Buffer
	if _, err := readFrame(&buf, defaultMaxFrameSize); err == nil || !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}

func TestReadFramePropagatesTimeoutUnwrapped(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	_ = server.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	_, err := readFrame(server, defaultMaxFrameSize)
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	if errors.Is(err, ErrTransportClosed) {
		t.Fatalf("timeout must not be wrapped as ErrTransportClosed, got %v", err)
	}
	if !isTimeout(err) {
		t.Fatalf("expected isTimeout(err) to be true, got %v", err)
	}
}
