package dowownet

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestConnectorDialSuccess(t *testing.T) {
	ln, err := Listen(NetworkTCP, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			NewConnection(conn, WithParity(ParityOdd))
		}
	}()

	ctx := context.Background()
	connector := NewConnector(ctx, NetworkTCP, ln.Addr().String(), time.Second)
	conn, err := connector.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	defer conn.Close()
	if !conn.IsConnected() {
		t.Fatalf("expected a connected Connection")
	}
}

func TestConnectorConsumedOnce(t *testing.T) {
	ln, err := Listen(NetworkTCP, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			NewConnection(conn, WithParity(ParityOdd))
		}
	}()

	ctx := context.Background()
	connector := NewConnector(ctx, NetworkTCP, ln.Addr().String(), time.Second)
	conn, err := connector.Wait(ctx)
	if err != nil {
		t.Fatalf("first wait: %v", err)
	}
	defer conn.Close()

	if _, err := connector.Wait(ctx); !errors.Is(err, ErrConnectorConsumed) {
		t.Fatalf("expected ErrConnectorConsumed on second Wait, got %v", err)
	}
}

func TestConnectorAppliesConnectionOptions(t *testing.T) {
	ln, err := Listen(NetworkTCP, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			NewConnection(conn, WithParity(ParityOdd))
		}
	}()

	ctx := context.Background()
	connector := NewConnector(ctx, NetworkTCP, ln.Addr().String(), time.Second,
		WithConnectorConnectionOptions(WithMaxFrameSize(4096)))
	conn, err := connector.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	defer conn.Close()
	if conn.maxFrameSize != 4096 {
		t.Fatalf("expected WithConnectorConnectionOptions to reach the Connection, maxFrameSize=%d", conn.maxFrameSize)
	}
}

func TestConnectorLoggerOverrideReceivesDialEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	connector := NewConnector(ctx, NetworkTCP, "192.0.2.1:9", 200*time.Millisecond,
		WithConnectorLogger(logger))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if _, err := connector.Wait(waitCtx); err == nil {
		t.Fatalf("expected the dial to fail")
	}

	out := buf.String()
	if !strings.Contains(out, "dial_attempt") || !strings.Contains(out, "dial_failed") {
		t.Fatalf("expected the overridden logger to record dial_attempt/dial_failed, got: %s", out)
	}
}

func TestConnectorCancel(t *testing.T) {
	// Nothing is listening on this address, so the dial will hang until
	// canceled (or time out at the OS/connect-refused level for loopback,
	// so use an address in the documentation range that silently drops
	// SYNs to make the cancellation path the one that actually fires).
	ctx, cancel := context.WithCancel(context.Background())
	connector := NewConnector(ctx, NetworkTCP, "192.0.2.1:9", 0)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if _, err := connector.Wait(waitCtx); err == nil {
		t.Fatalf("expected an error after canceling the dial")
	}
}
