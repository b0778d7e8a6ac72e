package dowownet

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestServerAcceptsAndDispatches(t *testing.T) {
	received := make(chan *Request, 1)
	srv := NewServer(
		WithListenAddr("127.0.0.1:0"),
		WithConnectionOptions(WithHandlerWorkers(true)),
		WithOnConnected(func(c *Connection) {
			c.SetHandlerDefault(func(_ *Connection, r *Request) { received <- r })
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatalf("server did not become ready")
	}

	connector := NewConnector(ctx, NetworkTCP, srv.Addr(), time.Second)
	client, err := connector.Wait(ctx)
	if err != nil {
		t.Fatalf("connector wait: %v", err)
	}
	defer client.Close()

	if _, err := client.Push(NewRequest("hello")); err != nil {
		t.Fatalf("push: %v", err)
	}

	select {
	case r := <-received:
		if r.Name != "hello" {
			t.Fatalf("unexpected request name %q", r.Name)
		}
	case <-time.After(time.Second):
		t.Fatalf("server never dispatched the inbound request")
	}

	if got := srv.Count(); got != 1 {
		t.Fatalf("expected 1 registered connection, got %d", got)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestServerTagAndLookup(t *testing.T) {
	srv := NewServer(WithListenAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatalf("server did not become ready")
	}

	connector := NewConnector(ctx, NetworkTCP, srv.Addr(), time.Second)
	client, err := connector.Wait(ctx)
	if err != nil {
		t.Fatalf("connector wait: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(time.Second)
	var serverSide *Connection
	for time.Now().Before(deadline) {
		if c, ok := srv.ConnectionByID(1); ok {
			serverSide = c
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if serverSide == nil {
		t.Fatalf("server never registered the accepted connection under id 1")
	}

	srv.Tag(serverSide, "device-42")
	got, ok := srv.ConnectionByTag("device-42")
	if !ok || got != serverSide {
		t.Fatalf("ConnectionByTag lookup failed: ok=%v got=%v", ok, got)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
}

func TestServerServeTwiceFails(t *testing.T) {
	srv := NewServer(WithListenAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatalf("server did not become ready")
	}

	if err := srv.Serve(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected from a second Serve call, got %v", err)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
}

func TestServerDisconnectByIDAndTag(t *testing.T) {
	srv := NewServer(WithListenAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatalf("server did not become ready")
	}

	if err := srv.DisconnectByID(999, true); !errors.Is(err, ErrNoSuchConnection) {
		t.Fatalf("expected ErrNoSuchConnection for an unknown id, got %v", err)
	}
	if err := srv.DisconnectByTag("missing", true); !errors.Is(err, ErrNoSuchConnection) {
		t.Fatalf("expected ErrNoSuchConnection for an unknown tag, got %v", err)
	}

	connector := NewConnector(ctx, NetworkTCP, srv.Addr(), time.Second)
	client, err := connector.Wait(ctx)
	if err != nil {
		t.Fatalf("connector wait: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(time.Second)
	var serverSide *Connection
	for time.Now().Before(deadline) {
		if c, ok := srv.ConnectionByID(1); ok {
			serverSide = c
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if serverSide == nil {
		t.Fatalf("server never registered the accepted connection under id 1")
	}

	if err := srv.DisconnectByID(1, true); err != nil {
		t.Fatalf("DisconnectByID: %v", err)
	}
	if !serverSide.WaitForStop(time.Second) {
		t.Fatalf("expected the looked-up Connection to stop after DisconnectByID")
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
}

func TestServerMaxConnectionsStallsAccept(t *testing.T) {
	srv := NewServer(WithListenAddr("127.0.0.1:0"), WithMaxConnections(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatalf("server did not become ready")
	}

	c1, err := NewConnector(ctx, NetworkTCP, srv.Addr(), time.Second).Wait(ctx)
	if err != nil {
		t.Fatalf("first connect: %v", err)
	}
	defer c1.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && srv.Count() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Count() != 1 {
		t.Fatalf("expected first connection registered, count=%d", srv.Count())
	}

	// A second dial may still complete at the TCP level (kernel backlog),
	// but the Server's accept loop must not register it while pinned at
	// max_connections.
	c2, err := NewConnector(ctx, NetworkTCP, srv.Addr(), time.Second).Wait(ctx)
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}
	defer c2.Close()

	time.Sleep(100 * time.Millisecond)
	if got := srv.Count(); got != 1 {
		t.Fatalf("expected registration to stall past max_connections, count=%d", got)
	}

	c1.Close()

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := srv.ConnectionByID(2); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := srv.ConnectionByID(2); !ok || srv.Count() != 1 {
		t.Fatalf("expected second connection registered once a slot freed, count=%d", srv.Count())
	}

	c2.Close()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
}
