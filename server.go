// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dowownet/go-dowownet/internal/logging"
	"github.com/dowownet/go-dowownet/internal/metrics"
)

// OnConnected is invoked once a Connection is registered with the Server.
// The Connection's background goroutines are already running at that
// point, so a Request that arrives before the callback returns is
// dispatched (or queued) without the callback's handlers.
type OnConnected func(conn *Connection)

// OnDisconnected is invoked once a Connection has fully stopped and has
// been removed from the Server's registry.
type OnDisconnected func(conn *Connection)

// Server accepts inbound connections on a single listener, tags each
// accepted Connection with a server-assigned id, and tracks them until
// they close (spec §4.4). Grounded on go-ampio-server.Server: functional
// options, RWMutex-guarded address/listener, ready/error channels, a
// live-connection registry, atomic counters.
type Server struct {
	mu      sync.RWMutex
	network string
	addr    string

	maxConnections int
	acceptSlots    chan struct{} // nil when maxConnections <= 0

	connOpts []ConnectionOption
	onConn   OnConnected
	onDisc   OnDisconnected

	logger *slog.Logger

	readyOnce sync.Once
	readyCh   chan struct{}

	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error

	listener net.Listener

	connsMu sync.RWMutex
	conns   map[uint64]*Connection
	byTag   map[string]*Connection

	nextConnID atomic.Uint64

	totalAccepted     atomic.Uint64
	totalConnected    atomic.Uint64
	totalDisconnected atomic.Uint64

	grp        *errgroup.Group
	cancelServe context.CancelFunc
}

// ServerOption configures a Server at construction.
type ServerOption func(*Server)

// WithListenNetwork sets the listen network ("tcp" or "unix"); default "tcp".
func WithListenNetwork(network string) ServerOption {
	return func(s *Server) { s.network = network }
}

// WithListenAddr sets the listen address.
func WithListenAddr(addr string) ServerOption { return func(s *Server) { s.addr = addr } }

// WithMaxConnections caps the number of simultaneously live Connections;
// the accept loop stalls (not rejects) once the cap is hit, resuming as
// soon as a Connection is reaped (spec §4.4).
func WithMaxConnections(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxConnections = n
		}
	}
}

// WithConnectionOptions supplies ConnectionOptions applied to every
// accepted Connection (e.g. WithPeerDeadline, WithHandlerWorkers).
func WithConnectionOptions(opts ...ConnectionOption) ServerOption {
	return func(s *Server) { s.connOpts = append(s.connOpts, opts...) }
}

// WithOnConnected registers a callback fired after a Connection is
// registered with the Server.
func WithOnConnected(fn OnConnected) ServerOption { return func(s *Server) { s.onConn = fn } }

// WithOnDisconnected registers a callback fired after a Connection has
// fully stopped and been deregistered.
func WithOnDisconnected(fn OnDisconnected) ServerOption { return func(s *Server) { s.onDisc = fn } }

// WithServerLogger overrides the Server's logger (default logging.L()).
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer constructs a Server. Serve must be called to actually listen.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		network: NetworkTCP,
		addr:    ":0",
		readyCh: make(chan struct{}),
		errCh:   make(chan error, 1),
		conns:   make(map[uint64]*Connection),
		byTag:   make(map[string]*Connection),
		logger:  logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.maxConnections > 0 {
		s.acceptSlots = make(chan struct{}, s.maxConnections)
		for i := 0; i < s.maxConnections; i++ {
			s.acceptSlots <- struct{}{}
		}
	}
	return s
}

// Addr returns the actual listen address, valid once Ready() fires.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) setAddr(a string) {
	s.mu.Lock()
	s.addr = a
	s.mu.Unlock()
}

// Ready returns a channel closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Errors returns a channel receiving the first few fatal Server errors.
func (s *Server) Errors() <-chan error { return s.errCh }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

// LastError returns the most recent fatal error recorded by the Server.
func (s *Server) LastError() error {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return s.lastErr
}

// Serve binds the listener and accepts Connections until ctx is canceled
// or a fatal listener error occurs (spec §4.4). Serve must not be called
// more than once per Server; a second call returns ErrAlreadyConnected.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	alreadyBound := s.listener != nil
	s.mu.Unlock()
	if alreadyBound {
		return ErrAlreadyConnected
	}

	ln, err := Listen(s.network, s.Addr())
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListenFailed, err)
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("listening", "network", s.network, "addr", s.Addr())

	grp, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	s.mu.Lock()
	s.grp = grp
	s.cancelServe = cancel
	s.mu.Unlock()
	go func() { <-gctx.Done(); _ = ln.Close() }()

	for {
		if err := s.acceptOnce(gctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || gctx.Err() != nil {
				return s.grp.Wait()
			}
			return err
		}
	}
}

// acceptOnce accepts and registers a single inbound Connection.
func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	if s.acceptSlots != nil {
		select {
		case <-s.acceptSlots:
		case <-ctx.Done():
			return context.Canceled
		}
	}

	conn, err := ln.Accept()
	if err != nil {
		if s.acceptSlots != nil {
			s.acceptSlots <- struct{}{}
		}
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		var ne net.Error
		if errors.As(err, &ne) {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrListenFailed, err)
		s.setError(wrap)
		metrics.IncProtocolError(metrics.ErrKindTransport)
		return wrap
	}
	s.totalAccepted.Add(1)
	metrics.AcceptedConnections.Inc()

	id := s.nextConnID.Add(1)
	opts := append([]ConnectionOption(nil), s.connOpts...)
	opts = append(opts, WithParity(ParityOdd))
	c := NewConnection(conn, opts...)

	s.connsMu.Lock()
	s.conns[id] = c
	s.connsMu.Unlock()
	s.totalConnected.Add(1)

	s.logger.Info("connection_accepted", "conn_id", id, "remote", conn.RemoteAddr().String())
	if s.onConn != nil {
		s.onConn(c)
	}

	s.grp.Go(func() error {
		c.WaitForStop(-1)
		s.deregister(id, c)
		return nil
	})
	return nil
}

func (s *Server) deregister(id uint64, c *Connection) {
	s.connsMu.Lock()
	delete(s.conns, id)
	for tag, tc := range s.byTag {
		if tc == c {
			delete(s.byTag, tag)
		}
	}
	s.connsMu.Unlock()
	s.totalDisconnected.Add(1)
	if s.acceptSlots != nil {
		s.acceptSlots <- struct{}{}
	}
	if s.onDisc != nil {
		s.onDisc(c)
	}
}

// Tag associates a lookup tag with an already-registered Connection
// (e.g. once a handshake Request carries a client identifier).
func (s *Server) Tag(c *Connection, tag string) {
	s.connsMu.Lock()
	s.byTag[tag] = c
	s.connsMu.Unlock()
}

// ConnectionByTag returns the Connection registered under tag, if any.
func (s *Server) ConnectionByTag(tag string) (*Connection, bool) {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	c, ok := s.byTag[tag]
	return c, ok
}

// ConnectionByID returns the Connection with the Server-assigned
// bookkeeping id, distinct from any wire Request id.
func (s *Server) ConnectionByID(id uint64) (*Connection, bool) {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// DisconnectByID disconnects the Connection registered under id, or
// returns ErrNoSuchConnection if none is registered.
func (s *Server) DisconnectByID(id uint64, forced bool) error {
	c, ok := s.ConnectionByID(id)
	if !ok {
		return ErrNoSuchConnection
	}
	c.Disconnect(forced, false)
	return nil
}

// DisconnectByTag disconnects the Connection registered under tag, or
// returns ErrNoSuchConnection if none is registered.
func (s *Server) DisconnectByTag(tag string, forced bool) error {
	c, ok := s.ConnectionByTag(tag)
	if !ok {
		return ErrNoSuchConnection
	}
	c.Disconnect(forced, false)
	return nil
}

// Count reports the number of currently registered Connections.
func (s *Server) Count() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Shutdown closes the listener and forcibly disconnects every live
// Connection, then waits for Serve and all per-connection reaper
// goroutines to finish or ctx to expire (spec §4.4).
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	cancelServe := s.cancelServe
	s.mu.Unlock()
	if cancelServe != nil {
		cancelServe()
	}
	if ln != nil {
		_ = ln.Close()
		if s.network == NetworkUnix {
			unlinkUnixSocket(ln)
		}
	}

	s.connsMu.RLock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.RUnlock()
	for _, c := range conns {
		c.Disconnect(true, false)
	}

	done := make(chan struct{})
	go func() {
		for _, c := range conns {
			c.WaitForStop(-1)
		}
		if s.grp != nil {
			_ = s.grp.Wait()
		}
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	case <-done:
		s.logger.Info("shutdown_summary",
			"accepted", s.totalAccepted.Load(),
			"connected", s.totalConnected.Load(),
			"disconnected", s.totalDisconnected.Load())
		return nil
	}
}
