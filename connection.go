// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dowownet/go-dowownet/internal/logging"
	"github.com/dowownet/go-dowownet/internal/metrics"
	"github.com/dowownet/go-dowownet/internal/ready"
)

// Connection is a full-duplex endpoint multiplexing framed encode/decode,
// a background send/receive loop, request/response correlation, handler
// dispatch, and keep-alive — the hard core of the package (spec §1, §4.3).
//
// A Connection is created from an already-open net.Conn; its background
// goroutines start immediately (NewConnection) and run until Disconnect or
// a fatal error. The Connection value itself may outlive the goroutines,
// so callers can drain the receive queue and inspect LastError() after
// close (spec §3 "Connection" lifecycle).
type Connection struct {
	conn   net.Conn
	logger *slog.Logger

	// Configuration. Set at construction by ConnectionOption; read by the
	// background goroutines without further locking since it never
	// changes after NewConnection returns (mirrors go-ampio-server.Server
	// treating its ServerOption-applied fields as immutable post-construction).
	sendBlockSize  int
	recvBlockSize  int
	maxFrameSize   uint32
	localLiveness  time.Duration
	peerDeadline   time.Duration
	handlerWorkers bool

	ids *idAllocator

	stateMu sync.Mutex
	state   ConnState
	lastErr error

	sendMu    sync.Mutex
	sendQueue []*Request
	sendWake  *ready.Notifier

	recvMu      sync.Mutex
	recvQueue   []*Request
	pullWaiters []chan *Request

	corrMu sync.Mutex
	corr   map[uint32]chan *Request

	handlerMu      sync.RWMutex
	namedHandlers  map[string]Handler
	defaultHandler Handler

	ctx           context.Context
	cancel        context.CancelFunc
	disconnecting atomic.Bool
	stopped       chan struct{}
	stopOnce      sync.Once
	loopWG        sync.WaitGroup // reader + writer goroutines
	handlerWG     sync.WaitGroup // spawned handler workers (WithHandlerWorkers)

	refs        atomic.Int64
	refsZero    *ready.Notifier
	refsZeroSet atomic.Bool

	session atomic.Value
}

// NewConnection wraps an already-open net.Conn and starts its background
// I/O goroutines. Default parity is Odd (the accepting side's half, per
// spec §3); pass WithParity(ParityEven) for dialer-originated Connections
// (Connector does this).
func NewConnection(conn net.Conn, opts ...ConnectionOption) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:          conn,
		logger:        logging.L(),
		sendBlockSize: defaultSendBlockSize,
		recvBlockSize: defaultRecvBlockSize,
		maxFrameSize:  defaultMaxFrameSize,
		localLiveness: defaultLocalLiveness,
		peerDeadline:  defaultPeerDeadline,
		ids:           newIDAllocator(ParityOdd),
		sendWake:      ready.NewNotifier(),
		corr:          make(map[uint32]chan *Request),
		namedHandlers: make(map[string]Handler),
		ctx:           ctx,
		cancel:        cancel,
		stopped:       make(chan struct{}),
		refsZero:      ready.NewNotifier(),
	}
	for _, o := range opts {
		o(c)
	}
	c.loopWG.Add(2)
	go c.readLoop()
	go c.writeLoop()
	// The stop context has no direct effect on a blocked net.Conn.Read/Write;
	// closing the transport is what actually unblocks them, the same way
	// go-ampio-server.Server.Serve closes its listener from a goroutine
	// watching ctx.Done().
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		c.loopWG.Wait()
		c.handlerWG.Wait()
		c.transitionClosed()
		c.stopOnce.Do(func() { close(c.stopped) })
		metrics.ConnectionsOpen.Dec()
		if err := c.LastError(); err != nil {
			c.logger.Warn("connection_closed", "error", err)
		} else {
			c.logger.Debug("connection_closed")
		}
	}()
	metrics.ConnectionsOpen.Inc()
	c.logger.Debug("connection_open", "remote", conn.RemoteAddr().String())
	return c
}

// IsConnected reports whether the Connection is in the Open state (spec
// §4.3 "State machine": "Once Closed, IsConnected returns false forever").
func (c *Connection) IsConnected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state == StateOpen
}

// State returns the current state-machine value.
func (c *Connection) State() ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// LastError returns the diagnostic preserved from whatever condition
// closed the Connection, or nil if it is still open or closed cleanly.
func (c *Connection) LastError() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lastErr
}

func (c *Connection) setLastErr(err error) {
	c.stateMu.Lock()
	if c.lastErr == nil {
		c.lastErr = err
	}
	c.stateMu.Unlock()
}

func (c *Connection) transitionClosed() {
	c.stateMu.Lock()
	c.state = StateClosed
	c.stateMu.Unlock()
}

func (c *Connection) transitionDisconnecting() {
	c.stateMu.Lock()
	if c.state == StateOpen {
		c.state = StateDisconnecting
	}
	c.stateMu.Unlock()
}

// Session returns the opaque per-Connection slot (spec §9 DESIGN NOTES:
// replaces the source's raw void* session pointer with a typed slot owned
// by the Connection).
func (c *Connection) Session() any { return c.session.Load() }

// SetSession stores v in the per-Connection slot.
func (c *Connection) SetSession(v any) { c.session.Store(v) }

// IncreaseRefs registers an external borrow of the Connection, delaying
// refs reaching zero (spec §4.3 "Reference counting").
func (c *Connection) IncreaseRefs() { c.refs.Add(1) }

// DecreaseRefs releases an external borrow. When the count returns to
// zero, any pending awaitRefsZero wakes.
func (c *Connection) DecreaseRefs() {
	if c.refs.Add(-1) == 0 {
		c.refsZero.Set()
	}
}

// awaitRefsZero blocks until the reference count is (or becomes) zero.
func (c *Connection) awaitRefsZero() {
	for c.refs.Load() > 0 {
		<-c.refsZero.C()
	}
}

// SetHandlerNamed registers (or, with fn==nil, removes) the handler for
// inbound Requests named name (spec §4.3 cascade step 3).
func (c *Connection) SetHandlerNamed(name string, fn Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	if fn == nil {
		delete(c.namedHandlers, name)
		return
	}
	c.namedHandlers[name] = fn
}

// SetHandlerDefault registers (or, with fn==nil, removes) the fallback
// handler invoked when no named handler or correlation matches (spec §4.3
// cascade step 4).
func (c *Connection) SetHandlerDefault(fn Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.defaultHandler = fn
}

// WaitForStop blocks until the background goroutines have exited or
// timeout elapses (timeout<0 waits indefinitely, timeout==0 polls once).
func (c *Connection) WaitForStop(timeout time.Duration) bool {
	if timeout == 0 {
		select {
		case <-c.stopped:
			return true
		default:
			return false
		}
	}
	if timeout < 0 {
		<-c.stopped
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.stopped:
		return true
	case <-t.C:
		return false
	}
}

// Close is the forced-disconnect path followed by a full join (background
// goroutines and external references). It is the closest analogue to the
// source's blocking destructor (spec §3: "destruction blocks until refs
// reach zero and the task has exited").
func (c *Connection) Close() {
	c.Disconnect(true, true)
	c.awaitRefsZero()
}

// Disconnect stops the Connection. forced=true signals the stop context
// immediately, discarding any un-sent queued Requests (spec §4.3
// "Forced"). forced=false begins a graceful disconnect: no further Push
// calls are accepted, the existing send queue is drained, then the
// Connection closes as if forced (spec §4.3 "Graceful"). If
// waitForJoin is true, Disconnect blocks until the background goroutines
// have exited.
func (c *Connection) Disconnect(forced bool, waitForJoin bool) {
	if forced {
		c.cancel()
	} else {
		c.transitionDisconnecting()
		c.disconnecting.Store(true)
		c.sendWake.Set() // make the writer re-evaluate and notice disconnecting
	}
	if waitForJoin {
		c.WaitForStop(-1)
	}
}
