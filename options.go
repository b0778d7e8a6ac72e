// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import (
	"log/slog"
	"time"
)

// Floors and defaults, per spec §4.3/§6.
const (
	defaultSendBlockSize  = 1024
	defaultRecvBlockSize  = 1024
	maxFrameSizeFloor     = 10
	defaultLocalLiveness  = 10 * time.Second
	localLivenessFloor    = time.Second
	defaultPeerDeadline   = 60 * time.Second
	peerDeadlineFloor     = time.Second
)

// Handler receives ownership of an inbound Request dispatched to it by the
// cascade (spec §4.3 "Receive dispatch cascade") and must not retain conn
// beyond the call.
type Handler func(conn *Connection, req *Request)

// ConnectionOption configures a Connection at construction time, following
// go-ampio-server.ServerOption's func(*Server) shape, including its
// "ignore non-positive values" guard idiom.
type ConnectionOption func(*Connection)

// WithSendBlockSize sets the chunk size used when flushing the send
// buffer (default 1024, spec §4.3). Non-positive values are ignored.
func WithSendBlockSize(n int) ConnectionOption {
	return func(c *Connection) {
		if n > 0 {
			c.sendBlockSize = n
		}
	}
}

// WithRecvBlockSize sets the chunk size advisory for the receive path
// (default 1024). Non-positive values are ignored.
func WithRecvBlockSize(n int) ConnectionOption {
	return func(c *Connection) {
		if n > 0 {
			c.recvBlockSize = n
		}
	}
}

// WithMaxFrameSize sets the inbound frame ceiling, floored to 10 bytes
// (spec §3 invariant 2).
func WithMaxFrameSize(n uint32) ConnectionOption {
	return func(c *Connection) {
		if n < maxFrameSizeFloor {
			n = maxFrameSizeFloor
		}
		c.maxFrameSize = n
	}
}

// WithLocalLiveness sets the interval between locally emitted liveness
// fillers, floored to 1s (spec §4.3).
func WithLocalLiveness(d time.Duration) ConnectionOption {
	return func(c *Connection) {
		if d < localLivenessFloor {
			d = localLivenessFloor
		}
		c.localLiveness = d
	}
}

// WithPeerDeadline sets the peer-liveness deadline, floored to 1s.
func WithPeerDeadline(d time.Duration) ConnectionOption {
	return func(c *Connection) {
		if d < peerDeadlineFloor {
			d = peerDeadlineFloor
		}
		c.peerDeadline = d
	}
}

// WithParity fixes the Connection's ID parity half explicitly, overriding
// the constructor's default (NewConnection defaults to ParityOdd, the
// accepting side's half per spec §3; Connector selects ParityEven).
func WithParity(p Parity) ConnectionOption {
	return func(c *Connection) { c.ids = newIDAllocator(p) }
}

// WithHandlerWorkers enables dispatching cascade steps 3/4 on a short-lived
// worker goroutine per inbound Request instead of the read loop itself
// (spec §4.3 "multi-threaded handlers"; §9 worker-pool grounded on
// go-ampio-server.AsyncTx's fan-in pattern).
func WithHandlerWorkers(enabled bool) ConnectionOption {
	return func(c *Connection) { c.handlerWorkers = enabled }
}

// WithConnectionLogger attaches a structured logger, following
// go-ampio-server.Server's WithLogger.
func WithConnectionLogger(l *slog.Logger) ConnectionOption {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}
