// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dowownet/go-dowownet/internal/logging"
	"github.com/dowownet/go-dowownet/internal/metrics"
)

// Connector performs a single timed, cancellable dial and hands off the
// resulting Connection exactly once (spec §4.5). Grounded on
// go-ampio-server/internal/transport.AsyncTx's context+cancel+goroutine+
// single-result lifecycle, adapted from an ongoing fan-in worker to a
// one-shot dial.
type Connector struct {
	network string
	address string

	ctx    context.Context
	cancel context.CancelFunc

	connOpts []ConnectionOption
	logger   *slog.Logger

	done     chan struct{}
	result   *Connection
	err      error
	consumed atomic.Bool
}

// ConnectorOption configures a Connector at construction time, following
// ConnectionOption/ServerOption's func(*T) shape.
type ConnectorOption func(*Connector)

// WithConnectorLogger overrides the Connector's logger (default logging.L()).
func WithConnectorLogger(l *slog.Logger) ConnectorOption {
	return func(c *Connector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithConnectorConnectionOptions supplies ConnectionOptions applied to the
// Connection produced by a successful dial.
func WithConnectorConnectionOptions(opts ...ConnectionOption) ConnectorOption {
	return func(c *Connector) { c.connOpts = append(c.connOpts, opts...) }
}

// NewConnector starts dialing network/address in the background, bounded
// by timeout (<=0 means no timeout, only ctx/Cancel can stop it). The
// returned Connector's goroutine runs until the dial succeeds, fails, or
// is canceled.
func NewConnector(ctx context.Context, network, address string, timeout time.Duration, opts ...ConnectorOption) *Connector {
	dialCtx, cancel := context.WithCancel(ctx)
	if timeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	c := &Connector{
		network: network,
		address: address,
		ctx:     dialCtx,
		cancel:  cancel,
		logger:  logging.L(),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	go c.run()
	return c
}

func (c *Connector) run() {
	defer close(c.done)
	metrics.DialAttempts.Inc()
	c.logger.Debug("dial_attempt", "network", c.network, "address", c.address)
	conn, err := Dial(c.ctx, c.network, c.address)
	if err != nil {
		metrics.DialFailures.Inc()
		c.logger.Warn("dial_failed", "network", c.network, "address", c.address, "error", err)
		c.err = err
		return
	}
	opts := append([]ConnectionOption(nil), c.connOpts...)
	opts = append(opts, WithParity(ParityEven))
	c.result = NewConnection(conn, opts...)
}

// Wait blocks until the dial resolves or ctx is canceled, returning the
// Connection exactly once. A second call (from this Connector or via
// Take) returns ErrConnectorConsumed.
func (c *Connector) Wait(ctx context.Context) (*Connection, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.take()
}

// Take returns the resolved Connection without blocking, if the dial has
// already finished; ok is false while still in flight.
func (c *Connector) Take() (conn *Connection, err error, ok bool) {
	select {
	case <-c.done:
	default:
		return nil, nil, false
	}
	conn, err = c.take()
	return conn, err, true
}

func (c *Connector) take() (*Connection, error) {
	if c.consumed.Swap(true) {
		return nil, ErrConnectorConsumed
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.result == nil {
		return nil, ErrDialCanceled
	}
	return c.result, nil
}

// Cancel aborts an in-flight dial. If the dial already produced a
// Connection, Cancel has no effect on it (ownership already transferred
// or pending transfer via Wait/Take).
func (c *Connector) Cancel() { c.cancel() }
