// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import (
	"errors"
	"time"

	"github.com/dowownet/go-dowownet/internal/metrics"
)

// readLoop is the Connection's reader goroutine (spec §4.3 "Background I/O
// loop", sources 2/readability and the peer-liveness timer). Grounded on
// go-ampio-server/internal/server.startReader's per-connection read
// goroutine: a blocking Read with a rolling deadline, reset before every
// call, so an expired deadline IS the peer-liveness timer firing.
func (c *Connection) readLoop() {
	defer c.loopWG.Done()
	for {
		if c.ctx.Err() != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.peerDeadline))
		req, err := readFrame(c.conn, c.maxFrameSize)
		if err != nil {
			if c.ctx.Err() != nil {
				// Shutdown in progress elsewhere; this goroutine's read was
				// unblocked by the watcher closing the transport.
				return
			}
			if isTimeout(err) {
				metrics.IncProtocolError(metrics.ErrKindTimeout)
				c.failClosed(err)
				return
			}
			metrics.IncProtocolError(classifyErr(err))
			c.failClosed(err)
			return
		}
		c.dispatch(req)
	}
}

// writeLoop is the Connection's writer goroutine (spec §4.3 sources 3/
// writability, 4/local-liveness timer, 6/push-wake). Grounded on
// go-ampio-server/internal/server.startWriter's select-over-{data,ticker,
// stop} shape, adapted from a hub-broadcast batcher to a FIFO send queue.
func (c *Connection) writeLoop() {
	defer c.loopWG.Done()
	ticker := time.NewTicker(c.localLiveness)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sendMu.Lock()
			c.sendQueue = append(c.sendQueue, newLivelinessFiller())
			c.sendMu.Unlock()
			metrics.LivenessFillersSent.Inc()
		case <-c.sendWake.C():
		}

		if err := c.flushSendQueue(); err != nil {
			if c.ctx.Err() == nil {
				metrics.IncProtocolError(classifyErr(err))
				c.failClosed(err)
			}
			return
		}

		if c.disconnecting.Load() {
			c.sendMu.Lock()
			empty := len(c.sendQueue) == 0
			c.sendMu.Unlock()
			if empty {
				// Graceful drain complete: close exactly like a forced stop.
				c.cancel()
				return
			}
		}
	}
}

// flushSendQueue writes every currently queued Request to the transport,
// in FIFO order, chunked at sendBlockSize bytes per Write call.
func (c *Connection) flushSendQueue() error {
	for {
		c.sendMu.Lock()
		if len(c.sendQueue) == 0 {
			c.sendMu.Unlock()
			return nil
		}
		req := c.sendQueue[0]
		c.sendQueue = c.sendQueue[1:]
		depth := len(c.sendQueue)
		c.sendMu.Unlock()
		metrics.SendQueueDepth.Set(float64(depth))

		if err := writeFrame(c.conn, req, c.sendBlockSize); err != nil {
			return err
		}
		if !req.isLivelinessFiller() {
			metrics.RequestsSent.Inc()
		}
	}
}

// failClosed records the terminal error (first one wins) and cancels the
// stop context, which unblocks the other goroutine, the transport watcher
// (closing conn), and any blocked Push/Pull waiters selecting on ctx.Done.
func (c *Connection) failClosed(err error) {
	c.setLastErr(err)
	c.logger.Debug("connection_fail_closed", "error", err, "kind", classifyErr(err))
	c.cancel()
}

// classifyErr maps an I/O-loop error to a metrics error-kind label.
func classifyErr(err error) string {
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		return metrics.ErrKindFrameTooLarge
	case errors.Is(err, ErrFrameTooSmall):
		return metrics.ErrKindFrameTooSmall
	case errors.Is(err, ErrMalformedFrame):
		return metrics.ErrKindMalformed
	default:
		return metrics.ErrKindTransport
	}
}
