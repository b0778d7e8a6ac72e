// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import (
	"time"

	"github.com/dowownet/go-dowownet/internal/metrics"
	"github.com/dowownet/go-dowownet/internal/ready"
)

// PushOptions controls Push's enqueue/correlation behavior (spec §4.3).
type PushOptions struct {
	// Copy, if true, stamps the ID (when ChangeID) onto a duplicate of the
	// Request rather than mutating the caller's original.
	Copy bool
	// ChangeID, if true (the default), allocates the next ID from this
	// Connection's parity half and stamps it onto the Request before
	// enqueuing.
	ChangeID bool
	// Timeout: 0 means don't block (the default); negative means wait
	// indefinitely for a correlated response; positive bounds the wait.
	Timeout time.Duration
}

// PushOption mutates PushOptions.
type PushOption func(*PushOptions)

// WithCopy requests that Push operate on a duplicate of the Request.
func WithCopy() PushOption { return func(o *PushOptions) { o.Copy = true } }

// WithChangeID controls whether Push allocates a fresh ID (default true).
// With false, the caller supplies req.ID directly (e.g. when replying to
// an inbound Request with the same ID). If that ID collides with another
// Push already awaiting a correlated response on this Connection, the new
// registration overwrites the old one in the correlation map rather than
// being rejected — the orphaned waiter is never signaled and resolves via
// its own timeout (see DESIGN.md "Open Question decisions": ID collisions
// resolve by overwrite, not rejection).
func WithChangeID(change bool) PushOption { return func(o *PushOptions) { o.ChangeID = change } }

// WithPushTimeout bounds (or unbounds, if negative) how long Push waits for
// a correlated response.
func WithPushTimeout(d time.Duration) PushOption { return func(o *PushOptions) { o.Timeout = d } }

// Push enqueues req for send (spec §4.3). If ChangeID (the default), the
// Connection stamps a freshly allocated ID from its parity half onto req
// (or a copy of it, if Copy is set) before enqueuing. If Timeout > 0 or
// negative, Push blocks until either a Request with the same ID arrives
// (returned as the response) or the timeout elapses (nil, nil). If
// Timeout == 0, Push returns immediately after enqueuing. A Request whose
// ID is 0 (possible only with WithChangeID(false)) is never registered for
// correlation, so Push returns immediately for it whatever the Timeout.
//
// Push returns (nil, err) without enqueuing when the Connection is not
// Open (ErrNotConnected) or is Disconnecting (ErrDisconnecting) — "Push to
// Closed/Disconnecting: Drop request, return None" (spec §4.3 failure
// table).
func (c *Connection) Push(req *Request, opts ...PushOption) (*Request, error) {
	o := PushOptions{ChangeID: true}
	for _, fn := range opts {
		fn(&o)
	}

	switch c.State() {
	case StateClosed:
		return nil, ErrNotConnected
	case StateDisconnecting:
		return nil, ErrDisconnecting
	}

	out := req
	if o.Copy {
		dup := *req
		dup.Args = append([]Datum(nil), req.Args...)
		out = &dup
	}
	if o.ChangeID {
		out.ID = c.ids.allocate()
	}

	var waiter chan *Request
	if o.Timeout != 0 && out.ID != 0 {
		waiter = make(chan *Request, 1)
		c.corrMu.Lock()
		if _, collide := c.corr[out.ID]; collide {
			// Overwrite, per WithChangeID's documented ID-collision policy.
			c.logger.Warn("push_id_collision", "id", out.ID)
		}
		c.corr[out.ID] = waiter
		c.corrMu.Unlock()
	}

	c.sendMu.Lock()
	c.sendQueue = append(c.sendQueue, out)
	c.sendMu.Unlock()
	c.sendWake.Set()

	if waiter == nil {
		return nil, nil
	}

	if o.Timeout < 0 {
		select {
		case resp := <-waiter:
			return resp, nil
		case <-c.ctx.Done():
			c.removeWaiter(out.ID)
			return nil, nil
		}
	}

	t := ready.NewTimer(o.Timeout)
	defer t.Stop()
	select {
	case resp := <-waiter:
		return resp, nil
	case <-t.C():
		c.removeWaiter(out.ID)
		return nil, nil
	case <-c.ctx.Done():
		c.removeWaiter(out.ID)
		return nil, nil
	}
}

func (c *Connection) removeWaiter(id uint32) {
	c.corrMu.Lock()
	delete(c.corr, id)
	c.corrMu.Unlock()
}

// PullOptions controls Pull's blocking behavior.
type PullOptions struct {
	// Timeout: 0 means don't block (the default); negative means wait
	// indefinitely; positive bounds the wait.
	Timeout time.Duration
}

// PullOption mutates PullOptions.
type PullOption func(*PullOptions)

// WithPullTimeout bounds (or unbounds, if negative) how long Pull waits
// for an inbound Request.
func WithPullTimeout(d time.Duration) PullOption { return func(o *PullOptions) { o.Timeout = d } }

// Pull dequeues the next unhandled inbound Request (cascade step 6 /
// already-buffered), or waits for one per Timeout, mirroring Push's
// timeout semantics (spec §4.3). Pull may still drain the receive queue
// after the Connection has closed (spec §4.3 "State machine").
func (c *Connection) Pull(opts ...PullOption) (*Request, error) {
	o := PullOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	if req, ok := c.popRecv(); ok {
		return req, nil
	}
	if o.Timeout == 0 {
		return nil, nil
	}

	waiter := make(chan *Request, 1)
	c.recvMu.Lock()
	// Re-check under lock: a Request may have arrived between the
	// lock-free popRecv above and registering the waiter.
	if req, ok := c.popRecvLocked(); ok {
		c.recvMu.Unlock()
		return req, nil
	}
	c.pullWaiters = append(c.pullWaiters, waiter)
	c.recvMu.Unlock()

	if o.Timeout < 0 {
		select {
		case req := <-waiter:
			return req, nil
		case <-c.ctx.Done():
			c.removePullWaiter(waiter)
			return nil, nil
		}
	}

	t := ready.NewTimer(o.Timeout)
	defer t.Stop()
	select {
	case req := <-waiter:
		return req, nil
	case <-t.C():
		c.removePullWaiter(waiter)
		return nil, nil
	case <-c.ctx.Done():
		c.removePullWaiter(waiter)
		return nil, nil
	}
}

func (c *Connection) popRecv() (*Request, bool) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	return c.popRecvLocked()
}

func (c *Connection) popRecvLocked() (*Request, bool) {
	if len(c.recvQueue) == 0 {
		return nil, false
	}
	req := c.recvQueue[0]
	c.recvQueue = c.recvQueue[1:]
	return req, true
}

func (c *Connection) removePullWaiter(w chan *Request) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	for i, ww := range c.pullWaiters {
		if ww == w {
			c.pullWaiters = append(c.pullWaiters[:i], c.pullWaiters[i+1:]...)
			return
		}
	}
}

// dispatch implements the receive cascade (spec §4.3 "Receive dispatch
// cascade"): at most one of {correlated waiter, named handler, default
// handler, Pull waiter, receive queue} consumes req.
func (c *Connection) dispatch(req *Request) {
	if req.isLivelinessFiller() {
		metrics.LivenessFillersReceived.Inc()
		return
	}
	metrics.RequestsReceived.Inc()

	// Step 2: correlated waiter.
	c.corrMu.Lock()
	waiter, ok := c.corr[req.ID]
	if ok {
		delete(c.corr, req.ID)
	}
	c.corrMu.Unlock()
	if ok {
		waiter <- req
		return
	}

	// Steps 3/4: named handler, then default handler.
	c.handlerMu.RLock()
	h := c.namedHandlers[req.Name]
	if h == nil {
		h = c.defaultHandler
	}
	c.handlerMu.RUnlock()
	if h != nil {
		c.runHandler(h, req)
		return
	}

	// Step 5: oldest Pull waiter.
	c.recvMu.Lock()
	if len(c.pullWaiters) > 0 {
		w := c.pullWaiters[0]
		c.pullWaiters = c.pullWaiters[1:]
		c.recvMu.Unlock()
		w <- req
		return
	}
	// Step 6: receive queue.
	c.recvQueue = append(c.recvQueue, req)
	c.recvMu.Unlock()
}

// runHandler invokes h synchronously, or on a short-lived worker goroutine
// when WithHandlerWorkers is enabled (spec §4.3, §9).
func (c *Connection) runHandler(h Handler, req *Request) {
	if !c.handlerWorkers {
		h(c, req)
		return
	}
	c.handlerWG.Add(1)
	go func() {
		defer c.handlerWG.Done()
		h(c, req)
	}()
}
