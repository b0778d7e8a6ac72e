package ready

import "time"

// Timer wraps time.Timer with a Reset that correctly drains a
// possibly-already-fired channel before rearming — the standard
// time.Timer.Reset footgun documented in the time package itself. Used for
// the bounded waits of Connection.Push and Connection.Pull; the
// local-liveness interval is a time.Ticker and the peer-liveness deadline
// is a rolling read deadline on the transport.
type Timer struct {
	t *time.Timer
}

// NewTimer starts a single-shot Timer that becomes ready at or after d.
func NewTimer(d time.Duration) *Timer {
	return &Timer{t: time.NewTimer(d)}
}

// C returns the timer's fire channel.
func (t *Timer) C() <-chan time.Time { return t.t.C }

// Reset stops and drains the timer, then rearms it for d.
func (t *Timer) Reset(d time.Duration) {
	if !t.t.Stop() {
		select {
		case <-t.t.C:
		default:
		}
	}
	t.t.Reset(d)
}

// Stop stops the timer, draining its channel if it had already fired.
func (t *Timer) Stop() {
	if !t.t.Stop() {
		select {
		case <-t.t.C:
		default:
		}
	}
}
