// Package ready provides the cross-goroutine wake/timer primitives used by
// Connection's background goroutines (spec §4.6 Utilities).
package ready

// Notifier is a level-triggered wake flag: the Go rendering of the
// source's eventfd analogue. Set is idempotent and non-blocking; each
// buffered slot makes exactly one waiter's receive on C() return, after
// which the flag is drained (spec §4.6: "setting it makes every waiter
// return ready exactly once per set; reads drain the count").
//
// Grounded on the "wake the loop after an external mutation" pattern in
// go-ampio-server/internal/transport.AsyncTx.loop, which selects on a
// channel fed by producers alongside ctx.Done().
type Notifier struct {
	ch chan struct{}
}

// NewNotifier returns a ready-to-use Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Set arms the notifier. Non-blocking: if already armed, this is a no-op.
func (n *Notifier) Set() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C returns the channel a select statement waits on. A successful receive
// drains the armed state.
func (n *Notifier) C() <-chan struct{} { return n.ch }
