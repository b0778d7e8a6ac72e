// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

// ConnState is the Connection state machine (spec §4.3 "State machine"):
// Open -> Disconnecting -> Closed, or Open -> Closed directly.
type ConnState uint8

const (
	StateOpen ConnState = iota
	StateDisconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
