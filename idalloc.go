// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import "sync/atomic"

// Parity selects the 32-bit ID half an endpoint owns for locally
// originated requests (spec §3 "Request ID space and parity"). The
// dialer side owns Even, the accepting side owns Odd.
type Parity uint8

const (
	ParityEven Parity = 0
	ParityOdd  Parity = 1
)

// idAllocator issues fresh, monotonically increasing IDs within one parity
// half, starting at the first non-zero value of that parity (id==0 is
// reserved for liveness filler / unsolicited traffic and must never be
// handed out — spec §3).
type idAllocator struct {
	parity Parity
	next   atomic.Uint32
}

func newIDAllocator(p Parity) *idAllocator {
	a := &idAllocator{parity: p}
	first := uint32(2)
	if p == ParityOdd {
		first = 1
	}
	a.next.Store(first)
	return a
}

// allocate returns the next ID for this parity half and advances the
// counter by 2, so consecutive issued IDs differ by exactly 2 (spec §5
// Ordering guarantees).
func (a *idAllocator) allocate() uint32 {
	return a.next.Add(2) - 2
}
