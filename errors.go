// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import "errors"

// Sentinel errors. Callers classify with errors.Is; call sites wrap with
// fmt.Errorf("%w: ...") to add context, mirroring
// go-ampio-server/internal/server/errors.go's sentinel+wrap pattern.
var (
	// ErrTransportClosed means the underlying stream reported EOF or a
	// read/write error. The owning Connection closes immediately.
	ErrTransportClosed = errors.New("dowownet: transport closed")

	// ErrFrameTooLarge means an inbound frame declared a length exceeding
	// the configured maximum. Fatal: the Connection closes before the body
	// is read.
	ErrFrameTooLarge = errors.New("dowownet: frame too large")

	// ErrFrameTooSmall means an inbound frame declared a length below the
	// protocol floor (10 bytes). Fatal.
	ErrFrameTooSmall = errors.New("dowownet: frame too small")

	// ErrMalformedFrame means a complete frame failed to decode as a
	// Request. Fatal.
	ErrMalformedFrame = errors.New("dowownet: malformed frame")

	// ErrNotConnected is returned by calls made against a Connection that
	// is not in the Open state.
	ErrNotConnected = errors.New("dowownet: not connected")

	// ErrDisconnecting is returned by Push against a Connection that has
	// begun a graceful disconnect.
	ErrDisconnecting = errors.New("dowownet: disconnecting")

	// ErrAlreadyConnected is returned by Server.Serve when called more
	// than once on a Server that already has a bound listener.
	ErrAlreadyConnected = errors.New("dowownet: already connected")

	// ErrDialTimeout means Connector's dial did not complete (connect or
	// writability wait) within the configured timeout.
	ErrDialTimeout = errors.New("dowownet: dial timeout")

	// ErrDialCanceled means Connector.Cancel was called before the dial
	// completed.
	ErrDialCanceled = errors.New("dowownet: dial canceled")

	// ErrConnectorConsumed means Connector.Wait (or Take) was already
	// called successfully once; ownership of the Connection already
	// transferred out.
	ErrConnectorConsumed = errors.New("dowownet: connector result already taken")

	// ErrInvalidAddress means a dial/listen address failed validation
	// (e.g. a non-literal TCP host, or an out-of-range port).
	ErrInvalidAddress = errors.New("dowownet: invalid address")

	// ErrListenFailed wraps a failure to bind a listener.
	ErrListenFailed = errors.New("dowownet: listen failed")

	// ErrNoSuchConnection is returned by Server lookups that miss.
	ErrNoSuchConnection = errors.New("dowownet: no such connection")
)
