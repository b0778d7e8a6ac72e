// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Network names accepted by Listen/Dial (spec §6: "stream sockets in
// local-filesystem domain ... and IPv4 TCP"). Hostname resolution is
// intentionally not performed.
const (
	NetworkUnix = "unix"
	NetworkTCP  = "tcp"
)

// validateAddress rejects anything that isn't a Unix path or a literal
// IPv4 dotted-quad:port, per spec §6 ("Hostname resolution is not
// performed; IPs must be literal.").
func validateAddress(network, address string) error {
	switch network {
	case NetworkUnix:
		if address == "" {
			return fmt.Errorf("%w: empty unix path", ErrInvalidAddress)
		}
		return nil
	case NetworkTCP:
		host, portStr, err := net.SplitHostPort(address)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		if net.ParseIP(host) == nil || strings.Contains(host, ":") {
			return fmt.Errorf("%w: host %q is not a literal IPv4 address", ErrInvalidAddress, host)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("%w: port %q out of range 1..65535", ErrInvalidAddress, portStr)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported network %q", ErrInvalidAddress, network)
	}
}

// Listen opens a listener for network ("unix" or "tcp") on address.
//
// For "unix", a pre-existing path is unlinked before binding (spec §6:
// "local-domain listener optionally deletes a pre-existing path").
// For "tcp", SO_REUSEADDR is set through the listener's SyscallConn before
// returning, reusing go-ampio-server's golang.org/x/sys dependency (there
// for SocketCAN/serial ioctls) for a socket option instead of dropping it.
// Backlog is left to net.ListenConfig's platform default (spec §6: "backlog
// equals the platform maximum" — Go exposes no portable override).
func Listen(network, address string) (net.Listener, error) {
	if err := validateAddress(network, address); err != nil {
		return nil, err
	}
	if network == NetworkUnix {
		_ = os.Remove(address)
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
	}
	if network == NetworkTCP {
		if tl, ok := ln.(*net.TCPListener); ok {
			_ = setReuseAddr(tl)
		}
	}
	return ln, nil
}

func setReuseAddr(tl *net.TCPListener) error {
	sc, err := tl.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = sc.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// unlinkUnixSocket removes a Unix-domain listener's path from the
// filesystem. Server.Shutdown calls this for listeners it created on
// NetworkUnix (spec §4.4: "if the transport was local-domain, unlink the
// socket path").
func unlinkUnixSocket(ln net.Listener) {
	if addr, ok := ln.Addr().(*net.UnixAddr); ok {
		_ = os.Remove(addr.Name)
	}
}

// Dial connects to address over network, honoring ctx for cancellation and
// deadline. Used directly by Connector so local-domain and TCP dials share
// one code path (spec §4.5).
func Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := validateAddress(network, address); err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrDialTimeout, err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrDialCanceled, err)
		}
		return nil, err
	}
	return conn, nil
}

// isTimeout reports whether err is a network-level timeout, used by the
// Connection read loop to tell an expired peer-liveness read deadline apart
// from other transport failures (both close the Connection).
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	var se *os.SyscallError
	if errors.As(err, &se) {
		return se.Err == syscall.ETIMEDOUT
	}
	return false
}
