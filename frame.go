// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import (
	"encoding/binary"
	"fmt"
	"io"
)

// minFrameSize is the protocol floor: a Request's own encoding can never be
// smaller than its 4-byte total_len + 4-byte id + 2-byte name_len prefix.
const minFrameSize = 10

// defaultMaxFrameSize is the default inbound frame ceiling (spec §6).
const defaultMaxFrameSize = 16 * 1024

// encodeFrame serializes r as a self-describing frame: its own encoding
// already begins with its little-endian total length (spec §4.1 frame
// self-description, verified by TestFrameSelfDescription).
func encodeFrame(r *Request) []byte { return r.encode() }

// readFrame reads exactly one framed Request from src, enforcing maxFrame
// (floored to minFrameSize by the caller — see WithMaxFrameSize).
//
// Grounded on go-ampio-server/internal/cnl.Codec.Decode: read a fixed
// header, validate, then read exactly the declared body length with
// io.ReadFull. Unlike cnl.Codec this keeps the header bytes in the
// returned buffer (self-describing, per spec §4.1) before handing it to
// the Request decoder.
//
// A net.Error timeout is returned unwrapped (not as ErrTransportClosed) so
// the caller can tell a deadline-driven wakeup (peer-liveness expiry) apart
// from a genuine transport failure.
func readFrame(src io.Reader, maxFrame uint32) (*Request, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(src, hdr[:]); err != nil {
		if isTimeout(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	total := binary.LittleEndian.Uint32(hdr[:])
	if total < minFrameSize {
		return nil, fmt.Errorf("%w: declared length %d below floor %d", ErrFrameTooSmall, total, minFrameSize)
	}
	if total > maxFrame {
		return nil, fmt.Errorf("%w: declared length %d exceeds max %d", ErrFrameTooLarge, total, maxFrame)
	}

	buf := make([]byte, total)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(src, buf[4:]); err != nil {
		if isTimeout(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}

	req, n := decodeRequest(buf)
	if n == 0 || req == nil {
		return nil, fmt.Errorf("%w: request decode failed", ErrMalformedFrame)
	}
	return req, nil
}

// writeFrame writes the full frame encoding of r to dst in chunks of at
// most chunkSize bytes per Write call (spec §4.3: "send up to
// send_block_size bytes from the current send buffer"), honoring
// io.Writer's short-write contract.
func writeFrame(dst io.Writer, r *Request, chunkSize int) error {
	buf := encodeFrame(r)
	if chunkSize <= 0 {
		chunkSize = len(buf)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	off := 0
	for off < len(buf) {
		end := off + chunkSize
		if end > len(buf) {
			end = len(buf)
		}
		n, err := dst.Write(buf[off:end])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: zero-length write", ErrTransportClosed)
		}
		off += n
	}
	return nil
}
