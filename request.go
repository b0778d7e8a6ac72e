// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import "encoding/binary"

// livelinessFillerName is the reserved Datum-less Request name consumed
// silently by the receive path to keep the peer-liveness timer alive
// (spec §3 invariant 4, §6).
const livelinessFillerName = "_"

// Request is an ordered (id, name) envelope around zero or more Datum
// arguments. Insertion order is preserved; Arg looks up the first match
// (no duplicate-name invariant is enforced, per spec §3).
type Request struct {
	ID   uint32
	Name string
	Args []Datum
}

// NewRequest builds a Request with the given name and arguments.
func NewRequest(name string, args ...Datum) *Request {
	return &Request{Name: name, Args: append([]Datum(nil), args...)}
}

// isLivelinessFiller reports whether r is the reserved "_" keep-alive
// filler (spec §3 invariant 4 / §4.3 dispatch cascade step 1).
func (r *Request) isLivelinessFiller() bool { return r.Name == livelinessFillerName }

// newLivelinessFiller builds the id==0, name=="_" filler Request emitted by
// the local liveness timer (spec §4.3).
func newLivelinessFiller() *Request { return &Request{Name: livelinessFillerName} }

// Arg returns the first Datum named name, and whether it was found.
func (r *Request) Arg(name string) (Value, bool) {
	for _, d := range r.Args {
		if d.Name == name {
			return d.Value, true
		}
	}
	return Value{}, false
}

// Set appends or replaces (first match) a named argument.
func (r *Request) Set(name string, v Value) {
	for i, d := range r.Args {
		if d.Name == name {
			r.Args[i].Value = v
			return
		}
	}
	r.Args = append(r.Args, Datum{Name: name, Value: v})
}

// size returns the encoded size of r including its own 4-byte total_len.
func (r *Request) size() uint32 {
	n := uint32(4 + 4 + 2 + len(r.Name))
	for _, d := range r.Args {
		n += d.size()
	}
	return n
}

// encode serializes r into a freshly allocated buffer of size r.size(),
// per spec §4.2 ("returns a freshly allocated buffer of size
// GetSizeInternal+5 including the header" — for Request the header is the
// 4+4+2 id/name_len prefix rather than Value's 5 bytes).
func (r *Request) encode() []byte {
	total := r.size()
	dst := make([]byte, 0, total)
	dst = appendU32(dst, total)
	dst = appendU32(dst, r.ID)
	dst = appendU16(dst, uint16(len(r.Name)))
	dst = append(dst, r.Name...)
	for _, d := range r.Args {
		dst = d.encodeTo(dst)
	}
	return dst
}

// decodeRequest decodes exactly one Request from data. It returns the
// Request and bytes consumed on success, or (nil, 0) on malformed input —
// the decoder is total and never mutates data (spec §4.2). Trailing bytes
// beyond total_len are tolerated and simply not consumed; the frame codec
// never hands trailing bytes in practice.
func decodeRequest(data []byte) (*Request, uint32) {
	const reqHeader = 4 + 4 + 2
	if len(data) < reqHeader {
		return nil, 0
	}
	total := binary.LittleEndian.Uint32(data[0:4])
	if total < reqHeader || uint64(total) > uint64(len(data)) {
		return nil, 0
	}
	id := binary.LittleEndian.Uint32(data[4:8])
	nameLen := binary.LittleEndian.Uint16(data[8:10])
	if uint64(reqHeader)+uint64(nameLen) > uint64(total) {
		return nil, 0
	}
	name := string(data[reqHeader : reqHeader+uint32(nameLen)])
	rest := data[reqHeader+uint32(nameLen) : total]

	var args []Datum
	for len(rest) > 0 {
		d, n := decodeDatum(rest)
		if n == 0 {
			return nil, 0
		}
		args = append(args, d)
		rest = rest[n:]
	}
	return &Request{ID: id, Name: name, Args: args}, total
}
