// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import "encoding/binary"

// Datum is a named Value; the composition unit inside a Request (spec §3).
type Datum struct {
	Name  string
	Value Value
}

// NewDatum builds a Datum. A Datum is valid (per spec §3) iff Name is
// non-empty; this constructor does not enforce that so callers can build
// placeholder Datums, matching the source's permissive construction.
func NewDatum(name string, v Value) Datum { return Datum{Name: name, Value: v} }

// Valid reports whether d satisfies the Datum validity invariant: a
// non-empty name and a Value present (Undefined still counts as present —
// only total absence, i.e. never decoded, does not happen for a
// constructed Datum).
func (d Datum) Valid() bool { return d.Name != "" }

// size returns the encoded size of d including its own 4-byte total_len
// and 2-byte name_len prefix, per spec §3/§6.
func (d Datum) size() uint32 {
	return 4 + 2 + uint32(len(d.Name)) + d.Value.size()
}

func (d Datum) encodeTo(dst []byte) []byte {
	total := d.size()
	dst = appendU32(dst, total)
	dst = appendU16(dst, uint16(len(d.Name)))
	dst = append(dst, d.Name...)
	dst = d.Value.encodeTo(dst)
	return dst
}

// Encode serializes d into a freshly allocated buffer.
func (d Datum) Encode() []byte {
	return d.encodeTo(make([]byte, 0, d.size()))
}

// decodeDatum decodes exactly one Datum from data, returning the Datum and
// bytes consumed, or (Datum{}, 0) on malformed input.
func decodeDatum(data []byte) (Datum, uint32) {
	const datumHeader = 4 + 2
	if len(data) < datumHeader {
		return Datum{}, 0
	}
	total := binary.LittleEndian.Uint32(data[0:4])
	if total < datumHeader || uint64(total) > uint64(len(data)) {
		return Datum{}, 0
	}
	nameLen := binary.LittleEndian.Uint16(data[4:6])
	if uint64(datumHeader)+uint64(nameLen) > uint64(total) {
		return Datum{}, 0
	}
	name := string(data[datumHeader : datumHeader+uint32(nameLen)])
	rest := data[datumHeader+uint32(nameLen) : total]
	v, n := decodeValue(rest)
	if n == 0 || uint32(datumHeader)+uint32(nameLen)+n != total {
		return Datum{}, 0
	}
	return Datum{Name: name, Value: v}, total
}

func appendU16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}
