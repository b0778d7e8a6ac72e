// ©dowownet contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dowownet

import "encoding/binary"

// ValueTag identifies the wire variant of a Value.
type ValueTag uint8

// Wire tags, fixed by the protocol (§3 of the spec).
const (
	TagUndefined ValueTag = 0
	TagI64       ValueTag = 1
	TagU64       ValueTag = 2
	TagI32       ValueTag = 3
	TagU32       ValueTag = 4
	TagI16       ValueTag = 5
	TagU16       ValueTag = 6
	TagU8        ValueTag = 7
	TagI8        ValueTag = 8
	TagStr       ValueTag = 9
	TagArr       ValueTag = 10
)

// headerSize is the fixed tag+length prefix of every Value record:
// 1 byte tag, 4 bytes little-endian length.
const headerSize = 5

// Value is a tagged-union payload atom. It is the single closed sum type
// mandated by the spec's DESIGN NOTES (§9: "a closed enum is the natural
// shape") in place of the source's per-variant class hierarchy.
//
// Scalars store their bytes in raw (little-endian, as declared on the
// wire). Arr stores its elements decoded. Undefined and Str store raw
// bytes directly.
type Value struct {
	tag   ValueTag
	raw   []byte  // scalar / Str / Undefined payload, exactly as encoded
	items []Value // Arr elements, in order
}

// NewUndefined returns an Undefined Value wrapping an opaque byte block.
func NewUndefined(b []byte) Value {
	cp := append([]byte(nil), b...)
	return Value{tag: TagUndefined, raw: cp}
}

// NewI64 returns an I64 Value.
func NewI64(v int64) Value { return Value{tag: TagI64, raw: le(8, uint64(v))} }

// NewU64 returns a U64 Value.
func NewU64(v uint64) Value { return Value{tag: TagU64, raw: le(8, v)} }

// NewI32 returns an I32 Value.
func NewI32(v int32) Value { return Value{tag: TagI32, raw: le(4, uint64(uint32(v)))} }

// NewU32 returns a U32 Value.
func NewU32(v uint32) Value { return Value{tag: TagU32, raw: le(4, uint64(v))} }

// NewI16 returns an I16 Value.
func NewI16(v int16) Value { return Value{tag: TagI16, raw: le(2, uint64(uint16(v)))} }

// NewU16 returns a U16 Value.
func NewU16(v uint16) Value { return Value{tag: TagU16, raw: le(2, uint64(v))} }

// NewU8 returns a U8 Value.
func NewU8(v uint8) Value { return Value{tag: TagU8, raw: []byte{v}} }

// NewI8 returns an I8 Value.
func NewI8(v int8) Value { return Value{tag: TagI8, raw: []byte{byte(v)}} }

// NewStr returns a Str Value.
func NewStr(s string) Value { return Value{tag: TagStr, raw: []byte(s)} }

// NewArr returns an Arr Value. Elements are copied by value (Value has no
// exported mutable state, so this is a cheap shallow copy of the slice).
func NewArr(items ...Value) Value {
	cp := append([]Value(nil), items...)
	return Value{tag: TagArr, items: cp}
}

func le(n int, v uint64) []byte {
	b := make([]byte, n)
	switch n {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	}
	return b
}

// Tag reports the Value's wire variant.
func (v Value) Tag() ValueTag { return v.tag }

// IsDefined reports whether the Value is anything other than Undefined.
func (v Value) IsDefined() bool { return v.tag != TagUndefined }

// AsBytes returns the raw payload for Undefined and Str variants (nil for
// anything else).
func (v Value) AsBytes() []byte {
	if v.tag != TagUndefined && v.tag != TagStr {
		return nil
	}
	return v.raw
}

// AsStr returns the Str payload as a string (empty for any other variant).
func (v Value) AsStr() string {
	if v.tag != TagStr {
		return ""
	}
	return string(v.raw)
}

// AsArr returns the Arr elements (nil for any other variant).
func (v Value) AsArr() []Value {
	if v.tag != TagArr {
		return nil
	}
	return v.items
}

// AsI64 returns the scalar value reinterpreted as int64; zero for
// non-integer variants.
func (v Value) AsI64() int64 { return int64(v.asU64()) }

// AsU64 returns the scalar value reinterpreted as uint64; zero for
// non-integer variants.
func (v Value) AsU64() uint64 { return v.asU64() }

// AsI32 returns the scalar value truncated to int32.
func (v Value) AsI32() int32 { return int32(v.asU64()) }

// AsU32 returns the scalar value truncated to uint32.
func (v Value) AsU32() uint32 { return uint32(v.asU64()) }

// AsI16 returns the scalar value truncated to int16.
func (v Value) AsI16() int16 { return int16(v.asU64()) }

// AsU16 returns the scalar value truncated to uint16.
func (v Value) AsU16() uint16 { return uint16(v.asU64()) }

// AsU8 returns the scalar value truncated to uint8.
func (v Value) AsU8() uint8 { return uint8(v.asU64()) }

// AsI8 returns the scalar value truncated to int8.
func (v Value) AsI8() int8 { return int8(v.asU64()) }

func (v Value) asU64() uint64 {
	switch v.tag {
	case TagUndefined, TagStr, TagArr:
		return 0
	}
	switch len(v.raw) {
	case 1:
		return uint64(v.raw[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(v.raw))
	case 4:
		return uint64(binary.LittleEndian.Uint32(v.raw))
	case 8:
		return binary.LittleEndian.Uint64(v.raw)
	default:
		return 0
	}
}

// Equal reports deep equality, recursing into Arr elements.
func (v Value) Equal(o Value) bool {
	if v.tag != o.tag {
		return false
	}
	if v.tag == TagArr {
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	}
	if len(v.raw) != len(o.raw) {
		return false
	}
	for i := range v.raw {
		if v.raw[i] != o.raw[i] {
			return false
		}
	}
	return true
}

// size returns GetSizeInternal()+5: the full encoded record size including
// the tag+length header, per spec §4.2.
func (v Value) size() uint32 {
	if v.tag == TagArr {
		var n uint32 = 4 // element count
		for _, it := range v.items {
			n += it.size()
		}
		return headerSize + n
	}
	if v.tag == TagStr {
		return headerSize + 4 + uint32(len(v.raw))
	}
	return headerSize + uint32(len(v.raw))
}

// encodeTo appends the wire encoding of v to dst and returns the result.
func (v Value) encodeTo(dst []byte) []byte {
	switch v.tag {
	case TagArr:
		payloadLen := v.size() - headerSize
		dst = append(dst, byte(v.tag))
		dst = appendU32(dst, payloadLen)
		dst = appendU32(dst, uint32(len(v.items)))
		for _, it := range v.items {
			dst = it.encodeTo(dst)
		}
	case TagStr:
		dst = append(dst, byte(v.tag))
		dst = appendU32(dst, uint32(4+len(v.raw)))
		dst = appendU32(dst, uint32(len(v.raw)))
		dst = append(dst, v.raw...)
	default:
		dst = append(dst, byte(v.tag))
		dst = appendU32(dst, uint32(len(v.raw)))
		dst = append(dst, v.raw...)
	}
	return dst
}

// Encode serializes v into a freshly allocated buffer, per spec §4.2.
func (v Value) Encode() []byte {
	return v.encodeTo(make([]byte, 0, v.size()))
}

// decodeValue decodes exactly one Value record from data, returning the
// Value and the number of bytes consumed. It returns (Value{}, 0) on any
// malformed input without mutating the caller's buffer, matching the
// "decoder is total" contract in spec §4.2.
func decodeValue(data []byte) (Value, uint32) {
	if len(data) < headerSize {
		return Value{}, 0
	}
	tag := ValueTag(data[0])
	length := binary.LittleEndian.Uint32(data[1:5])
	if uint64(length) > uint64(len(data)-headerSize) {
		return Value{}, 0
	}
	payload := data[headerSize : headerSize+length]

	switch tag {
	case TagUndefined:
		return NewUndefined(payload), headerSize + length
	case TagI64, TagU64:
		if length != 8 {
			return Value{}, 0
		}
		return Value{tag: tag, raw: append([]byte(nil), payload...)}, headerSize + length
	case TagI32, TagU32:
		if length != 4 {
			return Value{}, 0
		}
		return Value{tag: tag, raw: append([]byte(nil), payload...)}, headerSize + length
	case TagI16, TagU16:
		if length != 2 {
			return Value{}, 0
		}
		return Value{tag: tag, raw: append([]byte(nil), payload...)}, headerSize + length
	case TagU8, TagI8:
		if length != 1 {
			return Value{}, 0
		}
		return Value{tag: tag, raw: append([]byte(nil), payload...)}, headerSize + length
	case TagStr:
		if length < 4 {
			return Value{}, 0
		}
		strLen := binary.LittleEndian.Uint32(payload[0:4])
		if uint64(strLen) != uint64(length-4) {
			return Value{}, 0
		}
		return NewStr(string(payload[4:])), headerSize + length
	case TagArr:
		if length < 4 {
			return Value{}, 0
		}
		count := binary.LittleEndian.Uint32(payload[0:4])
		items := make([]Value, 0, count)
		rest := payload[4:]
		var consumed uint32
		for i := uint32(0); i < count; i++ {
			el, n := decodeValue(rest)
			if n == 0 {
				// One bad element discards the whole array decode.
				return Value{}, 0
			}
			items = append(items, el)
			rest = rest[n:]
			consumed += n
		}
		if consumed != length-4 {
			return Value{}, 0
		}
		return Value{tag: TagArr, items: items}, headerSize + length
	default:
		return Value{}, 0
	}
}

func appendU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}
