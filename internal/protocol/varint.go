package protocol

import (
	"errors"
	"io"
)

// MaxVarIntLen is the longest valid encoding of a 32-bit VarInt.
const MaxVarIntLen = 5

var ErrVarIntTooLong = errors.New("VarInt exceeds maximum length")

// ReadVarInt reads a protocol VarInt: 7-bit groups, least significant first,
// high bit of each byte marking continuation. Overlong encodings are rejected.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var value uint32
	for i := 0; ; i++ {
		if i == MaxVarIntLen {
			return 0, ErrVarIntTooLong
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	return int32(value), nil
}

// AppendVarInt appends the VarInt encoding of v to b.
func AppendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		b = append(b, byte(u)|0x80)
		u >>= 7
	}
	return append(b, byte(u))
}

// VarIntLen returns the encoded size of v in bytes.
func VarIntLen(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
