package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrNegativeLength = errors.New("negative length prefix")
	ErrLengthTooLarge = errors.New("length prefix exceeds limit")
	ErrInvalidString  = errors.New("string is not valid UTF-8")
)

// Reader decodes packet fields from a single decoded frame. It is a thin
// wrapper over bytes.Reader so ReadVarInt can be used on it directly.
type Reader struct {
	*bytes.Reader
}

func NewReader(b []byte) *Reader {
	return &Reader{bytes.NewReader(b)}
}

func (r *Reader) VarInt() (int32, error) {
	return ReadVarInt(r)
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func (r *Reader) Uint16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (r *Reader) Int64() (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// ByteArray reads a VarInt-prefixed byte slice of at most max bytes.
func (r *Reader) ByteArray(max int) ([]byte, error) {
	n, err := r.VarInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if int(n) > max || int(n) > r.Len() {
		return nil, ErrLengthTooLarge
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// String reads a VarInt-prefixed UTF-8 string of at most max bytes.
func (r *Reader) String(max int) (string, error) {
	buf, err := r.ByteArray(max)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", ErrInvalidString
	}
	return string(buf), nil
}

func (r *Reader) UUID() (uuid.UUID, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(buf[:])
}

// Writer accumulates packet fields into a frame body.
type Writer struct {
	buf []byte
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) VarInt(v int32) *Writer {
	w.buf = AppendVarInt(w.buf, v)
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w
}

func (w *Writer) Uint16(v uint16) *Writer {
	w.buf = append(w.buf, byte(v>>8), byte(v))
	return w
}

func (w *Writer) Int64(v int64) *Writer {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	w.buf = append(w.buf, buf[:]...)
	return w
}

func (w *Writer) ByteArray(b []byte) *Writer {
	w.VarInt(int32(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) String(s string) *Writer {
	return w.ByteArray([]byte(s))
}

func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) UUID(id uuid.UUID) *Writer {
	w.buf = append(w.buf, id[:]...)
	return w
}
