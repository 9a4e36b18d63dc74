package protocol

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"time"
)

const (
	// MaxFrameLen bounds the declared length of a single frame. The length
	// prefix itself never legitimately exceeds 3 bytes.
	MaxFrameLen    = 1<<21 - 1
	maxFrameLenLen = 3

	// MaxUncompressedLen bounds the declared pre-compression size of a
	// compressed frame, so a tiny frame cannot demand a huge allocation.
	MaxUncompressedLen = 1 << 21
)

var (
	ErrFrameTooLarge      = errors.New("frame length exceeds maximum")
	ErrBadFrameLength     = errors.New("frame length is zero or negative")
	ErrBadCompressedSize  = errors.New("declared uncompressed size is invalid")
	ErrBelowThreshold     = errors.New("compressed frame is below the compression threshold")
	ErrCompressionSet     = errors.New("compression threshold has already been set")
	ErrEncryptionSet      = errors.New("encryption has already been enabled")
	ErrPlaintextRemaining = errors.New("unread plaintext buffered when enabling encryption")
)

// cipherReader sits between the socket and the buffered reader so that the
// stream cipher, once installed, applies to every byte not yet buffered.
type cipherReader struct {
	r io.Reader
	s cipher.Stream
}

func (cr *cipherReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if cr.s != nil && n > 0 {
		cr.s.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// Conn frames packets over a raw duplex stream. Compression and encryption
// are one-way switches: each can be enabled at most once and never disabled
// for the remaining lifetime of the connection. A Conn is owned by a single
// goroutine and is not safe for concurrent use.
type Conn struct {
	conn net.Conn
	cr   *cipherReader
	br   *bufio.Reader

	threshold  int // -1: compression off
	sendCipher cipher.Stream
}

func NewConn(conn net.Conn) *Conn {
	cr := &cipherReader{r: conn}
	return &Conn{
		conn:      conn,
		cr:        cr,
		br:        bufio.NewReader(cr),
		threshold: -1,
	}
}

func (c *Conn) RemoteAddr() net.Addr              { return c.conn.RemoteAddr() }
func (c *Conn) Close() error                      { return c.conn.Close() }
func (c *Conn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }
func (c *Conn) CompressionThreshold() int         { return c.threshold }

// NetConn exposes the underlying socket for ownership transfer at handoff.
func (c *Conn) NetConn() net.Conn { return c.conn }

func (c *Conn) peekByte() (byte, error) {
	b, err := c.br.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// EnableCompression activates compressed framing for all subsequent frames
// in both directions. threshold must be non-negative.
func (c *Conn) EnableCompression(threshold int) error {
	if c.threshold >= 0 {
		return ErrCompressionSet
	}
	if threshold < 0 {
		return errors.New("compression threshold cannot be negative")
	}
	c.threshold = threshold
	return nil
}

// EnableEncryption installs the directional cipher pair. Any bytes already
// buffered were read as plaintext and cannot be re-interpreted, so the client
// speaking before the switch is a protocol violation.
func (c *Conn) EnableEncryption(send, recv cipher.Stream) error {
	if c.cr.s != nil || c.sendCipher != nil {
		return ErrEncryptionSet
	}
	if c.br.Buffered() > 0 {
		return ErrPlaintextRemaining
	}
	c.cr.s = recv
	c.sendCipher = send
	return nil
}

// ReadFrame reads one complete frame and returns the packet bytes (id +
// fields, decompressed). It blocks until a full frame arrives; partial input
// is left pending and the next call resumes where this one stopped only on
// deadline errors at the very first byte, otherwise mid-frame EOF is an error.
func (c *Conn) ReadFrame() ([]byte, error) {
	length, err := c.readFrameLen()
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, ErrBadFrameLength
	}
	if length > MaxFrameLen {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.br, body); err != nil {
		return nil, err
	}
	if c.threshold < 0 {
		return body, nil
	}
	return c.inflate(body)
}

// the length prefix is capped at 3 bytes rather than the general VarInt 5
func (c *Conn) readFrameLen() (int32, error) {
	var value uint32
	for i := 0; ; i++ {
		if i == maxFrameLenLen {
			return 0, ErrFrameTooLarge
		}
		b, err := c.br.ReadByte()
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

func (c *Conn) inflate(body []byte) ([]byte, error) {
	r := NewReader(body)
	dataLen, err := r.VarInt()
	if err != nil {
		return nil, err
	}
	rest := body[len(body)-r.Len():]
	if dataLen == 0 {
		// stored raw; anything that should have been compressed is a violation
		if len(rest) >= c.threshold {
			return nil, ErrBelowThreshold
		}
		return rest, nil
	}
	if dataLen < 0 || dataLen > MaxUncompressedLen {
		return nil, fmt.Errorf("%w: %d", ErrBadCompressedSize, dataLen)
	}
	if int(dataLen) < c.threshold {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowThreshold, dataLen, c.threshold)
	}
	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCompressedSize, err)
	}
	defer zr.Close()
	out := make([]byte, dataLen)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCompressedSize, err)
	}
	// a frame inflating to more than it declared is as bogus as one
	// inflating to less
	if n, _ := io.CopyN(ioutil.Discard, zr, 1); n != 0 {
		return nil, ErrBadCompressedSize
	}
	return out, nil
}

// WriteFrame frames and sends one packet (id + fields).
func (c *Conn) WriteFrame(pkt []byte) error {
	var body []byte
	if c.threshold < 0 {
		body = pkt
	} else if len(pkt) >= c.threshold {
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		if _, err := zw.Write(pkt); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		body = AppendVarInt(make([]byte, 0, zbuf.Len()+MaxVarIntLen), int32(len(pkt)))
		body = append(body, zbuf.Bytes()...)
	} else {
		body = make([]byte, 0, len(pkt)+1)
		body = append(body, 0)
		body = append(body, pkt...)
	}
	if len(body) > MaxFrameLen {
		return ErrFrameTooLarge
	}
	frame := AppendVarInt(make([]byte, 0, len(body)+maxFrameLenLen), int32(len(body)))
	frame = append(frame, body...)
	if c.sendCipher != nil {
		c.sendCipher.XORKeyStream(frame, frame)
	}
	_, err := c.conn.Write(frame)
	return err
}

// WritePacket serializes and sends a clientbound packet.
func (c *Conn) WritePacket(p Clientbound) error {
	return c.WriteFrame(p.Marshal())
}
