package protocol

import (
	"errors"
	"fmt"
)

// State is the protocol state a connection is in. It only ever moves
// forward: Handshake branches into Status or Login and neither is revisited.
type State int32

const (
	StateHandshake State = iota
	StateStatus
	StateLogin
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateStatus:
		return "status"
	case StateLogin:
		return "login"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrUnknownPacket = errors.New("unknown packet id for state")
	ErrTrailingBytes = errors.New("trailing bytes after packet body")
	ErrLegacyPing    = errors.New("legacy server-list ping is not supported")
)

// pre-Netty clients open with this marker byte instead of a length prefix
const legacyPingID = 0xfe

// Serverbound is a packet decoded off the wire. The set of implementations
// per state is closed; ids outside the table are violations, never ignored.
type Serverbound interface {
	decode(r *Reader) error
}

// Clientbound is a packet the server sends.
type Clientbound interface {
	Marshal() []byte
}

var decoders = map[State]map[int32]func() Serverbound{
	StateHandshake: {
		0x00: func() Serverbound { return new(Handshake) },
	},
	StateStatus: {
		0x00: func() Serverbound { return new(StatusRequest) },
		0x01: func() Serverbound { return new(Ping) },
	},
	StateLogin: {
		0x00: func() Serverbound { return new(LoginStart) },
		0x01: func() Serverbound { return new(EncryptionResponse) },
		0x02: func() Serverbound { return new(LoginPluginResponse) },
	},
}

// Decode parses one frame's packet bytes according to the current state.
func Decode(state State, frame []byte) (Serverbound, error) {
	r := NewReader(frame)
	id, err := r.VarInt()
	if err != nil {
		return nil, err
	}
	mk, ok := decoders[state][id]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x in %v", ErrUnknownPacket, id, state)
	}
	pkt := mk()
	if err := pkt.decode(r); err != nil {
		return nil, fmt.Errorf("decoding packet 0x%02x: %w", id, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: 0x%02x", ErrTrailingBytes, id)
	}
	return pkt, nil
}

// ReadPacket reads the next frame off the connection and decodes it. A
// legacy 0xFE ping is not framed and can never parse as one, so it is
// rejected on its first byte instead of stalling on a body that will
// never arrive.
func ReadPacket(c *Conn, state State) (Serverbound, error) {
	if state == StateHandshake {
		b, err := c.peekByte()
		if err != nil {
			return nil, err
		}
		if b == legacyPingID {
			return nil, ErrLegacyPing
		}
	}
	frame, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	return Decode(state, frame)
}
