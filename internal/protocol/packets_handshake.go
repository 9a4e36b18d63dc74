package protocol

import "errors"

// next-state values carried by the handshake
const (
	NextStateStatus int32 = 1
	NextStateLogin  int32 = 2
)

// maxServerAddressLen is generous because proxy deployments smuggle
// forwarding data into the address field.
const maxServerAddressLen = 2048

var ErrBadNextState = errors.New("handshake declared an invalid next state")

// Handshake is the first and only packet of the handshake state.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func (h *Handshake) decode(r *Reader) (err error) {
	if h.ProtocolVersion, err = r.VarInt(); err != nil {
		return err
	}
	if h.ServerAddress, err = r.String(maxServerAddressLen); err != nil {
		return err
	}
	if h.ServerPort, err = r.Uint16(); err != nil {
		return err
	}
	if h.NextState, err = r.VarInt(); err != nil {
		return err
	}
	if h.NextState != NextStateStatus && h.NextState != NextStateLogin {
		return ErrBadNextState
	}
	return nil
}

// Marshal lets tests and client tooling emit a handshake.
func (h *Handshake) Marshal() []byte {
	var w Writer
	return w.VarInt(0x00).
		VarInt(h.ProtocolVersion).
		String(h.ServerAddress).
		Uint16(h.ServerPort).
		VarInt(h.NextState).
		Bytes()
}
