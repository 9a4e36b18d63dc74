package protocol

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/ametel/gatehouse/internal/profile"
)

const (
	maxUsernameLen = 64
	maxSecretLen   = 256
	maxPluginLen   = 1 << 20

	maxPropertyLen = 32767
	maxProperties  = 16
)

var ErrMalformedLoginStart = errors.New("malformed login start packet")

// LoginStart carries the claimed username and, on newer protocol versions,
// a client-claimed profile id. The claim is never trusted on its own.
type LoginStart struct {
	Name string
	ID   *uuid.UUID
}

func (l *LoginStart) decode(r *Reader) (err error) {
	if l.Name, err = r.String(maxUsernameLen); err != nil {
		return err
	}
	// three encodings are in the wild: nothing, a bare uuid, and a
	// has-uuid bool followed by the uuid
	switch r.Len() {
	case 0:
		return nil
	case 16:
		id, err := r.UUID()
		if err != nil {
			return err
		}
		l.ID = &id
		return nil
	case 1:
		has, err := r.Bool()
		if err != nil {
			return err
		}
		if has {
			return ErrMalformedLoginStart
		}
		return nil
	case 17:
		has, err := r.Bool()
		if err != nil {
			return err
		}
		if !has {
			return ErrMalformedLoginStart
		}
		id, err := r.UUID()
		if err != nil {
			return err
		}
		l.ID = &id
		return nil
	default:
		return ErrMalformedLoginStart
	}
}

func (l *LoginStart) Marshal() []byte {
	var w Writer
	w.VarInt(0x00).String(l.Name)
	if l.ID != nil {
		w.Bool(true).UUID(*l.ID)
	} else {
		w.Bool(false)
	}
	return w.Bytes()
}

// EncryptionRequest challenges the client with the server's public key and a
// fresh verify token.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

func (e *EncryptionRequest) Marshal() []byte {
	var w Writer
	return w.VarInt(0x01).
		String(e.ServerID).
		ByteArray(e.PublicKey).
		ByteArray(e.VerifyToken).
		Bytes()
}

// EncryptionResponse returns the shared secret and the verify token, both
// encrypted under the server's public key.
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func (e *EncryptionResponse) decode(r *Reader) (err error) {
	if e.SharedSecret, err = r.ByteArray(maxSecretLen); err != nil {
		return err
	}
	e.VerifyToken, err = r.ByteArray(maxSecretLen)
	return
}

func (e *EncryptionResponse) Marshal() []byte {
	var w Writer
	return w.VarInt(0x01).
		ByteArray(e.SharedSecret).
		ByteArray(e.VerifyToken).
		Bytes()
}

// LoginSuccess completes the login and announces the canonical profile.
type LoginSuccess struct {
	ID         uuid.UUID
	Name       string
	Properties []profile.Property
}

func (l *LoginSuccess) Marshal() []byte {
	var w Writer
	w.VarInt(0x02).UUID(l.ID).String(l.Name)
	WriteProperties(&w, l.Properties)
	return w.Bytes()
}

// SetCompression announces the compression threshold about to take effect.
type SetCompression struct {
	Threshold int32
}

func (s *SetCompression) Marshal() []byte {
	var w Writer
	return w.VarInt(0x03).VarInt(s.Threshold).Bytes()
}

// LoginPluginRequest opens a custom query during login; the modern
// forwarding scheme rides on it.
type LoginPluginRequest struct {
	MessageID int32
	Channel   string
	Data      []byte
}

func (l *LoginPluginRequest) Marshal() []byte {
	var w Writer
	return w.VarInt(0x04).
		VarInt(l.MessageID).
		String(l.Channel).
		Raw(l.Data).
		Bytes()
}

// LoginPluginResponse answers a LoginPluginRequest. Data is only present
// when the client understood the channel.
type LoginPluginResponse struct {
	MessageID  int32
	Understood bool
	Data       []byte
}

func (l *LoginPluginResponse) decode(r *Reader) (err error) {
	if l.MessageID, err = r.VarInt(); err != nil {
		return err
	}
	if l.Understood, err = r.Bool(); err != nil {
		return err
	}
	if r.Len() > maxPluginLen {
		return ErrLengthTooLarge
	}
	l.Data = make([]byte, r.Len())
	_, err = r.Read(l.Data)
	return
}

func (l *LoginPluginResponse) Marshal() []byte {
	var w Writer
	return w.VarInt(0x02).
		VarInt(l.MessageID).
		Bool(l.Understood).
		Raw(l.Data).
		Bytes()
}

// Disconnect carries a structured text reason.
type Disconnect struct {
	Reason string // JSON text component
}

func (d *Disconnect) Marshal() []byte {
	var w Writer
	return w.VarInt(0x00).String(d.Reason).Bytes()
}

// TextReason wraps a plain message into a JSON text component.
func TextReason(msg string) string {
	b, _ := json.Marshal(struct {
		Text string `json:"text"`
	}{msg})
	return string(b)
}

// ReadProperties decodes a signed-property list.
func ReadProperties(r *Reader) ([]profile.Property, error) {
	n, err := r.VarInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if n > maxProperties {
		return nil, ErrLengthTooLarge
	}
	props := make([]profile.Property, 0, n)
	for i := int32(0); i < n; i++ {
		var p profile.Property
		if p.Name, err = r.String(maxPropertyLen); err != nil {
			return nil, err
		}
		if p.Value, err = r.String(maxPropertyLen); err != nil {
			return nil, err
		}
		signed, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if signed {
			if p.Signature, err = r.String(maxPropertyLen); err != nil {
				return nil, err
			}
		}
		props = append(props, p)
	}
	return props, nil
}

// WriteProperties encodes a signed-property list.
func WriteProperties(w *Writer, props []profile.Property) {
	w.VarInt(int32(len(props)))
	for _, p := range props {
		w.String(p.Name).String(p.Value)
		if p.Signature != "" {
			w.Bool(true).String(p.Signature)
		} else {
			w.Bool(false)
		}
	}
}
