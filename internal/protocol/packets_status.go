package protocol

// StatusRequest asks for the server list JSON. Empty body.
type StatusRequest struct{}

func (*StatusRequest) decode(*Reader) error { return nil }

func (*StatusRequest) Marshal() []byte {
	var w Writer
	return w.VarInt(0x00).Bytes()
}

// StatusResponse carries the status envelope. The JSON content is opaque to
// the pipeline and supplied by the caller.
type StatusResponse struct {
	JSON []byte
}

func (s *StatusResponse) Marshal() []byte {
	var w Writer
	return w.VarInt(0x00).ByteArray(s.JSON).Bytes()
}

// Ping carries an arbitrary client payload which Pong must echo verbatim.
type Ping struct {
	Payload int64
}

func (p *Ping) decode(r *Reader) (err error) {
	p.Payload, err = r.Int64()
	return
}

func (p *Ping) Marshal() []byte {
	var w Writer
	return w.VarInt(0x01).Int64(p.Payload).Bytes()
}

type Pong struct {
	Payload int64
}

func (p *Pong) Marshal() []byte {
	var w Writer
	return w.VarInt(0x01).Int64(p.Payload).Bytes()
}
