package server

import (
	"errors"
	"time"

	"github.com/ametel/gatehouse/internal/protocol"
)

var errDuplicateRequest = errors.New("duplicate status request")

// handleStatus answers the server-list exchange: at most one request with
// the caller-supplied JSON envelope, then a ping echoed verbatim, then the
// connection closes.
func handleStatus(pc *protocol.Conn, hs *protocol.Handshake, sta *State) error {
	answered := false
	for {
		pc.SetReadDeadline(time.Now().Add(sta.PhaseTimeout))
		pkt, err := protocol.ReadPacket(pc, protocol.StateStatus)
		if err != nil {
			return err
		}
		switch p := pkt.(type) {
		case *protocol.StatusRequest:
			if answered {
				return errDuplicateRequest
			}
			answered = true
			err := pc.WritePacket(&protocol.StatusResponse{JSON: sta.Status(hs.ProtocolVersion)})
			if err != nil {
				return err
			}
		case *protocol.Ping:
			return pc.WritePacket(&protocol.Pong{Payload: p.Payload})
		}
	}
}
