package server

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ametel/gatehouse/internal/crypto"
	"github.com/ametel/gatehouse/internal/forward"
	"github.com/ametel/gatehouse/internal/profile"
	"github.com/ametel/gatehouse/internal/protocol"
	"github.com/ametel/gatehouse/internal/verifier"
)

var (
	errVerifyToken   = errors.New("verify token mismatch")
	errOutOfOrder    = errors.New("packet out of order for login substate")
	errNonceMismatch = errors.New("login plugin response answers a different request")
)

// bannedError keeps the stored reason so the user-visible disconnect can
// carry it.
type bannedError struct {
	reason string
}

func (e bannedError) Error() string { return "profile is banned: " + e.reason }

// handleConnection owns one accepted socket for the whole pre-handoff
// lifetime. Every exit path releases the socket and its slot; a fault here
// never reaches the acceptor or other connections.
func handleConnection(conn net.Conn, sta *State) {
	remoteAddr := conn.RemoteAddr()
	handedOff := false
	released := false
	release := func() {
		if !released {
			released = true
			atomic.AddInt64(&sta.pending, -1)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("remoteAddr", remoteAddr).Errorf("panic in connection task: %v", r)
		}
		if !handedOff {
			conn.Close()
		}
		release()
	}()

	pc := protocol.NewConn(conn)

	pc.SetReadDeadline(time.Now().Add(sta.PhaseTimeout))
	pkt, err := protocol.ReadPacket(pc, protocol.StateHandshake)
	if err != nil {
		log.WithField("remoteAddr", remoteAddr).Infof("handshake failed: %v", err)
		return
	}
	hs := pkt.(*protocol.Handshake)

	switch hs.NextState {
	case protocol.NextStateStatus:
		if err := handleStatus(pc, hs, sta); err != nil {
			log.WithField("remoteAddr", remoteAddr).Debugf("status exchange ended: %v", err)
		}
	case protocol.NextStateLogin:
		sess, err := handleLogin(pc, hs, sta)
		if err != nil {
			rejectLogin(pc, remoteAddr, err)
			return
		}
		atomic.AddInt64(&sta.completed, 1)
		log.WithFields(log.Fields{
			"remoteAddr": remoteAddr,
			"username":   sess.Profile.Name,
			"uuid":       sess.Profile.ID,
		}).Info("Login complete")

		// the slot is freed before handoff: the session no longer counts
		// against the pre-handoff bound
		release()
		handedOff = true
		pc.SetReadDeadline(time.Time{})
		sta.Handler.HandleSession(sess)
	}
}

// handleLogin runs the login state machine to completion and returns the
// session to hand off. Exactly one of the three paths produces the profile;
// they are never mixed.
func handleLogin(pc *protocol.Conn, hs *protocol.Handshake, sta *State) (*Session, error) {
	// under legacy forwarding the identity claim already rode in on the
	// handshake; reject malformed claims before reading anything else
	var legacyClaim forward.LegacyClaim
	if sta.ProxyMode == ProxyLegacy {
		var err error
		legacyClaim, err = forward.ParseLegacy(hs.ServerAddress)
		if err != nil {
			return nil, err
		}
	}

	pc.SetReadDeadline(time.Now().Add(sta.PhaseTimeout))
	pkt, err := protocol.ReadPacket(pc, protocol.StateLogin)
	if err != nil {
		return nil, err
	}
	start, ok := pkt.(*protocol.LoginStart)
	if !ok {
		return nil, errOutOfOrder
	}

	clientAddr := hostOf(pc.RemoteAddr())
	var prof profile.Profile
	encrypted := false

	switch {
	case sta.ProxyMode == ProxyLegacy:
		prof = profile.Profile{
			ID:         legacyClaim.ID,
			Name:       start.Name,
			Properties: legacyClaim.Properties,
		}
		clientAddr = legacyClaim.ClientAddr

	case sta.ProxyMode == ProxyModern:
		claim, err := modernExchange(pc, sta)
		if err != nil {
			return nil, err
		}
		prof = claim.Profile
		clientAddr = claim.ClientAddr

	case sta.OnlineMode:
		prof, err = onlineLogin(pc, sta, start.Name, clientAddr)
		if err != nil {
			return nil, err
		}
		encrypted = true

	default:
		prof = profile.Offline(start.Name)
	}

	// the online path already switched compression on under the cipher
	if !encrypted {
		if err := activateCompression(pc, sta); err != nil {
			return nil, err
		}
	}

	if rec, err := sta.Bans.Get(prof.ID); err == nil {
		return nil, bannedError{reason: rec.Reason}
	}

	err = pc.WritePacket(&protocol.LoginSuccess{
		ID:         prof.ID,
		Name:       prof.Name,
		Properties: prof.Properties,
	})
	if err != nil {
		return nil, err
	}
	return &Session{Conn: pc, Profile: prof, ClientAddr: clientAddr}, nil
}

// onlineLogin performs the vanilla RSA-then-session-service path.
func onlineLogin(pc *protocol.Conn, sta *State, username, clientIP string) (profile.Profile, error) {
	token := crypto.NewVerifyToken()
	err := pc.WritePacket(&protocol.EncryptionRequest{
		ServerID:    sta.ServerID,
		PublicKey:   sta.Keys.PublicDER(),
		VerifyToken: token,
	})
	if err != nil {
		return profile.Profile{}, err
	}

	pc.SetReadDeadline(time.Now().Add(sta.PhaseTimeout))
	pkt, err := protocol.ReadPacket(pc, protocol.StateLogin)
	if err != nil {
		return profile.Profile{}, err
	}
	resp, ok := pkt.(*protocol.EncryptionResponse)
	if !ok {
		return profile.Profile{}, errOutOfOrder
	}

	secret, err := sta.Keys.Decrypt(resp.SharedSecret)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("%w: undecryptable secret", errVerifyToken)
	}
	echo, err := sta.Keys.Decrypt(resp.VerifyToken)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("%w: undecryptable token", errVerifyToken)
	}
	if !bytes.Equal(echo, token) {
		return profile.Profile{}, errVerifyToken
	}

	send, recv, err := crypto.CipherPair(secret)
	if err != nil {
		return profile.Profile{}, err
	}
	if err := pc.EnableEncryption(send, recv); err != nil {
		return profile.Profile{}, err
	}
	if err := activateCompression(pc, sta); err != nil {
		return profile.Profile{}, err
	}

	// the external round-trip blocks this connection's task only
	hash := crypto.ServerHash(sta.ServerID, secret, sta.Keys.PublicDER())
	return sta.Verifier.Verify(verifier.Request{
		Username:   username,
		ServerHash: hash,
		ClientIP:   clientIP,
	})
}

// modernExchange issues the signed-forwarding login-plugin request and
// verifies the proxy's answer.
func modernExchange(pc *protocol.Conn, sta *State) (forward.SignedClaim, error) {
	msgID := crypto.RandMessageID()
	err := pc.WritePacket(&protocol.LoginPluginRequest{
		MessageID: msgID,
		Channel:   forward.Channel,
		Data:      []byte{forward.MaxVersion},
	})
	if err != nil {
		return forward.SignedClaim{}, err
	}

	pc.SetReadDeadline(time.Now().Add(sta.PhaseTimeout))
	pkt, err := protocol.ReadPacket(pc, protocol.StateLogin)
	if err != nil {
		return forward.SignedClaim{}, err
	}
	resp, ok := pkt.(*protocol.LoginPluginResponse)
	if !ok {
		return forward.SignedClaim{}, errOutOfOrder
	}
	// the message id echo binds the response to this connection's request
	if resp.MessageID != msgID {
		return forward.SignedClaim{}, errNonceMismatch
	}
	if !resp.Understood {
		return forward.SignedClaim{}, forward.ErrNoForwardingInfo
	}
	return forward.VerifySigned(sta.ForwardingSecret, resp.Data)
}

func activateCompression(pc *protocol.Conn, sta *State) error {
	if sta.Threshold < 0 {
		return nil
	}
	err := pc.WritePacket(&protocol.SetCompression{Threshold: int32(sta.Threshold)})
	if err != nil {
		return err
	}
	return pc.EnableCompression(sta.Threshold)
}

// rejectLogin terminates a failed login, logging the failure class
// distinctly and sending a user-visible reason where one is warranted.
// Authentication verdicts and an unreachable verification service are
// deliberately kept apart: the latter is not evidence of malice.
func rejectLogin(pc *protocol.Conn, remoteAddr net.Addr, err error) {
	entry := log.WithFields(log.Fields{
		"remoteAddr": remoteAddr,
		"error":      err,
	})

	var banned bannedError
	var reason string
	switch {
	case errors.As(err, &banned):
		entry.Info("Banned profile rejected")
		reason = "You are banned from this server: " + banned.reason
	case errors.Is(err, errVerifyToken),
		errors.Is(err, forward.ErrBadSignature),
		errors.Is(err, forward.ErrNoForwardingInfo):
		entry.Warn("Authentication failure")
		reason = "Failed to verify your identity"
	case errors.Is(err, verifier.ErrUnknownSession):
		entry.Warn("Session service rejected the login")
		reason = "Invalid session, try restarting your client"
	case errors.Is(err, verifier.ErrServiceUnavailable):
		entry.Error("Session service unavailable")
		reason = "Authentication servers are down, please try again later"
	default:
		// protocol violations and timeouts share one category and get no
		// explanation
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			entry.Info("Login phase timed out")
		} else {
			entry.Warn("Protocol violation during login")
		}
		return
	}
	_ = pc.WritePacket(&protocol.Disconnect{Reason: protocol.TextReason(reason)})
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
