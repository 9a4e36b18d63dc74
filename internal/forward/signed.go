package forward

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ametel/gatehouse/internal/profile"
	"github.com/ametel/gatehouse/internal/protocol"
)

// Channel is the login-plugin channel the signed scheme rides on.
const Channel = "velocity:player_info"

const (
	// MaxVersion is the highest payload version this server understands.
	MaxVersion = 1

	signatureLen = sha256.Size
)

var (
	ErrBadSignature       = errors.New("forwarded payload signature mismatch")
	ErrTruncatedPayload   = errors.New("forwarded payload is truncated")
	ErrUnsupportedVersion = errors.New("forwarded payload version unsupported")
	ErrNoForwardingInfo   = errors.New("proxy did not answer the forwarding request")
)

// SignedClaim is the verified identity claim from a modern-forwarding proxy.
type SignedClaim struct {
	ClientAddr string
	Profile    profile.Profile
}

// VerifySigned checks and parses a login-plugin response body: a 32-byte
// HMAC-SHA256 signature followed by {version, client address, profile id,
// username, properties}. The signature is recomputed over the exact payload
// bytes with the pre-shared secret and compared in constant time; any
// mismatch or truncation is a hard rejection.
func VerifySigned(secret, data []byte) (SignedClaim, error) {
	if len(data) < signatureLen {
		return SignedClaim{}, ErrTruncatedPayload
	}
	signature := data[:signatureLen]
	payload := data[signatureLen:]

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return SignedClaim{}, ErrBadSignature
	}

	r := protocol.NewReader(payload)
	version, err := r.VarInt()
	if err != nil {
		return SignedClaim{}, ErrTruncatedPayload
	}
	if version > MaxVersion || version < 1 {
		return SignedClaim{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	var claim SignedClaim
	if claim.ClientAddr, err = r.String(256); err != nil {
		return SignedClaim{}, ErrTruncatedPayload
	}
	if claim.Profile.ID, err = r.UUID(); err != nil {
		return SignedClaim{}, ErrTruncatedPayload
	}
	if claim.Profile.Name, err = r.String(64); err != nil {
		return SignedClaim{}, ErrTruncatedPayload
	}
	if claim.Profile.Properties, err = protocol.ReadProperties(r); err != nil {
		return SignedClaim{}, ErrTruncatedPayload
	}
	return claim, nil
}

// Sign produces a response body the way a proxy would. Used by tests and by
// client tooling; the server itself only verifies.
func Sign(secret []byte, claim SignedClaim) []byte {
	var w protocol.Writer
	w.VarInt(MaxVersion).
		String(claim.ClientAddr).
		UUID(claim.Profile.ID).
		String(claim.Profile.Name)
	protocol.WriteProperties(&w, claim.Profile.Properties)
	payload := w.Bytes()

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return append(mac.Sum(nil), payload...)
}
