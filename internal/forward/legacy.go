// Package forward implements the two proxy-forwarding schemes used when a
// trusted reverse proxy terminates client connections: the legacy unsigned
// embedding in the handshake address, and the modern HMAC-signed
// login-plugin exchange. Either produces an identity claim without engaging
// encryption or the session service.
package forward

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ametel/gatehouse/internal/profile"
)

var (
	ErrMalformedAddress = errors.New("forwarded handshake address is malformed")
)

// LegacyClaim is the identity claim parsed out of a legacy-forwarded
// handshake. It carries no username; that still arrives in LoginStart.
type LegacyClaim struct {
	Host       string
	ClientAddr string
	ID         uuid.UUID
	Properties []profile.Property
}

// ParseLegacy splits the handshake's server-address field on null bytes:
// {hostname, real client IP, profile id, optional JSON properties}. No
// cryptographic verification happens here; the scheme's entire security is
// that only the proxy can reach the listening port. Too-short or otherwise
// malformed input rejects the connection outright.
func ParseLegacy(serverAddress string) (LegacyClaim, error) {
	parts := strings.Split(serverAddress, "\x00")
	if len(parts) < 3 {
		return LegacyClaim{}, fmt.Errorf("%w: %d null-separated segments", ErrMalformedAddress, len(parts))
	}
	id, err := profile.ParseID(parts[2])
	if err != nil {
		return LegacyClaim{}, fmt.Errorf("%w: bad profile id: %v", ErrMalformedAddress, err)
	}
	claim := LegacyClaim{
		Host:       parts[0],
		ClientAddr: parts[1],
		ID:         id,
	}
	if len(parts) >= 4 && parts[3] != "" {
		if err := json.Unmarshal([]byte(parts[3]), &claim.Properties); err != nil {
			return LegacyClaim{}, fmt.Errorf("%w: bad properties: %v", ErrMalformedAddress, err)
		}
	}
	return claim, nil
}
