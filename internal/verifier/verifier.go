// Package verifier confirms a claimed identity against the external session
// service. It sits behind a one-method interface so the state machine can be
// tested with a deterministic stub and so the external round-trip's latency
// is attributable to a single connection.
package verifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ametel/gatehouse/internal/profile"
)

const DefaultBaseURL = "https://sessionserver.mojang.com/session/minecraft"

// The two failure classes are deliberately distinct: an unknown session is
// an authentication verdict, an unreachable service is not proof of
// anything and must not be logged or reported as one.
var (
	ErrUnknownSession     = errors.New("session service does not know this session")
	ErrServiceUnavailable = errors.New("session service unavailable")
)

// Request identifies one verification attempt.
type Request struct {
	Username   string
	ServerHash string
	ClientIP   string // optional; enables the service's IP check
}

// Verifier resolves a Request into a canonical profile or a failure.
type Verifier interface {
	Verify(req Request) (profile.Profile, error)
}

// SessionService is the HTTP implementation used in production.
type SessionService struct {
	baseURL string
	client  *http.Client
}

func NewSessionService(baseURL string, timeout time.Duration) *SessionService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &SessionService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *SessionService) Verify(req Request) (profile.Profile, error) {
	q := url.Values{}
	q.Set("username", req.Username)
	q.Set("serverId", req.ServerHash)
	if req.ClientIP != "" {
		q.Set("ip", req.ClientIP)
	}

	resp, err := s.client.Get(s.baseURL + "/hasJoined?" + q.Encode())
	if err != nil {
		return profile.Profile{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNoContent, http.StatusNotFound:
		return profile.Profile{}, ErrUnknownSession
	default:
		return profile.Profile{}, fmt.Errorf("%w: status %v", ErrServiceUnavailable, resp.Status)
	}

	var body struct {
		ID         string             `json:"id"`
		Name       string             `json:"name"`
		Properties []profile.Property `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return profile.Profile{}, fmt.Errorf("%w: malformed body: %v", ErrServiceUnavailable, err)
	}
	id, err := profile.ParseID(body.ID)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("%w: malformed profile id %q", ErrServiceUnavailable, body.ID)
	}
	return profile.Profile{ID: id, Name: body.Name, Properties: body.Properties}, nil
}
