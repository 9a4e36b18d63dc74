package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"sync/atomic"
	"time"

	"github.com/juju/ratelimit"
	log "github.com/sirupsen/logrus"

	"github.com/ametel/gatehouse/internal/bans"
	"github.com/ametel/gatehouse/internal/crypto"
	"github.com/ametel/gatehouse/internal/profile"
	"github.com/ametel/gatehouse/internal/protocol"
	"github.com/ametel/gatehouse/internal/verifier"
)

// ProxyMode selects which, if any, forwarding scheme substitutes for direct
// encryption and verification. Exactly one is active per deployment.
type ProxyMode int

const (
	ProxyNone ProxyMode = iota
	ProxyLegacy
	ProxyModern
)

// RawConfig is the JSON configuration surface.
type RawConfig struct {
	BindAddr  string
	AdminAddr string

	OnlineMode           bool
	CompressionThreshold *int   // nil: default; negative: disabled
	ProxyMode            string // "none" | "legacy" | "modern"
	ForwardingSecret     string

	MaxPending      int
	PhaseTimeout    int // seconds
	AcceptPerSecond float64

	SessionServer string
	ServerID      string
	BanDatabase   string

	// status envelope content
	ServerName      string
	ProtocolVersion int
	MaxPlayers      int
	Description     string
	Favicon         string // "data:image/png;base64,..." shown in the server list
}

const (
	defaultThreshold    = 256
	defaultMaxPending   = 256
	defaultPhaseTimeout = 10 * time.Second
)

// ParseConfig parses the config, given either as a path to a json file or
// as the json itself.
func ParseConfig(conf string) (raw RawConfig, err error) {
	content, errPath := ioutil.ReadFile(conf)
	if errPath != nil {
		errJson := json.Unmarshal([]byte(conf), &raw)
		if errJson != nil {
			return raw, errors.New("failed to read/unmarshal configuration, path is invalid or " + errJson.Error())
		}
		return raw, nil
	}
	errJson := json.Unmarshal(content, &raw)
	if errJson != nil {
		return raw, errors.New("failed to parse configuration file: " + errJson.Error())
	}
	return raw, nil
}

// StatusProvider supplies the status-response JSON. The content is opaque
// to the pipeline.
type StatusProvider func(clientProtocol int32) []byte

// Session is the completed, owned connection handed to the game runtime.
// The Conn carries whatever cipher and compression state login established.
type Session struct {
	Conn       *protocol.Conn
	Profile    profile.Profile
	ClientAddr string // the real client address under proxy forwarding
}

// SessionHandler receives ownership of completed sessions. Implementations
// must not assume anything about the calling goroutine beyond there being
// one per session.
type SessionHandler interface {
	HandleSession(sess *Session)
}

// State holds the process-wide immutable configuration and the shared
// keypair, plus the aggregate counters. Everything mutable is atomic; the
// rest is read-only after InitState and safe to share across connection
// goroutines by construction.
type State struct {
	OnlineMode       bool
	Threshold        int // negative: compression disabled
	ProxyMode        ProxyMode
	ForwardingSecret []byte

	MaxPending   int64
	PhaseTimeout time.Duration

	ServerID string
	Keys     *crypto.KeyPair

	Verifier verifier.Verifier
	Bans     *bans.Store
	Status   StatusProvider
	Handler  SessionHandler

	acceptBucket *ratelimit.Bucket // nil: unlimited

	pending   int64
	accepted  int64
	refused   int64
	completed int64
}

// InitState validates the raw config into an immutable State, generating
// the process keypair. handler receives completed sessions.
func InitState(raw RawConfig, handler SessionHandler) (*State, error) {
	if handler == nil {
		return nil, errors.New("a session handler is required")
	}
	sta := &State{
		OnlineMode:   raw.OnlineMode,
		Threshold:    defaultThreshold,
		MaxPending:   defaultMaxPending,
		PhaseTimeout: defaultPhaseTimeout,
		ServerID:     raw.ServerID,
		Handler:      handler,
	}
	if raw.CompressionThreshold != nil {
		sta.Threshold = *raw.CompressionThreshold
	}
	if raw.MaxPending > 0 {
		sta.MaxPending = int64(raw.MaxPending)
	}
	if raw.PhaseTimeout > 0 {
		sta.PhaseTimeout = time.Duration(raw.PhaseTimeout) * time.Second
	}
	if raw.AcceptPerSecond > 0 {
		sta.acceptBucket = ratelimit.NewBucketWithRate(raw.AcceptPerSecond, int64(raw.AcceptPerSecond)+1)
	}

	switch raw.ProxyMode {
	case "", "none":
		sta.ProxyMode = ProxyNone
	case "legacy":
		sta.ProxyMode = ProxyLegacy
		log.Warn("Legacy forwarding is unauthenticated; restrict inbound access to the proxy at the network level")
	case "modern":
		sta.ProxyMode = ProxyModern
		if raw.ForwardingSecret == "" {
			return nil, errors.New("modern proxy mode requires ForwardingSecret")
		}
		sta.ForwardingSecret = []byte(raw.ForwardingSecret)
	default:
		return nil, fmt.Errorf("unknown ProxyMode %q", raw.ProxyMode)
	}
	if sta.ProxyMode != ProxyNone && sta.OnlineMode {
		return nil, errors.New("proxy forwarding and online mode are mutually exclusive")
	}

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %v", err)
	}
	sta.Keys = keys

	sta.Verifier = verifier.NewSessionService(raw.SessionServer, sta.PhaseTimeout)

	if raw.BanDatabase != "" {
		sta.Bans, err = bans.Open(raw.BanDatabase)
		if err != nil {
			return nil, fmt.Errorf("opening ban database: %v", err)
		}
	}

	sta.Status = defaultStatusProvider(raw)
	return sta, nil
}

func defaultStatusProvider(raw RawConfig) StatusProvider {
	type versionInfo struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	}
	type playersInfo struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	}
	type descriptionInfo struct {
		Text string `json:"text"`
	}
	return func(clientProtocol int32) []byte {
		body, _ := json.Marshal(struct {
			Version     versionInfo     `json:"version"`
			Players     playersInfo     `json:"players"`
			Description descriptionInfo `json:"description"`
			Favicon     string          `json:"favicon,omitempty"`
		}{
			Version:     versionInfo{Name: raw.ServerName, Protocol: raw.ProtocolVersion},
			Players:     playersInfo{Max: raw.MaxPlayers},
			Description: descriptionInfo{Text: raw.Description},
			Favicon:     raw.Favicon,
		})
		return body
	}
}

// Stats snapshots the aggregate counters for the admin API.
func (sta *State) Stats() bans.Stats {
	return bans.Stats{
		Accepted:  atomic.LoadInt64(&sta.accepted),
		Refused:   atomic.LoadInt64(&sta.refused),
		Completed: atomic.LoadInt64(&sta.completed),
		Active:    atomic.LoadInt64(&sta.pending),
	}
}
