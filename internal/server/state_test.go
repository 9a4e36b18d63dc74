package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type nopHandler struct{}

func (nopHandler) HandleSession(sess *Session) { sess.Conn.Close() }

func TestParseConfigInline(t *testing.T) {
	raw, err := ParseConfig(`{"BindAddr": ":25565", "OnlineMode": true, "CompressionThreshold": -1}`)
	assert.NoError(t, err)
	assert.Equal(t, ":25565", raw.BindAddr)
	assert.True(t, raw.OnlineMode)
	assert.Equal(t, -1, *raw.CompressionThreshold)
}

func TestParseConfigGarbage(t *testing.T) {
	_, err := ParseConfig("not json and not a path")
	assert.Error(t, err)
}

func TestInitStateDefaults(t *testing.T) {
	sta, err := InitState(RawConfig{}, nopHandler{})
	assert.NoError(t, err)
	assert.Equal(t, defaultThreshold, sta.Threshold)
	assert.Equal(t, int64(defaultMaxPending), sta.MaxPending)
	assert.Equal(t, defaultPhaseTimeout, sta.PhaseTimeout)
	assert.Equal(t, ProxyNone, sta.ProxyMode)
	assert.NotNil(t, sta.Keys)
	assert.NotNil(t, sta.Verifier)
	assert.Nil(t, sta.Bans)
}

func TestInitStateOverrides(t *testing.T) {
	threshold := -1
	sta, err := InitState(RawConfig{
		CompressionThreshold: &threshold,
		MaxPending:           32,
		PhaseTimeout:         5,
	}, nopHandler{})
	assert.NoError(t, err)
	assert.Equal(t, -1, sta.Threshold)
	assert.Equal(t, int64(32), sta.MaxPending)
	assert.Equal(t, 5*time.Second, sta.PhaseTimeout)
}

func TestInitStateRejects(t *testing.T) {
	_, err := InitState(RawConfig{}, nil)
	assert.Error(t, err)

	_, err = InitState(RawConfig{ProxyMode: "modern"}, nopHandler{})
	assert.Error(t, err, "modern mode without a secret")

	_, err = InitState(RawConfig{ProxyMode: "carrier-pigeon"}, nopHandler{})
	assert.Error(t, err)

	_, err = InitState(RawConfig{ProxyMode: "legacy", OnlineMode: true}, nopHandler{})
	assert.Error(t, err, "forwarding and online mode are mutually exclusive")
}

func TestStatusEnvelopeFavicon(t *testing.T) {
	withIcon, err := InitState(RawConfig{
		ServerName: "gatehouse",
		Favicon:    "data:image/png;base64,iVBORw0KGgo=",
	}, nopHandler{})
	assert.NoError(t, err)
	assert.Contains(t, string(withIcon.Status(763)), `"favicon":"data:image/png;base64,iVBORw0KGgo="`)

	// without one configured the key is omitted entirely
	plain, err := InitState(RawConfig{ServerName: "gatehouse"}, nopHandler{})
	assert.NoError(t, err)
	assert.NotContains(t, string(plain.Status(763)), "favicon")
}

func TestStatsSnapshot(t *testing.T) {
	sta, _ := testState(t)
	sta.accepted = 3
	sta.completed = 2
	sta.refused = 1
	sta.pending = 1

	stats := sta.Stats()
	assert.Equal(t, int64(3), stats.Accepted)
	assert.Equal(t, int64(2), stats.Completed)
	assert.Equal(t, int64(1), stats.Refused)
	assert.Equal(t, int64(1), stats.Active)
}
