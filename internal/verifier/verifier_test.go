package verifier

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifySuccess(t *testing.T) {
	var gotQuery map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hasJoined", r.URL.Path)
		gotQuery = map[string]string{
			"username": r.URL.Query().Get("username"),
			"serverId": r.URL.Query().Get("serverId"),
			"ip":       r.URL.Query().Get("ip"),
		}
		w.Write([]byte(`{
			"id": "af74a02d19cb445bb07f6866a861f783",
			"name": "Alice",
			"properties": [{"name": "textures", "value": "e30=", "signature": "c2ln"}]
		}`))
	}))
	defer ts.Close()

	svc := NewSessionService(ts.URL, time.Second)
	prof, err := svc.Verify(Request{Username: "Alice", ServerHash: "-deadbeef", ClientIP: "203.0.113.5"})
	assert.NoError(t, err)

	assert.Equal(t, "Alice", gotQuery["username"])
	assert.Equal(t, "-deadbeef", gotQuery["serverId"])
	assert.Equal(t, "203.0.113.5", gotQuery["ip"])

	assert.Equal(t, "Alice", prof.Name)
	assert.Equal(t, "af74a02d-19cb-445b-b07f-6866a861f783", prof.ID.String())
	assert.Len(t, prof.Properties, 1)
	assert.Equal(t, "textures", prof.Properties[0].Name)
}

func TestVerifyOmitsEmptyIP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["ip"]
		assert.False(t, present)
		w.Write([]byte(`{"id": "af74a02d19cb445bb07f6866a861f783", "name": "Alice"}`))
	}))
	defer ts.Close()

	_, err := NewSessionService(ts.URL, time.Second).Verify(Request{Username: "Alice", ServerHash: "1"})
	assert.NoError(t, err)
}

func TestVerifyUnknownSession(t *testing.T) {
	for _, code := range []int{http.StatusNoContent, http.StatusNotFound} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		_, err := NewSessionService(ts.URL, time.Second).Verify(Request{Username: "Alice", ServerHash: "1"})
		assert.ErrorIs(t, err, ErrUnknownSession)
		ts.Close()
	}
}

func TestVerifyServiceErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()
		_, err := NewSessionService(ts.URL, time.Second).Verify(Request{Username: "Alice", ServerHash: "1"})
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := NewSessionService("http://127.0.0.1:1", 200*time.Millisecond).Verify(Request{Username: "Alice", ServerHash: "1"})
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{"))
		}))
		defer ts.Close()
		_, err := NewSessionService(ts.URL, time.Second).Verify(Request{Username: "Alice", ServerHash: "1"})
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	})
}
