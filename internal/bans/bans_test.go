package bans

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func tmpStore(t *testing.T) *Store {
	s, err := Open(filepath.Join(t.TempDir(), "bans.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := tmpStore(t)
	id := uuid.MustParse("af74a02d-19cb-445b-b07f-6866a861f783")

	_, err := s.Get(id)
	assert.ErrorIs(t, err, ErrNotBanned)

	assert.NoError(t, s.Put(id, Record{Name: "Alice", Reason: "griefing", BannedAt: 1700000000}))

	rec, err := s.Get(id)
	assert.NoError(t, err)
	assert.Equal(t, id.String(), rec.ID)
	assert.Equal(t, "griefing", rec.Reason)

	recs, err := s.List()
	assert.NoError(t, err)
	assert.Len(t, recs, 1)

	assert.NoError(t, s.Delete(id))
	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotBanned)
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, err := s.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotBanned)
	assert.Error(t, s.Put(uuid.New(), Record{}))
	recs, err := s.List()
	assert.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, s.Close())
}

func TestAPIRouter(t *testing.T) {
	s := tmpStore(t)
	router := APIRouterOf(s, func() Stats {
		return Stats{Accepted: 10, Refused: 2, Completed: 7, Active: 1}
	})
	ts := httptest.NewServer(router)
	defer ts.Close()

	id := "af74a02d-19cb-445b-b07f-6866a861f783"

	t.Run("put and get", func(t *testing.T) {
		body, _ := json.Marshal(Record{Name: "Alice", Reason: "griefing"})
		req, _ := http.NewRequest("PUT", ts.URL+"/admin/bans/"+id, bytes.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		resp, err = http.Get(ts.URL + "/admin/bans/" + id)
		assert.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var rec Record
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
		assert.Equal(t, "griefing", rec.Reason)
	})

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/admin/bans")
		assert.NoError(t, err)
		defer resp.Body.Close()
		var recs []Record
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
		assert.Len(t, recs, 1)
	})

	t.Run("delete", func(t *testing.T) {
		req, _ := http.NewRequest("DELETE", ts.URL+"/admin/bans/"+id, nil)
		resp, err := http.DefaultClient.Do(req)
		assert.NoError(t, err)
		resp.Body.Close()

		resp, err = http.Get(ts.URL + "/admin/bans/" + id)
		assert.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad uuid", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/admin/bans/zzz")
		assert.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("stats", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/admin/stats")
		assert.NoError(t, err)
		defer resp.Body.Close()
		var stats Stats
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		assert.Equal(t, int64(10), stats.Accepted)
		assert.Equal(t, int64(7), stats.Completed)
	})
}
