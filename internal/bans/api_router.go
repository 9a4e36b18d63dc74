package bans

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	gmux "github.com/gorilla/mux"
)

// Stats is a point-in-time snapshot of the acceptor's counters.
type Stats struct {
	Accepted  int64 `json:"accepted"`
	Refused   int64 `json:"refused"`
	Completed int64 `json:"completed"`
	Active    int64 `json:"active"`
}

type APIRouter struct {
	*gmux.Router
	store *Store
	stats func() Stats
}

// APIRouterOf builds the admin router over a ban store and a stats source.
// It is meant to be served on a loopback-only address.
func APIRouterOf(store *Store, stats func() Stats) *APIRouter {
	ret := &APIRouter{
		store: store,
		stats: stats,
	}
	ret.registerMux()
	return ret
}

func (ar *APIRouter) registerMux() {
	ar.Router = gmux.NewRouter()
	ar.HandleFunc("/admin/bans", ar.listBansHlr).Methods("GET")
	ar.HandleFunc("/admin/bans/{uuid}", ar.getBanHlr).Methods("GET")
	ar.HandleFunc("/admin/bans/{uuid}", ar.putBanHlr).Methods("PUT")
	ar.HandleFunc("/admin/bans/{uuid}", ar.deleteBanHlr).Methods("DELETE")
	ar.HandleFunc("/admin/stats", ar.statsHlr).Methods("GET")
}

func parseVarUUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(gmux.Vars(r)["uuid"])
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	resp, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(resp)
}

func (ar *APIRouter) listBansHlr(w http.ResponseWriter, r *http.Request) {
	recs, err := ar.store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

func (ar *APIRouter) getBanHlr(w http.ResponseWriter, r *http.Request) {
	id, err := parseVarUUID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := ar.store.Get(id)
	if errors.Is(err, ErrNotBanned) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}

func (ar *APIRouter) putBanHlr(w http.ResponseWriter, r *http.Request) {
	id, err := parseVarUUID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var rec Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := ar.store.Put(id, rec); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (ar *APIRouter) deleteBanHlr(w http.ResponseWriter, r *http.Request) {
	id, err := parseVarUUID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := ar.store.Delete(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ar *APIRouter) statsHlr(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ar.stats())
}
