// Package server drives a connection from accepted socket to authenticated
// session: the acceptor, the per-connection state machine and the login
// paths live here.
package server

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ametel/gatehouse/internal/bans"
)

// Serve accepts connections until the listener fails permanently. Admission
// control happens here: a drained rate bucket or a full pending slot table
// closes the socket immediately, nothing is queued.
func Serve(l net.Listener, sta *State) {
	waitDur := [10]time.Duration{
		50 * time.Millisecond, 100 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second,
		3 * time.Second, 5 * time.Second, 10 * time.Second, 15 * time.Second, 30 * time.Second}

	fails := 0
	for {
		conn, err := l.Accept()
		if err != nil {
			log.Errorf("%v, retrying", err)
			time.Sleep(waitDur[fails])
			if fails < 9 {
				fails++
			}
			continue
		}
		fails = 0

		if sta.acceptBucket != nil && sta.acceptBucket.TakeAvailable(1) == 0 {
			atomic.AddInt64(&sta.refused, 1)
			log.WithField("remoteAddr", conn.RemoteAddr()).Debug("accept rate exceeded")
			conn.Close()
			continue
		}
		if atomic.AddInt64(&sta.pending, 1) > sta.MaxPending {
			atomic.AddInt64(&sta.pending, -1)
			atomic.AddInt64(&sta.refused, 1)
			log.WithField("remoteAddr", conn.RemoteAddr()).Warn("connection limit reached")
			conn.Close()
			continue
		}

		atomic.AddInt64(&sta.accepted, 1)
		go handleConnection(conn, sta)
	}
}

// ServeAdmin serves the local admin API (ban management and counters).
func ServeAdmin(l net.Listener, sta *State) error {
	return http.Serve(l, bans.APIRouterOf(sta.Bans, sta.Stats))
}
