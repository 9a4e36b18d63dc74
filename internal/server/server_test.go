package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ametel/gatehouse/internal/protocol"
)

// isRefused reports whether the server closed conn without serving it.
func isRefused(conn net.Conn) bool {
	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, err := conn.Read(make([]byte, 1))
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false
	}
	return true
}

func statusExchangeWorks(t *testing.T, conn net.Conn) bool {
	pc := protocol.NewConn(conn)
	err := pc.WritePacket(&protocol.Handshake{
		ProtocolVersion: 763,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		NextState:       protocol.NextStateStatus,
	})
	if err != nil {
		return false
	}
	if err := pc.WritePacket(&protocol.StatusRequest{}); err != nil {
		return false
	}
	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = pc.ReadFrame()
	return err == nil
}

func TestConcurrencyBound(t *testing.T) {
	sta, _ := testState(t)
	sta.MaxPending = 2
	sta.PhaseTimeout = 500 * time.Millisecond

	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer l.Close()
	go Serve(l, sta)

	dial := func() net.Conn {
		conn, err := net.Dial("tcp", l.Addr().String())
		assert.NoError(t, err)
		return conn
	}

	// two stalled connections occupy both slots
	first := dial()
	second := dial()
	defer first.Close()
	defer second.Close()
	time.Sleep(100 * time.Millisecond)

	// the third is refused outright, never queued
	third := dial()
	defer third.Close()
	assert.True(t, isRefused(third))

	// once the stalled ones hit the phase deadline, accepting resumes
	time.Sleep(sta.PhaseTimeout + 300*time.Millisecond)
	fourth := dial()
	defer fourth.Close()
	assert.True(t, statusExchangeWorks(t, fourth))
}

func TestRefusalDoesNotLeakSlots(t *testing.T) {
	sta, _ := testState(t)
	sta.MaxPending = 1
	sta.PhaseTimeout = 300 * time.Millisecond

	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer l.Close()
	go Serve(l, sta)

	for i := 0; i < 5; i++ {
		conn, err := net.Dial("tcp", l.Addr().String())
		assert.NoError(t, err)
		assert.True(t, statusExchangeWorks(t, conn), "round %d", i)
		conn.Close()
		// give the server a moment to tear the slot down
		time.Sleep(50 * time.Millisecond)
	}
}
