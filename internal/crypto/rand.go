package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	log "github.com/sirupsen/logrus"
)

// MustRandRead fills buf from the system CSPRNG, retrying with backoff. Key
// material must never be produced from a degraded source, so after repeated
// failure the process aborts.
func MustRandRead(buf []byte) {
	err := fill(buf)
	if err == nil {
		return
	}
	waitDur := [10]time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 30 * time.Millisecond, 50 * time.Millisecond,
		100 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second,
		3 * time.Second, 5 * time.Second}
	for i := 0; i < 10; i++ {
		log.Errorf("Failed to get random: %v. Retrying...", err)
		err = fill(buf)
		if err == nil {
			return
		}
		time.Sleep(waitDur[i])
	}
	log.Fatal("Cannot get random after 10 retries")
}

func fill(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// RandMessageID draws a random non-negative int31 for login-plugin message
// ids so responses cannot be replayed across unrelated exchanges.
func RandMessageID() int32 {
	var buf [4]byte
	MustRandRead(buf[:])
	return int32(binary.BigEndian.Uint32(buf[:]) & 0x7fffffff)
}
