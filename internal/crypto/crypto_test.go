package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
)

// digests published alongside the protocol's hash scheme
func TestServerHash(t *testing.T) {
	cases := []struct {
		serverID string
		expected string
	}{
		{"Notch", "4ed1f46bbe04bc756bcb17c0c7ce3e4632f06a48"},
		{"jeb_", "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1"},
		{"simon", "88e16a1019277b15d58faf0541e11910eb756f6"},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, ServerHash(c.serverID, nil, nil))
	}
}

func TestSignedHexZero(t *testing.T) {
	assert.Equal(t, "0", signedHex(make([]byte, 20)))
}

func TestKeyPairDecrypt(t *testing.T) {
	kp, err := GenerateKeyPair()
	assert.NoError(t, err)

	parsed, err := x509.ParsePKIXPublicKey(kp.PublicDER())
	assert.NoError(t, err)
	pub := parsed.(*rsa.PublicKey)

	secret := []byte("sixteen byte key")
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, secret)
	assert.NoError(t, err)

	plain, err := kp.Decrypt(ciphertext)
	assert.NoError(t, err)
	assert.Equal(t, secret, plain)

	_, err = kp.Decrypt([]byte("not a valid ciphertext"))
	assert.Error(t, err)
}

func TestVerifyTokenFreshness(t *testing.T) {
	a := NewVerifyToken()
	b := NewVerifyToken()
	assert.Len(t, a, 4)
	// 4 random bytes colliding immediately would point at a broken source
	assert.NotEqual(t, a, b)
}

func TestCipherPairRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef")
	aliceSend, aliceRecv, err := CipherPair(secret)
	assert.NoError(t, err)
	bobSend, bobRecv, err := CipherPair(secret)
	assert.NoError(t, err)

	// byte-for-byte ordering across sequential chunks of varying size
	chunks := [][]byte{
		[]byte("a"),
		[]byte("the quick brown fox"),
		make([]byte, 1000),
		{0x00, 0xff, 0x80},
	}
	for _, chunk := range chunks {
		ct := make([]byte, len(chunk))
		aliceSend.XORKeyStream(ct, chunk)
		assert.NotEqual(t, chunk, ct)

		pt := make([]byte, len(ct))
		bobRecv.XORKeyStream(pt, ct)
		assert.Equal(t, chunk, pt)
	}
	for _, chunk := range chunks {
		ct := make([]byte, len(chunk))
		bobSend.XORKeyStream(ct, chunk)
		pt := make([]byte, len(ct))
		aliceRecv.XORKeyStream(pt, ct)
		assert.Equal(t, chunk, pt)
	}
}

func TestCipherPairInPlace(t *testing.T) {
	secret := []byte("0123456789abcdef")
	send, _, _ := CipherPair(secret)
	_, recv, _ := CipherPair(secret)

	buf := []byte("decrypt in place over the same buffer")
	want := make([]byte, len(buf))
	copy(want, buf)

	send.XORKeyStream(buf, buf)
	recv.XORKeyStream(buf, buf)
	assert.Equal(t, want, buf)
}

func TestCipherPairBadSecret(t *testing.T) {
	_, _, err := CipherPair([]byte("short"))
	assert.ErrorIs(t, err, ErrBadSecretLen)
}
