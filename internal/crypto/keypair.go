// Package crypto implements the asymmetric-then-symmetric key exchange of
// the login pipeline: the process-wide RSA keypair, per-connection verify
// tokens, the legacy CFB8 cipher pair and the session-server hash.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	rsaBits = 1024 // fixed by the wire protocol's historical convention

	// SecretLen is the length of the per-connection shared secret, which
	// doubles as the AES-128 key.
	SecretLen = 16

	verifyTokenLen = 4
)

var ErrBadSecretLen = errors.New("shared secret has the wrong length")

// KeyPair is generated once at startup and shared read-only by every
// connection. It is never mutated after creation.
type KeyPair struct {
	private *rsa.PrivateKey
	public  []byte // DER SubjectPublicKeyInfo, as advertised in the handshake
}

func GenerateKeyPair() (*KeyPair, error) {
	pv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(&pv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{private: pv, public: der}, nil
}

// PublicDER returns the encoded public key for handshake advertisement.
func (kp *KeyPair) PublicDER() []byte { return kp.public }

// Decrypt unwraps a client-submitted blob with the private key.
func (kp *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	return rsa.DecryptPKCS1v15(rand.Reader, kp.private, ciphertext)
}

// NewVerifyToken returns a fresh random nonce. Single-use: it is compared
// against the client's decrypted echo and then discarded.
func NewVerifyToken() []byte {
	token := make([]byte, verifyTokenLen)
	MustRandRead(token)
	return token
}

// CipherPair derives the two directional stream-cipher states from the
// shared secret. The secret is used as both key and IV, a legacy scheme
// reproduced exactly for wire compatibility. The two states are independent
// and never reused across connections.
func CipherPair(secret []byte) (send, recv cipher.Stream, err error) {
	if len(secret) != SecretLen {
		return nil, nil, fmt.Errorf("%w: %d", ErrBadSecretLen, len(secret))
	}
	sendBlock, err := aes.NewCipher(secret)
	if err != nil {
		return nil, nil, err
	}
	recvBlock, err := aes.NewCipher(secret)
	if err != nil {
		return nil, nil, err
	}
	send = newCFB8(sendBlock, secret, false)
	recv = newCFB8(recvBlock, secret, true)
	return send, recv, nil
}

// ServerHash computes the session-server verification digest: SHA-1 over
// {server id, shared secret, public key encoding}, rendered as a
// Java-style signed hexadecimal string.
func ServerHash(serverID string, secret, publicDER []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(secret)
	h.Write(publicDER)
	return signedHex(h.Sum(nil))
}

// signedHex treats digest as a big-endian two's-complement integer and
// formats it the way Java's BigInteger.toString(16) does.
func signedHex(digest []byte) string {
	negative := digest[0]&0x80 != 0
	if negative {
		// two's complement negation, in place on our own copy
		carry := true
		for i := len(digest) - 1; i >= 0; i-- {
			digest[i] = ^digest[i]
			if carry {
				digest[i]++
				carry = digest[i] == 0
			}
		}
	}
	s := strings.TrimLeft(hex.EncodeToString(digest), "0")
	if s == "" {
		s = "0"
	}
	if negative {
		s = "-" + s
	}
	return s
}
