// Package profile holds the canonical identity record produced by a
// completed login, whichever path produced it.
package profile

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// Property is a signed profile blob such as skin data. It is carried
// verbatim; the pipeline never interprets Value.
type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// Profile is immutable once constructed and becomes part of the handed-off
// session.
type Profile struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties,omitempty"`
}

// Offline derives the deterministic pseudo-identity used when no external
// verification is performed: an MD5 name-based UUID over
// "OfflinePlayer:<name>", matching the vanilla convention so offline and
// online deployments agree on ids.
func Offline(name string) Profile {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30 // version 3
	sum[8] = sum[8]&0x3f | 0x80 // RFC 4122 variant
	id, _ := uuid.FromBytes(sum[:])
	return Profile{ID: id, Name: name}
}

// ParseID accepts both dashed and undashed textual UUIDs; forwarding
// payloads and the session service use the undashed form.
func ParseID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
