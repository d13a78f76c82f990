// Package cryptoutil provides the Ed25519 signing primitives, hashing,
// password KDF and token hashing used to bind events and server-key
// responses to their origin server.
package cryptoutil

import (
	"crypto/ed25519"
	stdrand "crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Sizes of the raw key/signature material, aliased from the stdlib package.
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
)

type (
	// PublicKey is a raw 32-byte Ed25519 public key.
	PublicKey = ed25519.PublicKey
	// PrivateKey is the opaque Ed25519 private key (64-byte expanded form).
	PrivateKey = ed25519.PrivateKey
)

// GenerateKey mints a fresh Ed25519 keypair.
func GenerateKey() (PublicKey, PrivateKey, error) {
	return ed25519.GenerateKey(stdrand.Reader)
}

// Sign produces a 64-byte Ed25519 signature over msg.
func Sign(priv PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg under
// pub. Any length or decode failure returns false; it never panics or
// returns an error.
func Verify(pub PublicKey, sig, msg []byte) bool {
	if len(pub) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// SHA256 returns the 32-byte SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// B64 is unpadded, standard-alphabet base64 — the encoding Matrix uses for
// hashes, signatures and public keys on the wire.
func B64Encode(b []byte) string {
	return base64.RawStdEncoding.EncodeToString(b)
}

// B64Decode decodes unpadded standard-alphabet base64, also tolerating a
// padded input since some homeservers historically emit padding.
func B64Decode(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// B64URLEncode is unpadded URL-safe base64, used for v3/v4 event IDs.
func B64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// B64URLDecode decodes unpadded URL-safe base64, tolerating padding.
func B64URLDecode(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// Hex encodes b as lowercase hexadecimal.
func Hex(b []byte) string { return hex.EncodeToString(b) }
