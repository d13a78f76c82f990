// Package keyring implements the server-key store: a three-layer lookup
// (hot in-process cache, durable cache with TTL, origin fetch) for
// remote servers' Ed25519 signing keys, plus event signature verification
// and notary re-signing.
package keyring

import (
	"github.com/tos-network/roomcore/cryptoutil"
)

// VerifyKey is one current signing key as carried in a ServerKeyResponse's
// verify_keys map.
type VerifyKey struct {
	KeyB64 string
}

// OldVerifyKey is a retired signing key, kept around because it may still
// validate historical signatures.
type OldVerifyKey struct {
	KeyB64    string
	ExpiredTS int64
}

// ServerKeyResponse is the parsed form of a GET /_matrix/key/v2/server
// response (or one entry of a /_matrix/key/v2/query batch).
type ServerKeyResponse struct {
	ServerName    string
	ValidUntilTS  int64
	VerifyKeys    map[string]VerifyKey
	OldVerifyKeys map[string]OldVerifyKey
	Signatures    map[string]map[string]string

	// FetchedAtTS is this store's local wall-clock time of fetch, used as
	// the CAS discriminant so a stale fetch can never overwrite a fresher
	// one.
	FetchedAtTS int64

	// RowID is the durable store's primary-key row identifier, assigned
	// once on first persistence and kept stable across CAS updates for
	// the same server — the same role keystore.Key.Id plays for on-disk
	// keyfiles.
	RowID string

	// Raw is the full decoded response body, signatures and all — what
	// self-verification and notary re-signing actually sign/verify over.
	Raw map[string]any
}

// PublicKeyFor returns the verify key for keyID that was valid at
// signingTS (milliseconds since epoch — typically the signed object's
// origin_server_ts). found reports whether keyID names a current or old
// key at all; expired reports whether that key was valid once but had
// already been rotated out by signingTS. old_verify_keys validate past
// signatures only: a key retired at ExpiredTS never validates a signature
// claimed to have been made at or after that time. Callers should surface
// that case as InvalidSignature, distinct from an entirely unknown keyID
// (MissingKey).
func (r *ServerKeyResponse) PublicKeyFor(keyID string, signingTS int64) (pub cryptoutil.PublicKey, found, expired bool) {
	if vk, ok := r.VerifyKeys[keyID]; ok {
		decoded, err := cryptoutil.B64Decode(vk.KeyB64)
		if err != nil {
			return nil, false, false
		}
		return cryptoutil.PublicKey(decoded), true, false
	}
	if ovk, ok := r.OldVerifyKeys[keyID]; ok {
		if ovk.ExpiredTS > 0 && signingTS >= ovk.ExpiredTS {
			return nil, true, true
		}
		decoded, err := cryptoutil.B64Decode(ovk.KeyB64)
		if err != nil {
			return nil, false, false
		}
		return cryptoutil.PublicKey(decoded), true, false
	}
	return nil, false, false
}

// SelfVerify reports whether at least one of r.VerifyKeys validly signs
// r.Raw under (r.ServerName, key_id) — required of every fetched response
// before it is trusted.
func (r *ServerKeyResponse) SelfVerify() bool {
	for keyID, vk := range r.VerifyKeys {
		pub, err := cryptoutil.B64Decode(vk.KeyB64)
		if err != nil {
			continue
		}
		if cryptoutil.VerifyJSON(r.Raw, r.ServerName, keyID, cryptoutil.PublicKey(pub)) {
			return true
		}
	}
	return false
}
