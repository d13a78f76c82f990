package cryptoutil

import (
	"github.com/tos-network/roomcore/canonicaljson"
	"github.com/tos-network/roomcore/rcerr"
)

// stripSignedFields returns a copy of obj with "signatures" and "unsigned"
// removed, the subset that is actually signed and hashed.
func stripSignedFields(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == "signatures" || k == "unsigned" {
			continue
		}
		out[k] = v
	}
	return out
}

// SignJSON signs obj (after stripping signatures/unsigned) under
// (serverName, keyID) and merges the new signature into obj's existing
// "signatures" map, leaving other servers'/keys' entries untouched. obj is
// not mutated; a new map is returned.
func SignJSON(obj map[string]any, serverName, keyID string, priv PrivateKey) (map[string]any, error) {
	stripped := stripSignedFields(obj)
	canon, err := canonicaljson.Encode(stripped)
	if err != nil {
		return nil, rcerr.Wrap(rcerr.InvalidJson, "cryptoutil.SignJSON", "cannot canonicalize object", err)
	}
	sig := Sign(priv, canon)
	sigB64 := B64Encode(sig)

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	signatures, _ := out["signatures"].(map[string]any)
	newSignatures := make(map[string]any, len(signatures)+1)
	for server, keys := range signatures {
		newSignatures[server] = keys
	}
	serverKeys, _ := newSignatures[serverName].(map[string]any)
	newServerKeys := make(map[string]any, len(serverKeys)+1)
	for kid, s := range serverKeys {
		newServerKeys[kid] = s
	}
	newServerKeys[keyID] = sigB64
	newSignatures[serverName] = newServerKeys
	out["signatures"] = newSignatures
	return out, nil
}

// VerifyJSON checks that obj carries a valid signature from (serverName,
// keyID) under pub. It never fetches keys itself — that is the keyring
// package's job — it only checks one already-known key.
func VerifyJSON(obj map[string]any, serverName, keyID string, pub PublicKey) bool {
	signatures, ok := obj["signatures"].(map[string]any)
	if !ok {
		return false
	}
	serverKeys, ok := signatures[serverName].(map[string]any)
	if !ok {
		return false
	}
	sigB64, ok := serverKeys[keyID].(string)
	if !ok {
		return false
	}
	sig, err := B64Decode(sigB64)
	if err != nil {
		return false
	}
	stripped := stripSignedFields(obj)
	canon, err := canonicaljson.Encode(stripped)
	if err != nil {
		return false
	}
	return Verify(pub, sig, canon)
}
