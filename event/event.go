// Package event defines the PDU (Persistent Data Unit) shape, per-room-
// version event-ID derivation, content hashing, and redaction.
package event

import (
	"github.com/tos-network/roomcore/canonicaljson"
	"github.com/tos-network/roomcore/cryptoutil"
	"github.com/tos-network/roomcore/rcerr"
	"github.com/tos-network/roomcore/roomversion"
)

// PDU is an immutable record carrying one event in a room's DAG. Dynamic,
// per-event-type content stays an opaque map: authorization branches on
// Type, so loosely-typed wire data never needs a deep type hierarchy.
type PDU struct {
	EventID        string // only meaningful for room v1/v2; derived otherwise
	RoomID         string
	Sender         string
	Type           string
	StateKey       *string // nil for non-state events, "" or a value for state events
	Content        map[string]any
	OriginServerTS int64
	Depth          int64
	PrevEvents     []string
	AuthEvents     []string
	Hashes         map[string]string
	Signatures     map[string]map[string]string
	Unsigned       map[string]any
}

// IsState reports whether this PDU is a state event.
func (p *PDU) IsState() bool { return p.StateKey != nil }

// StateTuple is the (type, state_key) pair identifying a room-state slot.
type StateTuple struct {
	Type     string
	StateKey string
}

// Tuple returns the state slot this PDU occupies. Only valid when IsState().
func (p *PDU) Tuple() StateTuple {
	return StateTuple{Type: p.Type, StateKey: *p.StateKey}
}

// clone returns a deep copy so callers can mutate the result without
// corrupting the original PDU.
func (p *PDU) clone() *PDU {
	cp := *p
	if p.StateKey != nil {
		sk := *p.StateKey
		cp.StateKey = &sk
	}
	cp.Content = deepCopyMap(p.Content)
	cp.PrevEvents = append([]string(nil), p.PrevEvents...)
	cp.AuthEvents = append([]string(nil), p.AuthEvents...)
	cp.Hashes = copyStringMap(p.Hashes)
	cp.Signatures = make(map[string]map[string]string, len(p.Signatures))
	for server, keys := range p.Signatures {
		cp.Signatures[server] = copyStringMap(keys)
	}
	cp.Unsigned = deepCopyMap(p.Unsigned)
	return &cp
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return val
	}
}

// toCanonicalMap builds the generic map[string]any representation of the
// PDU used for canonical-JSON encoding. includeHashes/includeSignatures
// control whether those two fields are present, since different
// computations (content hash vs. event ID vs. wire serialization) strip
// different subsets.
func (p *PDU) toCanonicalMap(includeHashes, includeSignatures, includeUnsigned, includeEventID bool) map[string]any {
	m := map[string]any{
		"room_id":          p.RoomID,
		"sender":           p.Sender,
		"type":             p.Type,
		"content":          p.Content,
		"origin_server_ts": int64(p.OriginServerTS),
		"depth":            int64(p.Depth),
		"prev_events":      toAnySlice(p.PrevEvents),
		"auth_events":      toAnySlice(p.AuthEvents),
	}
	if p.StateKey != nil {
		m["state_key"] = *p.StateKey
	}
	if includeEventID && p.EventID != "" {
		m["event_id"] = p.EventID
	}
	if includeHashes && p.Hashes != nil {
		m["hashes"] = stringMapToAny(p.Hashes)
	}
	if includeSignatures && p.Signatures != nil {
		sigs := make(map[string]any, len(p.Signatures))
		for server, keys := range p.Signatures {
			sigs[server] = stringMapToAny(keys)
		}
		m["signatures"] = sigs
	}
	if includeUnsigned && p.Unsigned != nil {
		m["unsigned"] = p.Unsigned
	}
	return m
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ContentHash computes sha256(canonical_json(pdu \ {hashes, signatures,
// unsigned})), returned as unpadded base64.
func (p *PDU) ContentHash() (string, error) {
	m := p.toCanonicalMap(false, false, false, true)
	canon, err := canonicaljson.Encode(m)
	if err != nil {
		return "", rcerr.Wrap(rcerr.InvalidJson, "event.ContentHash", "cannot canonicalize PDU", err)
	}
	sum := cryptoutil.SHA256(canon)
	return cryptoutil.B64Encode(sum[:]), nil
}

// WithComputedContentHash returns a copy of p with hashes["sha256"] set to
// the freshly computed content hash.
func (p *PDU) WithComputedContentHash() (*PDU, error) {
	hash, err := p.ContentHash()
	if err != nil {
		return nil, err
	}
	cp := p.clone()
	if cp.Hashes == nil {
		cp.Hashes = map[string]string{}
	}
	cp.Hashes["sha256"] = hash
	return cp, nil
}

// VerifyContentHash reports whether p.Hashes["sha256"] matches a freshly
// recomputed content hash.
func (p *PDU) VerifyContentHash() bool {
	want, ok := p.Hashes["sha256"]
	if !ok {
		return false
	}
	got, err := p.ContentHash()
	if err != nil {
		return false
	}
	return got == want
}

// Sign returns a copy of p with a fresh Ed25519 signature from
// (serverName, keyID) merged into its signatures map, leaving any
// existing signatures from other servers/keys untouched.
func (p *PDU) Sign(serverName, keyID string, priv cryptoutil.PrivateKey) (*PDU, error) {
	canon, err := p.SignableJSON()
	if err != nil {
		return nil, err
	}
	sig := cryptoutil.Sign(priv, canon)

	cp := p.clone()
	serverKeys := make(map[string]string, len(cp.Signatures[serverName])+1)
	for kid, s := range cp.Signatures[serverName] {
		serverKeys[kid] = s
	}
	serverKeys[keyID] = cryptoutil.B64Encode(sig)
	cp.Signatures[serverName] = serverKeys
	return cp, nil
}

// SignableJSON returns the canonical JSON of p with "signatures" and
// "unsigned" stripped: the bytes a federation signature actually covers.
func (p *PDU) SignableJSON() ([]byte, error) {
	m := p.toCanonicalMap(true, false, false, true)
	canon, err := canonicaljson.Encode(m)
	if err != nil {
		return nil, rcerr.Wrap(rcerr.InvalidJson, "event.SignableJSON", "cannot canonicalize PDU", err)
	}
	return canon, nil
}

// EventIDFor derives the event ID per the room version's format. For
// EventIDAssigned room versions this simply returns p.EventID (the
// originating server's choice); for derived formats it is recomputed from
// redact(p).
func EventIDFor(p *PDU, b roomversion.Behavior) (string, error) {
	switch b.EventIDFormat {
	case roomversion.EventIDAssigned:
		if p.EventID == "" {
			return "", rcerr.New(rcerr.InvalidEvent, "event.EventIDFor", "room v1/v2 PDU missing embedded event_id")
		}
		return p.EventID, nil
	case roomversion.EventIDSHA256NoSigil, roomversion.EventIDSHA256Sigil:
		// The reference hash strips signatures and unsigned before
		// redaction, so the ID survives re-signing by other servers.
		redacted := Redact(p, b)
		m := redacted.toCanonicalMap(true, false, false, false)
		canon, err := canonicaljson.Encode(m)
		if err != nil {
			return "", rcerr.Wrap(rcerr.InvalidJson, "event.EventIDFor", "cannot canonicalize redacted PDU", err)
		}
		sum := cryptoutil.SHA256(canon)
		id := cryptoutil.B64URLEncode(sum[:])
		if b.EventIDFormat == roomversion.EventIDSHA256Sigil {
			return "$" + id, nil
		}
		return id, nil
	default:
		return "", rcerr.New(rcerr.InvalidEvent, "event.EventIDFor", "unknown event id format")
	}
}

// RecomputeAndCheck reports whether claimedID matches the event ID p
// actually derives to; exposed for callers that already have an event_id
// on hand (e.g. one parsed off the wire for a v1/v2 room).
func RecomputeAndCheck(p *PDU, b roomversion.Behavior, claimedID string) (bool, error) {
	id, err := EventIDFor(p, b)
	if err != nil {
		return false, err
	}
	return id == claimedID, nil
}
