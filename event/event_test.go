package event

import (
	"testing"

	"github.com/tos-network/roomcore/cryptoutil"
	"github.com/tos-network/roomcore/roomversion"
)

func samplePDU() *PDU {
	return &PDU{
		RoomID:         "!abc:example.org",
		Sender:         "@alice:example.org",
		Type:           "m.room.message",
		Content:        map[string]any{"body": "hello", "msgtype": "m.text"},
		OriginServerTS: 1234567890,
		Depth:          4,
		PrevEvents:     []string{"$prev1", "$prev2"},
		AuthEvents:     []string{"$create", "$powerlevels"},
	}
}

// ── Content hash ──────────────────────────────────────────────────────────

func TestContentHashStableAcrossReencoding(t *testing.T) {
	p := samplePDU()
	h1, err := p.ContentHash()
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	// Re-derive from a structurally identical but freshly-built PDU.
	p2 := samplePDU()
	h2, err := p2.ContentHash()
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected identical content hash, got %s vs %s", h1, h2)
	}
}

func TestVerifyContentHashDetectsTampering(t *testing.T) {
	p, err := samplePDU().WithComputedContentHash()
	if err != nil {
		t.Fatalf("WithComputedContentHash: %v", err)
	}
	if !p.VerifyContentHash() {
		t.Fatal("expected content hash to verify")
	}
	p.Content["body"] = "tampered"
	if p.VerifyContentHash() {
		t.Fatal("expected tampered content to fail hash verification")
	}
}

func TestContentHashExcludesHashesSignaturesUnsigned(t *testing.T) {
	p := samplePDU()
	h1, _ := p.ContentHash()

	p2 := samplePDU()
	p2.Hashes = map[string]string{"sha256": "whatever"}
	p2.Signatures = map[string]map[string]string{"x": {"ed25519:1": "sig"}}
	p2.Unsigned = map[string]any{"age": float64(5)}
	h2, _ := p2.ContentHash()

	if h1 != h2 {
		t.Error("content hash must not depend on hashes/signatures/unsigned")
	}
}

// ── Signing ───────────────────────────────────────────────────────────────

func TestSignAttachesVerifiableSignature(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateKey()
	p := samplePDU()

	signed, err := p.Sign("origin.example", "ed25519:1", priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, ok := p.Signatures["origin.example"]; ok {
		t.Fatal("Sign must not mutate the receiver")
	}

	canon, err := signed.SignableJSON()
	if err != nil {
		t.Fatalf("SignableJSON: %v", err)
	}
	sigB64, ok := signed.Signatures["origin.example"]["ed25519:1"]
	if !ok {
		t.Fatal("expected a signature under origin.example/ed25519:1")
	}
	sig, err := cryptoutil.B64Decode(sigB64)
	if err != nil {
		t.Fatalf("B64Decode: %v", err)
	}
	if !cryptoutil.Verify(pub, sig, canon) {
		t.Error("expected the attached signature to verify against SignableJSON")
	}
}

func TestSignPreservesExistingSignatures(t *testing.T) {
	_, priv1, _ := cryptoutil.GenerateKey()
	_, priv2, _ := cryptoutil.GenerateKey()
	p := samplePDU()

	once, err := p.Sign("first.example", "ed25519:1", priv1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	twice, err := once.Sign("second.example", "ed25519:1", priv2)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, ok := twice.Signatures["first.example"]; !ok {
		t.Error("expected the first server's signature to survive a second signing")
	}
	if _, ok := twice.Signatures["second.example"]; !ok {
		t.Error("expected the second server's signature to be present")
	}
}

// ── Event IDs ─────────────────────────────────────────────────────────────

func TestEventIDAssignedRoomVersion(t *testing.T) {
	b, _ := roomversion.Lookup("2")
	p := samplePDU()
	p.EventID = "$abc:example.org"
	id, err := EventIDFor(p, b)
	if err != nil {
		t.Fatalf("EventIDFor: %v", err)
	}
	if id != "$abc:example.org" {
		t.Errorf("expected embedded event id, got %s", id)
	}
}

func TestEventIDAssignedMissingIsInvalid(t *testing.T) {
	b, _ := roomversion.Lookup("1")
	_, err := EventIDFor(samplePDU(), b)
	if err == nil {
		t.Fatal("expected error for missing event_id on assigned-id room version")
	}
}

func TestEventIDDerivedFormats(t *testing.T) {
	p := samplePDU()
	p.Type = "m.room.member"
	p.StateKey = strPtr("@bob:example.org")
	p.Content = map[string]any{"membership": "join", "extra_ignored": "x"}
	hashed, err := p.WithComputedContentHash()
	if err != nil {
		t.Fatalf("WithComputedContentHash: %v", err)
	}

	v3, _ := roomversion.Lookup("3")
	id3, err := EventIDFor(hashed, v3)
	if err != nil {
		t.Fatalf("EventIDFor v3: %v", err)
	}
	if len(id3) == 0 || id3[0] == '$' {
		t.Errorf("v3 event id must not carry a leading $: %s", id3)
	}

	v4, _ := roomversion.Lookup("4")
	id4, err := EventIDFor(hashed, v4)
	if err != nil {
		t.Fatalf("EventIDFor v4: %v", err)
	}
	if id4[0] != '$' {
		t.Errorf("v4 event id must carry a leading $: %s", id4)
	}
}

func TestEventIDStableUnderReSigning(t *testing.T) {
	// The reference hash covers the redacted event minus signatures and
	// unsigned, so attaching further signatures never changes the ID —
	// honest observers agree on it before and after federation hops.
	p := samplePDU()
	hashed, err := p.WithComputedContentHash()
	if err != nil {
		t.Fatalf("WithComputedContentHash: %v", err)
	}
	v4, _ := roomversion.Lookup("4")

	before, err := EventIDFor(hashed, v4)
	if err != nil {
		t.Fatalf("EventIDFor: %v", err)
	}

	signedCopy := hashed.clone()
	signedCopy.Signatures = map[string]map[string]string{"example.org": {"ed25519:1": "sig1"}}
	afterSigning, err := EventIDFor(signedCopy, v4)
	if err != nil {
		t.Fatalf("EventIDFor: %v", err)
	}
	if before != afterSigning {
		t.Error("expected the event id to be unchanged by signing")
	}

	resigned := signedCopy.clone()
	resigned.Signatures["second.example"] = map[string]string{"ed25519:1": "sig2"}
	again, err := EventIDFor(resigned, v4)
	if err != nil {
		t.Fatalf("EventIDFor: %v", err)
	}
	if afterSigning != again {
		t.Error("expected event id to be stable under re-signing")
	}
}

// ── Redaction ─────────────────────────────────────────────────────────────

func TestRedactMemberEventRetainsWhitelist(t *testing.T) {
	p := &PDU{
		Type:     "m.room.member",
		StateKey: strPtr("@bob:example.org"),
		Content: map[string]any{
			"membership":                      "join",
			"join_authorised_via_users_server": "@alice:example.org",
			"displayname":                      "Bob",
			"avatar_url":                       "mxc://example.org/abc",
		},
	}
	v6, _ := roomversion.Lookup("6")
	r := Redact(p, v6)
	if _, ok := r.Content["displayname"]; ok {
		t.Error("expected displayname to be stripped by redaction")
	}
	if r.Content["membership"] != "join" {
		t.Error("expected membership to survive redaction")
	}
	if r.Content["join_authorised_via_users_server"] != "@alice:example.org" {
		t.Error("expected join_authorised_via_users_server to survive redaction")
	}
}

func TestRedactV11RetainsThirdPartyInvite(t *testing.T) {
	p := &PDU{
		Type:     "m.room.member",
		StateKey: strPtr("@bob:example.org"),
		Content: map[string]any{
			"membership":        "invite",
			"third_party_invite": map[string]any{"signed": map[string]any{}},
		},
	}
	v10, _ := roomversion.Lookup("10")
	v11, _ := roomversion.Lookup("11")

	r10 := Redact(p, v10)
	if _, ok := r10.Content["third_party_invite"]; ok {
		t.Error("v10 must drop third_party_invite on redaction")
	}

	r11 := Redact(p, v11)
	if _, ok := r11.Content["third_party_invite"]; !ok {
		t.Error("v11 must retain third_party_invite on redaction")
	}
}

func TestRedactIsIdempotent(t *testing.T) {
	p := &PDU{
		Type:     "m.room.power_levels",
		StateKey: strPtr(""),
		Content: map[string]any{
			"ban":      float64(50),
			"users":    map[string]any{"@a:x": float64(100)},
			"whatever": "dropped",
		},
	}
	v9, _ := roomversion.Lookup("9")
	if !IsRedactionIdempotent(p, v9) {
		t.Error("expected redact(redact(e)) == redact(e)")
	}
}

func TestRedactDoesNotChangeEventID(t *testing.T) {
	p := samplePDU()
	p.Type = "m.room.member"
	p.StateKey = strPtr("@bob:example.org")
	p.Content = map[string]any{"membership": "join"}
	hashed, err := p.WithComputedContentHash()
	if err != nil {
		t.Fatalf("WithComputedContentHash: %v", err)
	}
	v6, _ := roomversion.Lookup("6")
	before, err := EventIDFor(hashed, v6)
	if err != nil {
		t.Fatalf("EventIDFor: %v", err)
	}
	redacted := Redact(hashed, v6)
	after, err := EventIDFor(redacted, v6)
	if err != nil {
		t.Fatalf("EventIDFor: %v", err)
	}
	if before != after {
		t.Error("expected event id to be unchanged by redaction")
	}
}

// ── Wire round trip ───────────────────────────────────────────────────────

func TestMapFromMapRoundTrip(t *testing.T) {
	p := samplePDU()
	p.StateKey = strPtr("")
	p.Hashes = map[string]string{"sha256": "abc"}
	p.Signatures = map[string]map[string]string{"example.org": {"ed25519:1": "sig"}}
	p.Unsigned = map[string]any{"age": float64(10)}

	m := p.Map()
	keys := TopLevelKeys(m)
	if len(keys) == 0 {
		t.Fatal("expected at least one recognized top-level key")
	}

	p2, err := FromMap(m)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if p2.RoomID != p.RoomID || p2.Sender != p.Sender || p2.Type != p.Type {
		t.Error("round trip lost basic fields")
	}
	if p2.Hashes["sha256"] != "abc" {
		t.Error("round trip lost hashes")
	}
	if p2.Signatures["example.org"]["ed25519:1"] != "sig" {
		t.Error("round trip lost signatures")
	}
}

func strPtr(s string) *string { return &s }
