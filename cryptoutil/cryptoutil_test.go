package cryptoutil

import "testing"

// ── Ed25519 ───────────────────────────────────────────────────────────────

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	msg := []byte("hello federation")
	sig := Sign(priv, msg)
	if !Verify(pub, sig, msg) {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifyRejectsFlippedByte(t *testing.T) {
	pub, priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	msg := []byte("hello federation")
	sig := Sign(priv, msg)
	sig[0] ^= 0xFF
	if Verify(pub, sig, msg) {
		t.Fatal("expected flipped signature to fail verification")
	}
}

func TestVerifyNeverPanicsOnGarbage(t *testing.T) {
	if Verify(nil, nil, []byte("x")) {
		t.Fatal("expected false for empty key/sig")
	}
	if Verify([]byte{1, 2, 3}, []byte{4, 5}, []byte("x")) {
		t.Fatal("expected false for wrong-length key/sig")
	}
}

// ── Password KDF ──────────────────────────────────────────────────────────

func TestPasswordHashVerify(t *testing.T) {
	hash, err := PasswordHash("correct horse battery staple")
	if err != nil {
		t.Fatalf("PasswordHash: %v", err)
	}
	if !PasswordVerify("correct horse battery staple", hash) {
		t.Fatal("expected password to verify against its own hash")
	}
	if PasswordVerify("wrong password", hash) {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestPasswordHashFormat(t *testing.T) {
	hash, err := PasswordHash("x")
	if err != nil {
		t.Fatalf("PasswordHash: %v", err)
	}
	if hash[0] != '$' {
		t.Fatalf("expected hash to start with $, got %s", hash)
	}
}

// ── Token hashing ─────────────────────────────────────────────────────────

func TestTokenHashDeterministic(t *testing.T) {
	a := TokenHash("syt_abc123")
	b := TokenHash("syt_abc123")
	if a != b {
		t.Fatal("expected TokenHash to be deterministic")
	}
	if TokenHash("different") == a {
		t.Fatal("expected different tokens to hash differently")
	}
}

// ── RandomString ──────────────────────────────────────────────────────────

func TestRandomStringAlphabetAndLength(t *testing.T) {
	s, err := RandomString(64)
	if err != nil {
		t.Fatalf("RandomString: %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("expected length 64, got %d", len(s))
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Fatalf("unexpected character %q in random string", r)
		}
	}
}

// ── JSON signing ──────────────────────────────────────────────────────────

func TestSignJSONVerifyJSON(t *testing.T) {
	pub, priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	obj := map[string]any{
		"room_id": "!abc:example.org",
		"content": map[string]any{"body": "hi"},
		"unsigned": map[string]any{
			"age": float64(100),
		},
	}
	signed, err := SignJSON(obj, "example.org", "ed25519:1", priv)
	if err != nil {
		t.Fatalf("SignJSON: %v", err)
	}
	if !VerifyJSON(signed, "example.org", "ed25519:1", pub) {
		t.Fatal("expected VerifyJSON to succeed")
	}
	// unsigned is excluded from the signed bytes but must survive untouched.
	unsigned, ok := signed["unsigned"].(map[string]any)
	if !ok || unsigned["age"] != float64(100) {
		t.Fatalf("expected unsigned to be preserved, got %v", signed["unsigned"])
	}
}

func TestSignJSONPreservesExistingSignatures(t *testing.T) {
	_, privA, _ := GenerateKey()
	pubB, privB, _ := GenerateKey()

	obj := map[string]any{"x": float64(1)}
	step1, err := SignJSON(obj, "a.example", "ed25519:1", privA)
	if err != nil {
		t.Fatalf("SignJSON step1: %v", err)
	}
	step2, err := SignJSON(step1, "b.example", "ed25519:1", privB)
	if err != nil {
		t.Fatalf("SignJSON step2: %v", err)
	}

	sigs := step2["signatures"].(map[string]any)
	if _, ok := sigs["a.example"]; !ok {
		t.Fatal("expected a.example's signature to survive a second signing pass")
	}
	if !VerifyJSON(step2, "b.example", "ed25519:1", pubB) {
		t.Fatal("expected b.example's signature to verify")
	}
}

func TestVerifyJSONRejectsTamperedContent(t *testing.T) {
	pub, priv, _ := GenerateKey()
	obj := map[string]any{"x": float64(1)}
	signed, err := SignJSON(obj, "a.example", "ed25519:1", priv)
	if err != nil {
		t.Fatalf("SignJSON: %v", err)
	}
	signed["x"] = float64(2)
	if VerifyJSON(signed, "a.example", "ed25519:1", pub) {
		t.Fatal("expected tampered content to fail verification")
	}
}
