package federation

import (
	"context"
	"testing"

	"github.com/tos-network/roomcore/cryptoutil"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateKey()
	req := Request{
		Method: "PUT", URI: "/_matrix/federation/v1/send/123",
		Origin: "origin.example", Destination: "dest.example",
		Content: []byte(`{"pdus":[]}`),
	}

	header, err := Sign(req, "ed25519:1", priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	parsed, err := ParseHeader(header)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if parsed.Origin != "origin.example" || parsed.Destination != "dest.example" || parsed.KeyID != "ed25519:1" {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}

	if err := Verify(context.Background(), req, parsed, "dest.example", pub); err != nil {
		t.Errorf("expected verification to succeed, got %v", err)
	}
}

func TestParseHeaderToleratesFieldOrderAndNoQuotes(t *testing.T) {
	header := `X-Matrix sig=abc123,key="ed25519:1",origin=origin.example,destination="dest.example"`
	parsed, err := ParseHeader(header)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if parsed.Origin != "origin.example" || parsed.Destination != "dest.example" || parsed.KeyID != "ed25519:1" || parsed.SigB64URL != "abc123" {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestParseHeaderRejectsMissingFields(t *testing.T) {
	if _, err := ParseHeader(`X-Matrix origin="origin.example",key="ed25519:1"`); err == nil {
		t.Fatal("expected missing sig field to be rejected")
	}
}

func TestVerifyRejectsMissingDestination(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateKey()
	req := Request{Method: "GET", URI: "/_matrix/key/v2/server", Origin: "origin.example", Destination: "dest.example"}
	header, _ := Sign(req, "ed25519:1", priv)
	parsed, _ := ParseHeader(header)
	parsed.Destination = ""

	if err := Verify(context.Background(), req, parsed, "dest.example", pub); err == nil {
		t.Fatal("expected missing destination to be rejected")
	}
}

func TestVerifyRejectsWrongDestination(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateKey()
	req := Request{Method: "GET", URI: "/_matrix/key/v2/server", Origin: "origin.example", Destination: "dest.example"}
	header, _ := Sign(req, "ed25519:1", priv)
	parsed, _ := ParseHeader(header)

	if err := Verify(context.Background(), req, parsed, "someone-else.example", pub); err == nil {
		t.Fatal("expected destination mismatch with this server to be rejected")
	}
}

func TestVerifyRejectsTamperedURI(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateKey()
	req := Request{Method: "GET", URI: "/_matrix/key/v2/server", Origin: "origin.example", Destination: "dest.example"}
	header, _ := Sign(req, "ed25519:1", priv)
	parsed, _ := ParseHeader(header)

	tampered := req
	tampered.URI = "/_matrix/key/v2/server/other"
	if err := Verify(context.Background(), tampered, parsed, "dest.example", pub); err == nil {
		t.Fatal("expected URI tampering to be detected")
	}
}

func TestVerifyOmitsContentWhenRequestHasNoBody(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateKey()
	req := Request{Method: "GET", URI: "/_matrix/key/v2/server", Origin: "origin.example", Destination: "dest.example"}
	header, err := Sign(req, "ed25519:1", priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	parsed, _ := ParseHeader(header)
	if err := Verify(context.Background(), req, parsed, "dest.example", pub); err != nil {
		t.Errorf("expected bodyless request verification to succeed, got %v", err)
	}
}
