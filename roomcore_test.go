package roomcore

import (
	"context"
	"testing"
	"time"

	"github.com/tos-network/roomcore/auth"
	"github.com/tos-network/roomcore/cryptoutil"
	"github.com/tos-network/roomcore/event"
	"github.com/tos-network/roomcore/keyring"
	"github.com/tos-network/roomcore/roomversion"
	"github.com/tos-network/roomcore/xlog"
)

func strPtr(s string) *string { return &s }

func TestMintThenIngestRoundTrip(t *testing.T) {
	pub, priv, _ := cryptoutil.GenerateKey()
	rv, _ := roomversion.Lookup("9")

	origin := keyring.FetcherFunc(func(ctx context.Context, serverName string) (*keyring.ServerKeyResponse, error) {
		raw := map[string]any{
			"server_name":    serverName,
			"valid_until_ts": float64(1_000_000_000),
			"verify_keys":    map[string]any{"ed25519:1": map[string]any{"key": cryptoutil.B64Encode(pub)}},
		}
		signed, err := cryptoutil.SignJSON(raw, serverName, "ed25519:1", priv)
		if err != nil {
			t.Fatalf("SignJSON: %v", err)
		}
		return &keyring.ServerKeyResponse{
			ServerName:   serverName,
			ValidUntilTS: 1_000_000_000,
			VerifyKeys:   map[string]keyring.VerifyKey{"ed25519:1": {KeyB64: cryptoutil.B64Encode(pub)}},
			Raw:          signed,
		}, nil
	})
	keys, err := keyring.New(keyring.Config{SelfName: "dest.example", Origin: origin, Log: xlog.Discard})
	if err != nil {
		t.Fatalf("keyring.New: %v", err)
	}

	core := New(Identity{ServerName: "origin.example", KeyID: "ed25519:1", PrivateKey: priv}, keys)

	create := &event.PDU{
		RoomID: "!r:origin.example", Sender: "@a:origin.example", Type: "m.room.create",
		StateKey: strPtr(""), Content: map[string]any{"creator": "@a:origin.example"},
		Depth: 0,
	}
	minted, id, err := core.MintPDU(create, rv, time.UnixMilli(1700000000000))
	if err != nil {
		t.Fatalf("MintPDU: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty derived event id")
	}
	if minted.OriginServerTS == 0 {
		t.Error("expected origin_server_ts to be stamped")
	}
	if !minted.VerifyContentHash() {
		t.Error("expected minted PDU to carry a valid content hash")
	}

	st := auth.State{}
	err = core.IngestPDU(context.Background(), minted, id, rv, st, false)
	if err != nil {
		t.Errorf("expected the just-minted create event to ingest cleanly, got %v", err)
	}
}

func TestIngestPDURejectsWrongEventID(t *testing.T) {
	_, priv, _ := cryptoutil.GenerateKey()
	rv, _ := roomversion.Lookup("9")

	core := New(Identity{ServerName: "origin.example", KeyID: "ed25519:1", PrivateKey: priv}, nil)
	create := &event.PDU{
		RoomID: "!r:origin.example", Sender: "@a:origin.example", Type: "m.room.create",
		StateKey: strPtr(""), Content: map[string]any{"creator": "@a:origin.example"},
	}
	minted, _, err := core.MintPDU(create, rv, time.UnixMilli(1700000000000))
	if err != nil {
		t.Fatalf("MintPDU: %v", err)
	}

	err = core.IngestPDU(context.Background(), minted, "$wrong-id", rv, auth.State{}, false)
	if err == nil {
		t.Fatal("expected a mismatched event_id to be rejected")
	}
}
