// Package roomcore is the thin facade wiring roomversion, cryptoutil,
// event, auth, keyring and federation together for the two
// common call sequences: verifying an inbound PDU and minting/signing an
// outbound one. It introduces no protocol surface of its own.
package roomcore

import (
	"context"
	"time"

	"github.com/tos-network/roomcore/auth"
	"github.com/tos-network/roomcore/cryptoutil"
	"github.com/tos-network/roomcore/event"
	"github.com/tos-network/roomcore/federation"
	"github.com/tos-network/roomcore/keyring"
	"github.com/tos-network/roomcore/rcerr"
	"github.com/tos-network/roomcore/roomversion"
)

// Identity is this server's own name and signing key, used both to stamp
// outbound PDUs and to sign outbound federation requests.
type Identity struct {
	ServerName string
	KeyID      string
	PrivateKey cryptoutil.PrivateKey
}

// Core bundles the components needed to process one room's worth of
// federation traffic. It holds no room-specific state itself; State is
// threaded explicitly through every call, keeping each one a pure
// function of its inputs.
type Core struct {
	Identity Identity
	Keys     *keyring.KeyRing
}

// New builds a Core. keys may be nil if the caller never verifies
// federation-signed PDUs (e.g. a pure state-resolution worker).
func New(id Identity, keys *keyring.KeyRing) *Core {
	return &Core{Identity: id, Keys: keys}
}

// IngestPDU runs the full inbound pipeline: verify the content hash and
// event ID, verify the sender
// server's signature, then authorize against the state the PDU's
// auth_events name. It does not run state resolution itself — that is a
// room-wide operation over many PDUs, left to the caller (stateres.Resolve)
// once authorization succeeds.
func (c *Core) IngestPDU(ctx context.Context, p *event.PDU, claimedEventID string, rv roomversion.Behavior, authState auth.State, redactsSenderMatch bool) error {
	ok, err := event.RecomputeAndCheck(p, rv, claimedEventID)
	if err != nil {
		return err
	}
	if !ok {
		return rcerr.New(rcerr.InvalidEvent, "roomcore.IngestPDU", "event_id does not match recomputed value")
	}
	if !p.VerifyContentHash() {
		return rcerr.New(rcerr.InvalidEvent, "roomcore.IngestPDU", "content hash mismatch")
	}

	if c.Keys != nil {
		if err := c.Keys.VerifyEvent(ctx, p); err != nil {
			return err
		}
	}

	return auth.Authorize(auth.Params{
		Event:              p,
		State:              authState,
		RoomVersion:        rv,
		RedactsSenderMatch: redactsSenderMatch,
	})
}

// MintPDU stamps a locally-authored event with origin_server_ts, computes
// and attaches its content hash, derives its event ID per rv, and signs
// it under this server's identity, ready for federation transmission.
func (c *Core) MintPDU(p *event.PDU, rv roomversion.Behavior, now time.Time) (*event.PDU, string, error) {
	stamped := *p
	stamped.OriginServerTS = now.UnixMilli()

	hashed, err := stamped.WithComputedContentHash()
	if err != nil {
		return nil, "", err
	}

	signed, err := hashed.Sign(c.Identity.ServerName, c.Identity.KeyID, c.Identity.PrivateKey)
	if err != nil {
		return nil, "", err
	}

	// Room v1/v2 (EventIDAssigned) expect p.EventID to already be set by
	// the caller before minting; v3+ derive it from the signed, redacted
	// form here.
	id, err := event.EventIDFor(signed, rv)
	if err != nil {
		return nil, "", err
	}

	return signed, id, nil
}

// SignRequest signs an outbound federation request under this server's
// identity, returning the X-Matrix header value to attach.
func (c *Core) SignRequest(r federation.Request) (string, error) {
	r.Origin = c.Identity.ServerName
	return federation.Sign(r, c.Identity.KeyID, c.Identity.PrivateKey)
}

// VerifyRequest verifies an inbound federation request's X-Matrix header
// against this server's own name as the expected destination.
func (c *Core) VerifyRequest(ctx context.Context, r federation.Request, header string) error {
	parsed, err := federation.ParseHeader(header)
	if err != nil {
		return err
	}
	if c.Keys == nil {
		return rcerr.New(rcerr.InvalidEvent, "roomcore.VerifyRequest", "no key store configured")
	}
	resp, err := c.Keys.GetKeys(ctx, parsed.Origin, 0)
	if err != nil {
		return err
	}
	// A federation request is verified against the live key set, never a
	// historical one: an old key rotated out before now must not validate
	// an inbound request signed today.
	pub, found, expired := resp.PublicKeyFor(parsed.KeyID, time.Now().UnixMilli())
	if expired {
		return rcerr.New(rcerr.InvalidSignature, "roomcore.VerifyRequest", "key "+parsed.KeyID+" for "+parsed.Origin+" has been rotated out")
	}
	if !found {
		return rcerr.New(rcerr.MissingKey, "roomcore.VerifyRequest", "unknown key "+parsed.KeyID+" for "+parsed.Origin)
	}
	return federation.Verify(ctx, r, parsed, c.Identity.ServerName, pub)
}
