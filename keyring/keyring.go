package keyring

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/tos-network/roomcore/cryptoutil"
	"github.com/tos-network/roomcore/event"
	"github.com/tos-network/roomcore/rcerr"
	"github.com/tos-network/roomcore/xlog"
)

// DefaultFetchTimeout bounds a single origin or notary round trip.
const DefaultFetchTimeout = 10 * time.Second

// Config configures a KeyRing.
type Config struct {
	// SelfName is this server's own name, stamped into notary re-signed
	// responses.
	SelfName string

	// HotCacheSize bounds the in-process ARC cache's entry count. Zero
	// selects a sane default.
	HotCacheSize int

	Durable DurableStore // defaults to an in-memory store if nil
	Origin  Fetcher      // direct-to-origin fetch; required
	Notary  []Fetcher    // fallback notaries, tried in order

	FetchTimeout time.Duration // defaults to DefaultFetchTimeout
	Log          xlog.Logger   // defaults to xlog.New("keyring")
}

// KeyRing is the three-layer server-key store: hot in-process ARC cache,
// durable TTL cache, origin fetch — with concurrent fetches for the same
// server_name coalesced into one inflight call.
type KeyRing struct {
	selfName string
	hot      *lru.ARCCache
	durable  DurableStore
	origin   Fetcher
	notaries []Fetcher
	timeout  time.Duration
	log      xlog.Logger

	group singleflight.Group
}

// New builds a KeyRing. cfg.Origin must be non-nil.
func New(cfg Config) (*KeyRing, error) {
	if cfg.Origin == nil {
		return nil, rcerr.New(rcerr.InvalidEvent, "keyring.New", "cfg.Origin is required")
	}
	size := cfg.HotCacheSize
	if size <= 0 {
		size = 1024
	}
	hot, err := lru.NewARC(size)
	if err != nil {
		return nil, rcerr.Wrap(rcerr.InvalidEvent, "keyring.New", "cannot build hot cache", err)
	}
	durable := cfg.Durable
	if durable == nil {
		durable = NewMemoryStore()
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	log := cfg.Log
	if log == nil {
		log = xlog.New("keyring")
	}
	return &KeyRing{
		selfName: cfg.SelfName,
		hot:      hot,
		durable:  durable,
		origin:   cfg.Origin,
		notaries: cfg.Notary,
		timeout:  timeout,
		log:      log,
	}, nil
}

// GetKeys implements get_keys(server, min_valid_until_ts): returns the
// cached response if it (or any cached entry) remains valid past
// minValidUntilTS, else refetches from the origin, falling back to
// notaries and finally to a stale cached entry on total failure.
func (k *KeyRing) GetKeys(ctx context.Context, serverName string, minValidUntilTS int64) (*ServerKeyResponse, error) {
	if v, ok := k.hot.Get(serverName); ok {
		if r := v.(*ServerKeyResponse); r.ValidUntilTS >= minValidUntilTS {
			return r, nil
		}
	}
	if r, ok, err := k.durable.Get(ctx, serverName); err == nil && ok && r.ValidUntilTS >= minValidUntilTS {
		k.hot.Add(serverName, r)
		return r, nil
	}

	return k.fetch(ctx, serverName)
}

// fetch coalesces concurrent refetches for the same server into a single
// inflight call, tries the origin first, then each notary in order, and
// falls back to the latest durable-cached entry (even if stale) before
// giving up.
func (k *KeyRing) fetch(ctx context.Context, serverName string) (*ServerKeyResponse, error) {
	v, err, _ := k.group.Do(serverName, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, k.timeout)
		defer cancel()

		r, ferr := k.tryFetchers(fetchCtx, serverName)
		if ferr == nil {
			k.hot.Add(serverName, r)
			_ = k.durable.Put(ctx, r)
			return r, nil
		}

		if ctx.Err() != nil {
			return nil, rcerr.Wrap(rcerr.Cancelled, "keyring.fetch", "fetch cancelled", ctx.Err())
		}

		if stale, ok, derr := k.durable.Get(ctx, serverName); derr == nil && ok {
			k.log.Warn("serving stale server key", "server", serverName, "err", ferr)
			return stale, nil
		}
		return nil, rcerr.Wrap(rcerr.NotReachable, "keyring.fetch", "no reachable origin or notary and no cached entry", ferr)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ServerKeyResponse), nil
}

// tryFetchers attempts the origin, then each notary in order, accepting
// only a response that self-verifies.
func (k *KeyRing) tryFetchers(ctx context.Context, serverName string) (*ServerKeyResponse, error) {
	var lastErr error
	for _, f := range append([]Fetcher{k.origin}, k.notaries...) {
		r, err := f.FetchServerKeys(ctx, serverName)
		if err != nil {
			lastErr = err
			continue
		}
		if !r.SelfVerify() {
			lastErr = rcerr.New(rcerr.InvalidSignature, "keyring.tryFetchers", "fetched response does not self-verify")
			continue
		}
		return r, nil
	}
	if lastErr == nil {
		lastErr = rcerr.New(rcerr.NotReachable, "keyring.tryFetchers", "no fetchers configured")
	}
	return nil, lastErr
}

// VerifyEvent checks every signature the event carries, returning an error
// (never a bare bool) so callers can distinguish "no valid signature" from
// "could not reach any key source": a cache miss with no reachable origin
// fails the verification, it does not panic or throw past this boundary.
func (k *KeyRing) VerifyEvent(ctx context.Context, e *event.PDU) error {
	sigs := e.Signatures
	if len(sigs) == 0 {
		return rcerr.New(rcerr.InvalidSignature, "keyring.VerifyEvent", "event carries no signatures")
	}
	canon, err := e.SignableJSON()
	if err != nil {
		return err
	}

	for serverName, keys := range sigs {
		verified := false
		for keyID, sigB64 := range keys {
			resp, err := k.GetKeys(ctx, serverName, 0)
			if err != nil {
				return err
			}
			pub, found, expired := resp.PublicKeyFor(keyID, e.OriginServerTS)
			if expired {
				return rcerr.New(rcerr.InvalidSignature, "keyring.VerifyEvent", "key "+keyID+" for "+serverName+" had already been rotated out by the event's origin_server_ts")
			}
			if !found {
				return rcerr.New(rcerr.MissingKey, "keyring.VerifyEvent", "unknown key "+keyID+" for "+serverName)
			}
			sig, err := cryptoutil.B64Decode(sigB64)
			if err != nil {
				return rcerr.Wrap(rcerr.InvalidSignature, "keyring.VerifyEvent", "malformed signature", err)
			}
			if cryptoutil.Verify(pub, sig, canon) {
				verified = true
			}
		}
		if !verified {
			return rcerr.UnauthorizedErr("keyring.VerifyEvent", "signature", "no valid signature from "+serverName)
		}
	}
	return nil
}

// NotaryResign implements notary_resign(server, key_id?, min_valid_until_ts):
// fetches the target's key response, optionally narrows to a single key
// ID, and attaches this server's own signature under (selfName, signKeyID)
// — exposing the notary side of POST /_matrix/key/v2/query.
func (k *KeyRing) NotaryResign(ctx context.Context, targetServer, keyID string, minValidUntilTS int64, signKeyID string, priv cryptoutil.PrivateKey) (*ServerKeyResponse, error) {
	resp, err := k.GetKeys(ctx, targetServer, minValidUntilTS)
	if err != nil {
		return nil, err
	}

	narrowed := *resp
	if keyID != "" {
		vk, ok := resp.VerifyKeys[keyID]
		if !ok {
			return nil, rcerr.New(rcerr.MissingKey, "keyring.NotaryResign", "target has no key "+keyID)
		}
		narrowed.VerifyKeys = map[string]VerifyKey{keyID: vk}
	}

	signed, err := cryptoutil.SignJSON(resp.Raw, k.selfName, signKeyID, priv)
	if err != nil {
		return nil, err
	}
	narrowed.Raw = signed
	return &narrowed, nil
}
