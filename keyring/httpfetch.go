package keyring

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tos-network/roomcore/canonicaljson"
	"github.com/tos-network/roomcore/rcerr"
)

// maxKeyResponseBytes bounds how much of a key response body is read; a
// well-formed response is a few hundred bytes.
const maxKeyResponseBytes = 1 << 20

// HTTPFetcher is the direct-to-origin Fetcher: GET
// https://<server>/_matrix/key/v2/server. The caller-supplied context
// carries the per-fetch timeout (KeyRing applies DefaultFetchTimeout).
type HTTPFetcher struct {
	// Client defaults to http.DefaultClient. Deployments normally supply
	// one with federation-aware TLS settings.
	Client *http.Client

	// Scheme defaults to "https"; tests point it at "http".
	Scheme string

	// Now defaults to time.Now; it stamps FetchedAtTS on parsed responses.
	Now func() time.Time
}

func (f *HTTPFetcher) FetchServerKeys(ctx context.Context, serverName string) (*ServerKeyResponse, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	scheme := f.Scheme
	if scheme == "" {
		scheme = "https"
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}

	u := url.URL{Scheme: scheme, Host: serverName, Path: "/_matrix/key/v2/server"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, rcerr.Wrap(rcerr.InvalidEvent, "keyring.HTTPFetcher", "cannot build key request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, rcerr.Wrap(rcerr.Cancelled, "keyring.HTTPFetcher", "key fetch cancelled", ctx.Err())
		}
		return nil, rcerr.Wrap(rcerr.NotReachable, "keyring.HTTPFetcher", "key fetch failed for "+serverName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, rcerr.New(rcerr.NotReachable, "keyring.HTTPFetcher", serverName+" answered "+resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeyResponseBytes))
	if err != nil {
		return nil, rcerr.Wrap(rcerr.NotReachable, "keyring.HTTPFetcher", "reading key response body", err)
	}
	return ParseServerKeyResponse(body, now())
}

// ParseServerKeyResponse decodes a GET /_matrix/key/v2/server body (or one
// entry of a /_matrix/key/v2/query batch) into a ServerKeyResponse. The
// decoded map is kept verbatim in Raw so self-verification and notary
// re-signing operate over exactly the bytes the origin signed.
func ParseServerKeyResponse(body []byte, fetchedAt time.Time) (*ServerKeyResponse, error) {
	v, err := canonicaljson.Decode(body)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, rcerr.New(rcerr.InvalidJson, "keyring.ParseServerKeyResponse", "key response is not a JSON object")
	}

	serverName, ok := m["server_name"].(string)
	if !ok || serverName == "" {
		return nil, rcerr.New(rcerr.InvalidEvent, "keyring.ParseServerKeyResponse", "missing server_name")
	}

	out := &ServerKeyResponse{
		ServerName:    serverName,
		VerifyKeys:    map[string]VerifyKey{},
		OldVerifyKeys: map[string]OldVerifyKey{},
		FetchedAtTS:   fetchedAt.UnixMilli(),
		Raw:           m,
	}
	out.ValidUntilTS, _ = wireInt64(m["valid_until_ts"])

	if vk, ok := m["verify_keys"].(map[string]any); ok {
		for keyID, entry := range vk {
			em, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if keyB64, ok := em["key"].(string); ok {
				out.VerifyKeys[keyID] = VerifyKey{KeyB64: keyB64}
			}
		}
	}
	if ovk, ok := m["old_verify_keys"].(map[string]any); ok {
		for keyID, entry := range ovk {
			em, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			keyB64, ok := em["key"].(string)
			if !ok {
				continue
			}
			expired, _ := wireInt64(em["expired_ts"])
			out.OldVerifyKeys[keyID] = OldVerifyKey{KeyB64: keyB64, ExpiredTS: expired}
		}
	}
	if sigs, ok := m["signatures"].(map[string]any); ok {
		out.Signatures = make(map[string]map[string]string, len(sigs))
		for server, keys := range sigs {
			km, ok := keys.(map[string]any)
			if !ok {
				continue
			}
			parsed := make(map[string]string, len(km))
			for keyID, sig := range km {
				if s, ok := sig.(string); ok {
					parsed[keyID] = s
				}
			}
			out.Signatures[server] = parsed
		}
	}
	return out, nil
}

// wireInt64 reads a decoded-JSON numeric value (json.Number from
// canonicaljson, float64 from encoding/json).
func wireInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
