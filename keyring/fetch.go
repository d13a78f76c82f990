package keyring

import "context"

// Fetcher performs the one outbound call a key lookup may need: either a
// direct GET /_matrix/key/v2/server against the target, or — when wrapped
// by a notary adapter — a POST /_matrix/key/v2/query against a third
// server acting as notary for the target.
//
// Implementations own the actual transport (the federation request
// signer supplies the X-Matrix header); this package only defines the
// shape of the call and how its result is validated and cached.
type Fetcher interface {
	FetchServerKeys(ctx context.Context, serverName string) (*ServerKeyResponse, error)
}

// FetcherFunc adapts a plain function to Fetcher, the same adapter-function
// idiom as http.HandlerFunc.
type FetcherFunc func(ctx context.Context, serverName string) (*ServerKeyResponse, error)

func (f FetcherFunc) FetchServerKeys(ctx context.Context, serverName string) (*ServerKeyResponse, error) {
	return f(ctx, serverName)
}
