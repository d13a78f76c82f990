// Package federation implements the X-Matrix federation request signer
// and verifier: building the outbound Authorization header and tolerantly
// parsing and verifying the inbound one.
package federation

import (
	"context"
	"strings"

	"github.com/tos-network/roomcore/canonicaljson"
	"github.com/tos-network/roomcore/cryptoutil"
	"github.com/tos-network/roomcore/rcerr"
)

// Request is the subset of an HTTP request the X-Matrix canonical object
// is built from.
type Request struct {
	Method      string
	URI         string // path + query, e.g. "/_matrix/federation/v1/send/abc?x=1"
	Origin      string
	Destination string
	Content     []byte // raw JSON body; nil/empty iff the request has no body
}

// canonicalObject builds {method, uri, origin, destination, content?} and
// returns its canonical-JSON encoding.
func canonicalObject(r Request) ([]byte, error) {
	m := map[string]any{
		"method":      strings.ToUpper(r.Method),
		"uri":         r.URI,
		"origin":      r.Origin,
		"destination": r.Destination,
	}
	if len(r.Content) > 0 {
		body, err := canonicaljson.Decode(r.Content)
		if err != nil {
			return nil, rcerr.Wrap(rcerr.InvalidJson, "federation.canonicalObject", "request body is not valid JSON", err)
		}
		m["content"] = body
	}
	return canonicaljson.Encode(m)
}

// Sign builds and signs the canonical request object and returns the
// ready-to-send X-Matrix Authorization header value.
func Sign(r Request, keyID string, priv cryptoutil.PrivateKey) (string, error) {
	canon, err := canonicalObject(r)
	if err != nil {
		return "", err
	}
	sig := cryptoutil.Sign(priv, canon)
	return BuildHeader(r.Origin, r.Destination, keyID, cryptoutil.B64URLEncode(sig)), nil
}

// BuildHeader formats the four fields into the header's wire form.
func BuildHeader(origin, destination, keyID, sigB64URL string) string {
	var b strings.Builder
	b.WriteString("X-Matrix origin=\"")
	b.WriteString(origin)
	b.WriteString("\",destination=\"")
	b.WriteString(destination)
	b.WriteString("\",key=\"")
	b.WriteString(keyID)
	b.WriteString("\",sig=\"")
	b.WriteString(sigB64URL)
	b.WriteString("\"")
	return b.String()
}

// Parsed is one inbound X-Matrix header's four fields.
type Parsed struct {
	Origin      string
	Destination string
	KeyID       string
	SigB64URL   string
}

// ParseHeader tolerantly parses an X-Matrix header: the four fields may
// appear in any order and quoting is optional.
func ParseHeader(header string) (Parsed, error) {
	const prefix = "X-Matrix "
	trimmed := strings.TrimSpace(header)
	if !strings.HasPrefix(trimmed, prefix) {
		// Accept the scheme name in any letter case (e.g. "x-matrix"); a
		// value with no scheme at all is rejected.
		if idx := strings.Index(trimmed, " "); idx >= 0 && strings.EqualFold(trimmed[:idx], "X-Matrix") {
			trimmed = trimmed[idx+1:]
		} else {
			return Parsed{}, rcerr.New(rcerr.InvalidEvent, "federation.ParseHeader", "missing X-Matrix scheme")
		}
	} else {
		trimmed = trimmed[len(prefix):]
	}

	var p Parsed
	for _, part := range splitParams(trimmed) {
		key, value, ok := splitParam(part)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "origin":
			p.Origin = value
		case "destination":
			p.Destination = value
		case "key":
			p.KeyID = value
		case "sig":
			p.SigB64URL = value
		}
	}
	if p.Origin == "" || p.KeyID == "" || p.SigB64URL == "" {
		return Parsed{}, rcerr.New(rcerr.InvalidEvent, "federation.ParseHeader", "missing required X-Matrix field")
	}
	return p, nil
}

// splitParams splits a comma-separated parameter list, respecting commas
// inside double-quoted values.
func splitParams(s string) []string {
	var out []string
	inQuotes := false
	start := 0
	for i, r := range s {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func splitParam(s string) (key, value string, ok bool) {
	s = strings.TrimSpace(s)
	idx := strings.Index(s, "=")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(s[:idx])
	value = strings.TrimSpace(s[idx+1:])
	value = strings.TrimPrefix(value, `"`)
	value = strings.TrimSuffix(value, `"`)
	return key, value, true
}

// Verify reconstructs the canonical object from r and checks p's signature
// against pub. selfName is this server's own canonical name: a missing
// destination field, or a destination that does not match selfName, is
// always an Unauthorized error, regardless of the signature.
func Verify(ctx context.Context, r Request, p Parsed, selfName string, pub cryptoutil.PublicKey) error {
	if ctx.Err() != nil {
		return rcerr.Wrap(rcerr.Cancelled, "federation.Verify", "verification cancelled", ctx.Err())
	}
	if p.Destination == "" {
		return rcerr.UnauthorizedErr("federation.Verify", "x-matrix-destination", "missing destination field")
	}
	if p.Destination != selfName {
		return rcerr.UnauthorizedErr("federation.Verify", "x-matrix-destination", "destination does not match this server")
	}

	canon, err := canonicalObject(Request{
		Method: r.Method, URI: r.URI, Origin: p.Origin, Destination: p.Destination, Content: r.Content,
	})
	if err != nil {
		return err
	}
	sig, err := cryptoutil.B64URLDecode(p.SigB64URL)
	if err != nil {
		return rcerr.Wrap(rcerr.InvalidSignature, "federation.Verify", "malformed signature encoding", err)
	}
	if !cryptoutil.Verify(pub, sig, canon) {
		return rcerr.UnauthorizedErr("federation.Verify", "x-matrix-signature", "signature does not match canonical request")
	}
	return nil
}
