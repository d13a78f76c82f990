package event

import (
	"fmt"

	"github.com/tos-network/roomcore/rcerr"
)

// Map renders the PDU as the full wire-format JSON object (all fields
// present when set), suitable for transmission or for
// cryptoutil.SignJSON/VerifyJSON.
func (p *PDU) Map() map[string]any {
	return p.toCanonicalMap(true, true, true, true)
}

// FromMap parses a raw wire-format PDU object back into a *PDU. Unknown
// top-level keys are accepted and ignored (future room versions may add
// fields this core doesn't know about yet); required fields missing is an
// InvalidEvent error.
func FromMap(m map[string]any) (*PDU, error) {
	p := &PDU{Content: map[string]any{}}

	var err error
	if p.RoomID, err = reqString(m, "room_id"); err != nil {
		return nil, err
	}
	if p.Sender, err = reqString(m, "sender"); err != nil {
		return nil, err
	}
	if p.Type, err = reqString(m, "type"); err != nil {
		return nil, err
	}
	if sk, ok := m["state_key"]; ok {
		s, ok := sk.(string)
		if !ok {
			return nil, rcerr.New(rcerr.InvalidEvent, "event.FromMap", "state_key must be a string")
		}
		p.StateKey = &s
	}
	if c, ok := m["content"]; ok {
		cm, ok := c.(map[string]any)
		if !ok {
			return nil, rcerr.New(rcerr.InvalidEvent, "event.FromMap", "content must be an object")
		}
		p.Content = cm
	}
	if ts, ok := numberField(m, "origin_server_ts"); ok {
		p.OriginServerTS = ts
	}
	if d, ok := numberField(m, "depth"); ok {
		p.Depth = d
	}
	if pe, ok := m["prev_events"]; ok {
		s, err := stringSlice(pe)
		if err != nil {
			return nil, rcerr.Wrap(rcerr.InvalidEvent, "event.FromMap", "prev_events", err)
		}
		p.PrevEvents = s
	}
	if ae, ok := m["auth_events"]; ok {
		s, err := stringSlice(ae)
		if err != nil {
			return nil, rcerr.Wrap(rcerr.InvalidEvent, "event.FromMap", "auth_events", err)
		}
		p.AuthEvents = s
	}
	if h, ok := m["hashes"]; ok {
		hm, err := stringMap(h)
		if err != nil {
			return nil, rcerr.Wrap(rcerr.InvalidEvent, "event.FromMap", "hashes", err)
		}
		p.Hashes = hm
	}
	if s, ok := m["signatures"]; ok {
		sm, ok := s.(map[string]any)
		if !ok {
			return nil, rcerr.New(rcerr.InvalidEvent, "event.FromMap", "signatures must be an object")
		}
		p.Signatures = make(map[string]map[string]string, len(sm))
		for server, keys := range sm {
			km, err := stringMap(keys)
			if err != nil {
				return nil, rcerr.Wrap(rcerr.InvalidEvent, "event.FromMap", "signatures."+server, err)
			}
			p.Signatures[server] = km
		}
	}
	if u, ok := m["unsigned"]; ok {
		um, ok := u.(map[string]any)
		if !ok {
			return nil, rcerr.New(rcerr.InvalidEvent, "event.FromMap", "unsigned must be an object")
		}
		p.Unsigned = um
	}
	if eid, ok := m["event_id"]; ok {
		s, ok := eid.(string)
		if !ok {
			return nil, rcerr.New(rcerr.InvalidEvent, "event.FromMap", "event_id must be a string")
		}
		p.EventID = s
	}
	return p, nil
}

func reqString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", rcerr.New(rcerr.InvalidEvent, "event.FromMap", "missing required field "+key)
	}
	s, ok := v.(string)
	if !ok {
		return "", rcerr.New(rcerr.InvalidEvent, "event.FromMap", key+" must be a string")
	}
	return s, nil
}

// numberField tolerates json.Number, float64 and int64 since canonicaljson
// decodes numbers as json.Number but hand-built test fixtures commonly use
// Go int/float64 literals directly.
func numberField(m map[string]any, key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case fmt.Stringer:
		var i int64
		if _, err := fmt.Sscanf(n.String(), "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

func stringSlice(v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss, nil
		}
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("expected string element, got %T", e)
		}
		out[i] = s
	}
	return out, nil
}

func stringMap(v any) (map[string]string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string value for %q, got %T", k, val)
		}
		out[k] = s
	}
	return out, nil
}

// TopLevelKeys reports which of the redaction-whitelisted top-level keys
// are present in a raw wire map; used by collaborators that want to
// sanity-check a PDU before constructing one (e.g. a transport layer
// rejecting payloads with no recognizable PDU shape at all).
func TopLevelKeys(m map[string]any) []string {
	out := make([]string, 0, len(topLevelWhitelist))
	for k := range topLevelWhitelist {
		if _, ok := m[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
