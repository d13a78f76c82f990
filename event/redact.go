package event

import (
	"reflect"

	"github.com/tos-network/roomcore/roomversion"
)

// topLevelWhitelist is retained by every redact() regardless of room
// version.
var topLevelWhitelist = map[string]bool{
	"event_id":         true,
	"type":             true,
	"room_id":          true,
	"sender":           true,
	"state_key":        true,
	"hashes":           true,
	"signatures":       true,
	"depth":            true,
	"prev_events":      true,
	"auth_events":      true,
	"origin_server_ts": true,
}

// contentWhitelist maps event type to the content keys retained pre-v11.
var contentWhitelist = map[string][]string{
	"m.room.member":             {"membership", "join_authorised_via_users_server"},
	"m.room.create":             {"creator"},
	"m.room.join_rules":         {"join_rule", "allow"},
	"m.room.power_levels":       {"ban", "events", "events_default", "invite", "kick", "redact", "state_default", "users", "users_default"},
	"m.room.history_visibility": {"history_visibility"},
}

// v11ExtraContentWhitelist adds the additional retained content keys for
// room version 11+.
var v11ExtraContentWhitelist = map[string]string{
	"m.room.member":       "third_party_invite",
	"m.room.create":       "room_version",
	"m.room.power_levels": "notifications",
	"m.room.redaction":    "redacts",
}

// Redact returns a new PDU retaining only the whitelisted top-level keys
// and the per-event-type content whitelist for b's redaction rule set. The
// input PDU is never mutated.
func Redact(p *PDU, b roomversion.Behavior) *PDU {
	cp := p.clone()

	allowedContent := map[string]bool{}
	for _, k := range contentWhitelist[p.Type] {
		allowedContent[k] = true
	}
	if b.UpdatedRedactionKeyRetention {
		if extra, ok := v11ExtraContentWhitelist[p.Type]; ok {
			allowedContent[extra] = true
		}
	}

	newContent := make(map[string]any, len(allowedContent))
	for k := range allowedContent {
		if v, ok := cp.Content[k]; ok {
			newContent[k] = v
		}
	}
	cp.Content = newContent
	cp.Unsigned = nil
	return cp
}

// IsRedactionIdempotent reports Redact(Redact(e)) == Redact(e)
// content-wise. Exposed for tests and callers that want to assert the
// property on arbitrary input rather than trust it blindly.
func IsRedactionIdempotent(p *PDU, b roomversion.Behavior) bool {
	once := Redact(p, b)
	twice := Redact(once, b)
	if len(once.Content) != len(twice.Content) {
		return false
	}
	for k, v := range once.Content {
		if !reflect.DeepEqual(twice.Content[k], v) {
			return false
		}
	}
	return true
}
