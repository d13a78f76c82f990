// Package roomversion is the static registry of per-room-version behavior:
// event-ID format, redaction rule set, state-resolution algorithm, and the
// handful of boolean feature flags (knocking, restricted joins, integer
// power levels, ...) that differ across "1" through "12".
//
// The table is a plain slice of records, no inheritance: a new room
// version adds a row.
package roomversion

import "github.com/tos-network/roomcore/rcerr"

// StateResAlgorithm selects which state-resolution algorithm a room
// version uses.
type StateResAlgorithm uint8

const (
	StateResV1 StateResAlgorithm = iota + 1
	StateResV2
)

// EventIDFormat selects how event IDs are derived.
type EventIDFormat uint8

const (
	// EventIDAssigned means the event_id is chosen by the originating
	// server and embedded in the PDU; it is never recomputed (room v1-v2).
	EventIDAssigned EventIDFormat = iota + 1
	// EventIDSHA256NoSigil is base64url(sha256(canonical(redact(pdu)))),
	// padding stripped, no leading "$" (room v3).
	EventIDSHA256NoSigil
	// EventIDSHA256Sigil is the same digest with a leading "$" (room v4+).
	EventIDSHA256Sigil
)

// RedactionRuleSet selects which content-key whitelist redact() applies.
type RedactionRuleSet uint8

const (
	RedactionV1  RedactionRuleSet = iota + 1 // rooms < 11
	RedactionV11                             // rooms >= 11
)

// Behavior describes one room version's behavioral contract.
type Behavior struct {
	Version string

	StateRes           StateResAlgorithm
	EventIDFormat      EventIDFormat
	RedactionRuleSet   RedactionRuleSet
	KnockingSupported  bool // v7+
	RestrictedJoins    bool // v8+
	KnockRestricted    bool // v10+
	IntegerPowerLevels bool // v10+
	// UpdatedRedactionKeyRetention marks v11+, where redact() additionally
	// keeps third_party_invite/room_version/notifications/redacts.
	UpdatedRedactionKeyRetention bool
}

// table is ordered by version for readability; lookup is by map, not index.
var table = []Behavior{
	{Version: "1", StateRes: StateResV1, EventIDFormat: EventIDAssigned, RedactionRuleSet: RedactionV1},
	{Version: "2", StateRes: StateResV2, EventIDFormat: EventIDAssigned, RedactionRuleSet: RedactionV1},
	{Version: "3", StateRes: StateResV2, EventIDFormat: EventIDSHA256NoSigil, RedactionRuleSet: RedactionV1},
	{Version: "4", StateRes: StateResV2, EventIDFormat: EventIDSHA256Sigil, RedactionRuleSet: RedactionV1},
	{Version: "5", StateRes: StateResV2, EventIDFormat: EventIDSHA256Sigil, RedactionRuleSet: RedactionV1},
	{Version: "6", StateRes: StateResV2, EventIDFormat: EventIDSHA256Sigil, RedactionRuleSet: RedactionV1},
	{Version: "7", StateRes: StateResV2, EventIDFormat: EventIDSHA256Sigil, RedactionRuleSet: RedactionV1, KnockingSupported: true},
	{Version: "8", StateRes: StateResV2, EventIDFormat: EventIDSHA256Sigil, RedactionRuleSet: RedactionV1, KnockingSupported: true, RestrictedJoins: true},
	{Version: "9", StateRes: StateResV2, EventIDFormat: EventIDSHA256Sigil, RedactionRuleSet: RedactionV1, KnockingSupported: true, RestrictedJoins: true},
	{
		Version: "10", StateRes: StateResV2, EventIDFormat: EventIDSHA256Sigil, RedactionRuleSet: RedactionV1,
		KnockingSupported: true, RestrictedJoins: true, KnockRestricted: true, IntegerPowerLevels: true,
	},
	{
		Version: "11", StateRes: StateResV2, EventIDFormat: EventIDSHA256Sigil, RedactionRuleSet: RedactionV11,
		KnockingSupported: true, RestrictedJoins: true, KnockRestricted: true, IntegerPowerLevels: true,
		UpdatedRedactionKeyRetention: true,
	},
	{
		Version: "12", StateRes: StateResV2, EventIDFormat: EventIDSHA256Sigil, RedactionRuleSet: RedactionV11,
		KnockingSupported: true, RestrictedJoins: true, KnockRestricted: true, IntegerPowerLevels: true,
		UpdatedRedactionKeyRetention: true,
	},
}

var byVersion = func() map[string]Behavior {
	m := make(map[string]Behavior, len(table))
	for _, b := range table {
		m[b.Version] = b
	}
	return m
}()

// Lookup returns the behavior record for version, or an
// UnsupportedRoomVersion error.
func Lookup(version string) (Behavior, error) {
	b, ok := byVersion[version]
	if !ok {
		return Behavior{}, rcerr.New(rcerr.UnsupportedRoomVersion, "roomversion.Lookup", "unknown room version "+version)
	}
	return b, nil
}

// Supported lists every known room version string, in ascending order.
func Supported() []string {
	out := make([]string, len(table))
	for i, b := range table {
		out[i] = b.Version
	}
	return out
}
