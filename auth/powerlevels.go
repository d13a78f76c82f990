package auth

import "encoding/json"

// Defaults that apply when m.room.power_levels is absent or a field is
// missing from its content.
const (
	defaultUsersDefault  int64 = 0
	defaultEventsDefault int64 = 0
	defaultStateDefault  int64 = 50
	defaultBan           int64 = 50
	defaultKick          int64 = 50
	defaultRedact        int64 = 50
	defaultInvite        int64 = 0
	// creatorPower is the power level assumed for the room's creator when
	// no power-levels event exists yet.
	creatorPower int64 = 100
)

// PowerLevels is the parsed, defaulted view of an m.room.power_levels
// event's content.
type PowerLevels struct {
	UsersDefault  int64
	EventsDefault int64
	StateDefault  int64
	Ban           int64
	Kick          int64
	Redact        int64
	Invite        int64
	Events        map[string]int64
	Users         map[string]int64
	Notifications map[string]int64

	// creator is the room creator's identity, used as the fallback power
	// of 100 when no power-levels event exists at all.
	creator string
	present bool // whether an m.room.power_levels event was found
}

// ExtractPowerLevels reads s's m.room.power_levels event, applying
// defaults for missing fields; when no such event exists, the room's
// creator is assigned power 100 and everyone else 0. The creator is
// m.room.create's content.creator when that is a non-empty string, else the
// create event's sender; the room version is not consulted.
func ExtractPowerLevels(s State) PowerLevels {
	pl := PowerLevels{
		UsersDefault:  defaultUsersDefault,
		EventsDefault: defaultEventsDefault,
		StateDefault:  defaultStateDefault,
		Ban:           defaultBan,
		Kick:          defaultKick,
		Redact:        defaultRedact,
		Invite:        defaultInvite,
		Events:        map[string]int64{},
		Users:         map[string]int64{},
		Notifications: map[string]int64{},
	}

	if create := s.Create(); create != nil {
		pl.creator = create.Sender
		if c, ok := create.Content["creator"].(string); ok && c != "" {
			pl.creator = c
		}
	}

	ev := s.PowerLevelsEvent()
	if ev == nil {
		return pl
	}
	pl.present = true
	c := ev.Content

	pl.UsersDefault = intOr(c, "users_default", defaultUsersDefault)
	pl.EventsDefault = intOr(c, "events_default", defaultEventsDefault)
	pl.StateDefault = intOr(c, "state_default", defaultStateDefault)
	pl.Ban = intOr(c, "ban", defaultBan)
	pl.Kick = intOr(c, "kick", defaultKick)
	pl.Redact = intOr(c, "redact", defaultRedact)
	pl.Invite = intOr(c, "invite", defaultInvite)
	pl.Events = int64Map(c["events"])
	pl.Users = int64Map(c["users"])
	pl.Notifications = int64Map(c["notifications"])

	return pl
}

// Power returns userID's current power level.
func (pl PowerLevels) Power(userID string) int64 {
	if v, ok := pl.Users[userID]; ok {
		return v
	}
	if !pl.present {
		if userID == pl.creator && pl.creator != "" {
			return creatorPower
		}
		return 0
	}
	return pl.UsersDefault
}

// RequiredForState returns the power level required to send a state event
// of the given type.
func (pl PowerLevels) RequiredForState(eventType string) int64 {
	if v, ok := pl.Events[eventType]; ok {
		return v
	}
	return pl.StateDefault
}

// RequiredForMessage returns the power level required to send a
// non-state event of the given type.
func (pl PowerLevels) RequiredForMessage(eventType string) int64 {
	if v, ok := pl.Events[eventType]; ok {
		return v
	}
	return pl.EventsDefault
}

func intOr(content map[string]any, key string, def int64) int64 {
	v, ok := content[key]
	if !ok {
		return def
	}
	if i, ok := asInt64(v); ok {
		return i
	}
	return def
}

func int64Map(v any) map[string]int64 {
	out := map[string]int64{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, raw := range m {
		if i, ok := asInt64(raw); ok {
			out[k] = i
		}
	}
	return out
}

// asInt64 accepts the numeric representations that can appear in decoded
// JSON content: float64 (encoding/json default), json.Number, int, int64.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// isExactInteger reports whether v is an integer-valued JSON number with
// no fractional part; room versions with IntegerPowerLevels (v10+) reject
// anything else in a power-levels event.
func isExactInteger(v any) bool {
	switch n := v.(type) {
	case float64:
		return n == float64(int64(n))
	case int, int64:
		return true
	case json.Number:
		_, err := n.Int64()
		return err == nil
	default:
		return false
	}
}
