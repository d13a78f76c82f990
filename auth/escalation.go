package auth

import (
	"github.com/tos-network/roomcore/event"
	"github.com/tos-network/roomcore/rcerr"
	"github.com/tos-network/roomcore/roomversion"
)

const ruleEscalation = "power-level-escalation"

// checkPowerLevelsEscalation enforces that an m.room.power_levels
// event may never grant a level higher than the sender's own current
// power, may never touch a field whose current value already exceeds the
// sender's power, and may only change another user's existing entry if that
// entry is currently strictly below the sender's power.
func checkPowerLevelsEscalation(e *event.PDU, before PowerLevels, senderPower int64, b roomversion.Behavior) error {
	after := parsePowerLevelsContent(e.Content)

	if b.IntegerPowerLevels {
		if err := checkAllIntegers(e.Content); err != nil {
			return err
		}
	}

	scalarChecks := []struct {
		name        string
		beforeValue int64
		afterValue  int64
	}{
		{"ban", before.Ban, after.Ban},
		{"kick", before.Kick, after.Kick},
		{"redact", before.Redact, after.Redact},
		{"invite", before.Invite, after.Invite},
		{"state_default", before.StateDefault, after.StateDefault},
		{"events_default", before.EventsDefault, after.EventsDefault},
		{"users_default", before.UsersDefault, after.UsersDefault},
	}
	for _, c := range scalarChecks {
		if err := checkScalarField(c.name, c.beforeValue, c.afterValue, senderPower); err != nil {
			return err
		}
	}

	if err := checkMapField("events", before.Events, after.Events, senderPower, "", false); err != nil {
		return err
	}
	if err := checkMapField("notifications", before.Notifications, after.Notifications, senderPower, "", false); err != nil {
		return err
	}
	if err := checkMapField("users", before.Users, after.Users, senderPower, e.Sender, true); err != nil {
		return err
	}

	return nil
}

// checkScalarField enforces: the new value must never exceed the sender's
// power, and if the old value already exceeded the sender's power the
// field must stay unchanged.
func checkScalarField(name string, beforeValue, afterValue, senderPower int64) error {
	if afterValue > senderPower {
		return rcerr.UnauthorizedErr("auth.checkPowerLevelsEscalation", ruleEscalation, name+" exceeds sender power")
	}
	if beforeValue > senderPower && afterValue != beforeValue {
		return rcerr.UnauthorizedErr("auth.checkPowerLevelsEscalation", ruleEscalation, name+" is above sender power and was changed")
	}
	return nil
}

// checkMapField enforces the same scalar rule per-entry across a
// before/after map (events/notifications/users). For the users map,
// changing another user's entry additionally requires the OLD value to be
// strictly below the sender's power (isUsersMap == true); this extra
// restriction applies only when changing ANOTHER user's entry,
// so it is skipped for sender's own key (e.g. a creator legitimately
// lowering their own power after delegating admin).
func checkMapField(mapName string, before, after map[string]int64, senderPower int64, sender string, isUsersMap bool) error {
	seen := make(map[string]bool, len(before)+len(after))
	for k := range before {
		seen[k] = true
	}
	for k := range after {
		seen[k] = true
	}
	for key := range seen {
		beforeValue, hadBefore := before[key]
		afterValue, hasAfter := after[key]

		if afterValue > senderPower && hasAfter {
			return rcerr.UnauthorizedErr("auth.checkPowerLevelsEscalation", ruleEscalation, mapName+"."+key+" exceeds sender power")
		}
		if hadBefore && beforeValue > senderPower && beforeValue != afterValue {
			return rcerr.UnauthorizedErr("auth.checkPowerLevelsEscalation", ruleEscalation, mapName+"."+key+" is above sender power and was changed")
		}
		if isUsersMap && key != sender && hadBefore && afterValue != beforeValue {
			// Changing another user's power requires their OLD value to
			// be strictly below the sender's power.
			if beforeValue >= senderPower {
				return rcerr.UnauthorizedErr("auth.checkPowerLevelsEscalation", ruleEscalation, "cannot change "+mapName+"."+key+" at or above sender power")
			}
		}
	}
	return nil
}

// checkAllIntegers rejects non-integer-valued numeric fields, required by
// room versions with IntegerPowerLevels (v10+).
func checkAllIntegers(content map[string]any) error {
	scalarFields := []string{"ban", "kick", "redact", "invite", "state_default", "events_default", "users_default"}
	for _, f := range scalarFields {
		if v, ok := content[f]; ok && !isExactInteger(v) {
			return rcerr.UnauthorizedErr("auth.checkAllIntegers", ruleEscalation, f+" must be an integer in this room version")
		}
	}
	mapFields := []string{"events", "notifications", "users"}
	for _, f := range mapFields {
		m, ok := content[f].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range m {
			if !isExactInteger(v) {
				return rcerr.UnauthorizedErr("auth.checkAllIntegers", ruleEscalation, f+"."+k+" must be an integer in this room version")
			}
		}
	}
	return nil
}

// parsePowerLevelsContent parses an m.room.power_levels event's content
// directly (as opposed to ExtractPowerLevels, which looks the event up out
// of State) — used to compute the "after" side of the escalation check
// from the incoming event itself.
func parsePowerLevelsContent(content map[string]any) PowerLevels {
	pl := PowerLevels{
		UsersDefault:  defaultUsersDefault,
		EventsDefault: defaultEventsDefault,
		StateDefault:  defaultStateDefault,
		Ban:           defaultBan,
		Kick:          defaultKick,
		Redact:        defaultRedact,
		Invite:        defaultInvite,
	}
	pl.UsersDefault = intOr(content, "users_default", defaultUsersDefault)
	pl.EventsDefault = intOr(content, "events_default", defaultEventsDefault)
	pl.StateDefault = intOr(content, "state_default", defaultStateDefault)
	pl.Ban = intOr(content, "ban", defaultBan)
	pl.Kick = intOr(content, "kick", defaultKick)
	pl.Redact = intOr(content, "redact", defaultRedact)
	pl.Invite = intOr(content, "invite", defaultInvite)
	pl.Events = int64Map(content["events"])
	pl.Users = int64Map(content["users"])
	pl.Notifications = int64Map(content["notifications"])
	return pl
}
