// Package auth decides whether one event is allowed given the room state
// its auth_events name. Rules are applied in order and the first failing
// rule wins; the result never depends on anything outside the auth events
// in Params.State.
package auth

import (
	"github.com/tos-network/roomcore/event"
	"github.com/tos-network/roomcore/rcerr"
	"github.com/tos-network/roomcore/roomversion"
)

// Params bundles everything Authorize needs to check one event. State must
// already contain the auth events relevant to the event being checked —
// callers (or stateres) are responsible for resolving e.AuthEvents down to
// this map before calling Authorize.
type Params struct {
	Event       *event.PDU
	State       State
	RoomVersion roomversion.Behavior

	// RedactsSenderMatch is true when Event is a redaction and the sender
	// of the event it redacts equals Event.Sender. The core never
	// resolves the "redacts" reference itself — the caller supplies this
	// fact by comparing senders of the two events.
	RedactsSenderMatch bool
}

// Authorize returns nil if p.Event is allowed given p.State, or an
// *rcerr.Error (Kind Unauthorized, naming the failing Rule; or Kind
// InvalidEvent for structural problems) otherwise.
func Authorize(p Params) error {
	e := p.Event
	if e == nil {
		return rcerr.New(rcerr.InvalidEvent, "auth.Authorize", "nil event")
	}

	if e.Type == "m.room.create" {
		return checkCreate(e)
	}

	// Every non-create event needs a valid create event in its auth state.
	create := p.State.Create()
	if create == nil {
		return rcerr.UnauthorizedErr("auth.Authorize", "create", "no m.room.create in auth state")
	}

	if e.Type == "m.room.member" {
		if e.StateKey == nil {
			return rcerr.New(rcerr.InvalidEvent, "auth.Authorize", "m.room.member must be a state event")
		}
		return checkMembership(e, p.State, p.RoomVersion)
	}

	// Sender must currently be joined for any other event type, except for
	// the room's first m.room.power_levels event: while the auth state holds
	// none, only the creator has the power the state check below requires.
	bootstrapPowerLevels := e.Type == "m.room.power_levels" && p.State.PowerLevelsEvent() == nil
	if !bootstrapPowerLevels && p.State.Membership(e.Sender) != "join" {
		return rcerr.UnauthorizedErr("auth.Authorize", "sender-joined", "sender is not currently joined")
	}

	pl := ExtractPowerLevels(p.State)
	senderPower := pl.Power(e.Sender)

	if e.Type == "m.room.third_party_invite" {
		if senderPower < pl.Invite {
			return rcerr.UnauthorizedErr("auth.Authorize", "third-party-invite", "sender lacks invite power")
		}
	}

	// Required power level depends on whether the event is state.
	if e.IsState() {
		required := pl.RequiredForState(e.Type)
		if senderPower < required {
			return rcerr.UnauthorizedErr("auth.Authorize", "state-power", "sender power too low for state event")
		}
	} else {
		required := pl.RequiredForMessage(e.Type)
		if senderPower < required {
			return rcerr.UnauthorizedErr("auth.Authorize", "message-power", "sender power too low for message event")
		}
	}

	if e.Type == "m.room.power_levels" {
		if err := checkPowerLevelsEscalation(e, pl, senderPower, p.RoomVersion); err != nil {
			return err
		}
	}

	// Redaction power check, waived for self-redaction.
	if e.Type == "m.room.redaction" && !p.RedactsSenderMatch {
		if senderPower < pl.Redact {
			return rcerr.UnauthorizedErr("auth.Authorize", "redact-power", "sender lacks redact power")
		}
	}

	return nil
}

func checkCreate(e *event.PDU) error {
	if len(e.PrevEvents) != 0 {
		return rcerr.UnauthorizedErr("auth.checkCreate", "create", "m.room.create must have no prev_events")
	}
	if e.StateKey == nil || *e.StateKey != "" {
		return rcerr.UnauthorizedErr("auth.checkCreate", "create", `m.room.create must have state_key ""`)
	}
	_, hasCreator := e.Content["creator"]
	_, hasRoomVersion := e.Content["room_version"]
	if !hasCreator && !hasRoomVersion {
		return rcerr.UnauthorizedErr("auth.checkCreate", "create", "m.room.create content must have creator or room_version")
	}
	return nil
}
