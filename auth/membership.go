package auth

import (
	"github.com/tos-network/roomcore/event"
	"github.com/tos-network/roomcore/rcerr"
	"github.com/tos-network/roomcore/roomversion"
)

const ruleMembership = "membership"

// checkMembership is the dedicated state machine over
// (sender_membership, target_membership, join_rule, sender_power,
// target_power) for m.room.member events.
func checkMembership(e *event.PDU, s State, b roomversion.Behavior) error {
	targetID := *e.StateKey
	newMembership, _ := e.Content["membership"].(string)
	if newMembership == "" {
		return rcerr.UnauthorizedErr("auth.checkMembership", ruleMembership, "missing content.membership")
	}

	pl := ExtractPowerLevels(s)
	senderPower := pl.Power(e.Sender)
	targetPower := pl.Power(targetID)
	senderMembership := s.Membership(e.Sender)
	targetMembership := s.Membership(targetID)
	joinRule := currentJoinRule(s)

	switch newMembership {
	case "join":
		return checkJoin(e, s, b, targetID, senderMembership, targetMembership, joinRule, pl, senderPower)
	case "invite":
		return checkInvite(e, senderMembership, targetMembership, senderPower, pl)
	case "leave":
		if e.Sender == targetID {
			return checkLeaveSelf(senderMembership, b)
		}
		return checkLeaveOther(senderMembership, targetMembership, senderPower, targetPower, pl)
	case "ban":
		return checkBan(senderMembership, senderPower, targetPower, pl)
	case "knock":
		return checkKnock(e, targetID, senderMembership, joinRule, b)
	default:
		return rcerr.UnauthorizedErr("auth.checkMembership", ruleMembership, "unknown membership value "+newMembership)
	}
}

func checkJoin(
	e *event.PDU, s State, b roomversion.Behavior,
	targetID, senderMembership, targetMembership, joinRule string,
	pl PowerLevels, senderPower int64,
) error {
	if e.Sender != targetID {
		return rcerr.UnauthorizedErr("auth.checkJoin", ruleMembership, "sender must equal state_key for a join")
	}
	if senderMembership == "join" {
		return nil // profile update
	}
	if senderMembership == "invite" {
		return nil
	}
	if joinRule == "public" {
		return nil
	}
	if (joinRule == "restricted" || (b.KnockRestricted && joinRule == "knock_restricted")) && b.RestrictedJoins {
		authorizer, _ := e.Content["join_authorised_via_users_server"].(string)
		if authorizer == "" {
			return rcerr.UnauthorizedErr("auth.checkJoin", ruleMembership, "restricted join missing join_authorised_via_users_server")
		}
		if s.Membership(authorizer) != "join" {
			return rcerr.UnauthorizedErr("auth.checkJoin", ruleMembership, "join_authorised_via_users_server is not joined")
		}
		if pl.Power(authorizer) < pl.Invite {
			return rcerr.UnauthorizedErr("auth.checkJoin", ruleMembership, "join_authorised_via_users_server lacks invite power")
		}
		return nil
	}
	return rcerr.UnauthorizedErr("auth.checkJoin", ruleMembership, "join_rule does not permit this join")
}

func checkInvite(e *event.PDU, senderMembership, targetMembership string, senderPower int64, pl PowerLevels) error {
	if senderMembership != "join" {
		return rcerr.UnauthorizedErr("auth.checkInvite", ruleMembership, "sender is not joined")
	}
	if targetMembership == "ban" {
		return rcerr.UnauthorizedErr("auth.checkInvite", ruleMembership, "target is banned")
	}
	if targetMembership == "join" {
		return rcerr.UnauthorizedErr("auth.checkInvite", ruleMembership, "target is already joined")
	}
	if senderPower < pl.Invite {
		return rcerr.UnauthorizedErr("auth.checkInvite", ruleMembership, "sender lacks invite power")
	}
	return nil
}

func checkLeaveSelf(senderMembership string, b roomversion.Behavior) error {
	switch senderMembership {
	case "join", "invite":
		return nil
	case "knock":
		if b.KnockingSupported {
			return nil
		}
	}
	return rcerr.UnauthorizedErr("auth.checkLeaveSelf", ruleMembership, "not currently joined, invited, or knocking")
}

func checkLeaveOther(senderMembership, targetMembership string, senderPower, targetPower int64, pl PowerLevels) error {
	if senderMembership != "join" {
		return rcerr.UnauthorizedErr("auth.checkLeaveOther", ruleMembership, "sender is not joined")
	}
	required := pl.Kick
	if targetMembership == "ban" {
		required = pl.Ban
	}
	if senderPower < required {
		return rcerr.UnauthorizedErr("auth.checkLeaveOther", ruleMembership, "sender lacks kick/ban power")
	}
	if senderPower <= targetPower {
		return rcerr.UnauthorizedErr("auth.checkLeaveOther", ruleMembership, "sender power must strictly exceed target power")
	}
	return nil
}

func checkBan(senderMembership string, senderPower, targetPower int64, pl PowerLevels) error {
	if senderMembership != "join" {
		return rcerr.UnauthorizedErr("auth.checkBan", ruleMembership, "sender is not joined")
	}
	if senderPower < pl.Ban {
		return rcerr.UnauthorizedErr("auth.checkBan", ruleMembership, "sender lacks ban power")
	}
	if senderPower <= targetPower {
		return rcerr.UnauthorizedErr("auth.checkBan", ruleMembership, "sender power must strictly exceed target power")
	}
	return nil
}

func checkKnock(e *event.PDU, targetID, senderMembership, joinRule string, b roomversion.Behavior) error {
	if !b.KnockingSupported {
		return rcerr.UnauthorizedErr("auth.checkKnock", ruleMembership, "room version does not support knocking")
	}
	if e.Sender != targetID {
		return rcerr.UnauthorizedErr("auth.checkKnock", ruleMembership, "sender must equal state_key for a knock")
	}
	if joinRule != "knock" && !(b.KnockRestricted && joinRule == "knock_restricted") {
		return rcerr.UnauthorizedErr("auth.checkKnock", ruleMembership, "join_rule does not permit knocking")
	}
	if senderMembership == "ban" || senderMembership == "join" {
		return rcerr.UnauthorizedErr("auth.checkKnock", ruleMembership, "sender is banned or already joined")
	}
	return nil
}

func currentJoinRule(s State) string {
	ev := s.JoinRulesEvent()
	if ev == nil {
		return "invite" // Matrix's implicit default when no join_rules event exists.
	}
	rule, _ := ev.Content["join_rule"].(string)
	if rule == "" {
		return "invite"
	}
	return rule
}
