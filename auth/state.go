package auth

import (
	"github.com/tos-network/roomcore/event"
)

// State is the subset of room state used to check one event: a mapping
// from (type, state_key) to the PDU currently occupying that slot. It is
// always a plain value, never mutated in place — callers build a new State
// per event they want to check.
type State map[event.StateTuple]*event.PDU

// Get returns the event at (eventType, stateKey), or nil if absent.
func (s State) Get(eventType, stateKey string) *event.PDU {
	return s[event.StateTuple{Type: eventType, StateKey: stateKey}]
}

// Create returns the room's m.room.create event, or nil.
func (s State) Create() *event.PDU { return s.Get("m.room.create", "") }

// PowerLevelsEvent returns the room's m.room.power_levels event, or nil.
func (s State) PowerLevelsEvent() *event.PDU { return s.Get("m.room.power_levels", "") }

// JoinRulesEvent returns the room's m.room.join_rules event, or nil.
func (s State) JoinRulesEvent() *event.PDU { return s.Get("m.room.join_rules", "") }

// Member returns userID's current m.room.member event, or nil if they have
// never had a membership event in this state.
func (s State) Member(userID string) *event.PDU { return s.Get("m.room.member", userID) }

// Membership returns userID's current membership. A user never seen in
// the room defaults to "leave".
func (s State) Membership(userID string) string {
	m := s.Member(userID)
	if m == nil {
		return "leave"
	}
	ms, _ := m.Content["membership"].(string)
	if ms == "" {
		return "leave"
	}
	return ms
}

// With returns a copy of s with (eventType, stateKey) set to p, leaving s
// itself unmodified — state is pure, it is never mutated in place.
func (s State) With(eventType, stateKey string, p *event.PDU) State {
	out := make(State, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[event.StateTuple{Type: eventType, StateKey: stateKey}] = p
	return out
}
