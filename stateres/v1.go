package stateres

import (
	"github.com/tos-network/roomcore/auth"
	"github.com/tos-network/roomcore/event"
)

// resolveV1 implements the room-v1 algorithm: for each conflicting
// slot, pick the event with the greatest depth; tiebreak by event_id
// ascending.
func resolveV1(in Input) (Result, error) {
	byTuple := map[event.StateTuple][]*event.PDU{}
	for _, s := range in.StateSets {
		for tuple, pdu := range s {
			byTuple[tuple] = append(byTuple[tuple], pdu)
		}
	}

	resolved := make(auth.State, len(byTuple))
	for tuple, candidates := range byTuple {
		resolved[tuple] = pickDeepest(candidates)
	}

	return Result{Resolved: resolved}, nil
}

// pickDeepest returns the candidate with the greatest Depth, tiebreaking
// on the lexicographically smallest event_id. Candidates that are the same
// event (by ID) appearing in multiple sets do not affect the outcome.
func pickDeepest(candidates []*event.PDU) *event.PDU {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Depth > best.Depth {
			best = c
			continue
		}
		if c.Depth == best.Depth && c.EventID < best.EventID {
			best = c
		}
	}
	return best
}
