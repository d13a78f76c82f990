// Package stateres merges divergent room-state branches into a single
// resolved state, dispatching between the depth-order v1 algorithm (room
// v1 only) and the iterative-auth-plus-mainline v2 algorithm (room v2+).
//
// State resolution is a pure function of its inputs: no I/O, no
// process-wide state, safe to call from any number of concurrent workers.
package stateres

import (
	"github.com/tos-network/roomcore/auth"
	"github.com/tos-network/roomcore/event"
	"github.com/tos-network/roomcore/rcerr"
	"github.com/tos-network/roomcore/roomversion"
)

// Input bundles the K divergent state sets being merged plus the
// transitive auth-event corpus needed to walk mainlines during v2
// resolution.
type Input struct {
	// StateSets are the K state sets from K parent branches. A state
	// resolution over a single set (or two identical sets) must be a
	// no-op.
	StateSets []auth.State

	// AuthChain is every event reachable via auth_events from any event
	// in StateSets, keyed by event ID. Needed only by v2's mainline step;
	// v1 resolution ignores it.
	AuthChain map[string]*event.PDU

	RoomVersion roomversion.Behavior
}

// Result is the resolved state plus whatever conflicted events were
// rejected by the authorization gate along the way (they remain in the
// event store for the operator to inspect, but are absent from Resolved).
type Result struct {
	Resolved auth.State
	Rejected []*event.PDU
}

// Resolve merges Input.StateSets per the algorithm Input.RoomVersion
// selects.
func Resolve(in Input) (Result, error) {
	switch in.RoomVersion.StateRes {
	case roomversion.StateResV1:
		return resolveV1(in)
	case roomversion.StateResV2:
		return resolveV2(in)
	default:
		return Result{}, rcerr.New(rcerr.InvalidEvent, "stateres.Resolve", "room version has no state-resolution algorithm assigned")
	}
}

// ResolveIncremental handles the common case of a single new state event
// conflicting with exactly one current slot. It is equivalent to calling
// Resolve with the full state-set list — every other slot is present in
// only one of the two sets and is therefore trivially unconflicted — but
// avoids building K full state sets when the caller already knows only one
// slot is in dispute.
func ResolveIncremental(current auth.State, tuple event.StateTuple, candidate *event.PDU, authChain map[string]*event.PDU, rv roomversion.Behavior) (Result, error) {
	other := auth.State{tuple: candidate}
	return Resolve(Input{
		StateSets:   []auth.State{current, other},
		AuthChain:   authChain,
		RoomVersion: rv,
	})
}

func cloneState(s auth.State) auth.State {
	out := make(auth.State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
