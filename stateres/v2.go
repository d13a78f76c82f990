package stateres

import (
	"sort"

	"github.com/tos-network/roomcore/auth"
	"github.com/tos-network/roomcore/event"
	"github.com/tos-network/roomcore/roomversion"
)

// authEventTypes are the event types that make up another event's auth
// chain. Conflicts among these are resolved first, by reverse topological
// power ordering; everything else is resolved second, by mainline
// ordering against the winning power_levels.
var authEventTypes = map[string]bool{
	"m.room.create":             true,
	"m.room.power_levels":       true,
	"m.room.join_rules":         true,
	"m.room.member":             true,
	"m.room.third_party_invite": true,
}

// resolveV2 implements the iterative-auth-plus-mainline algorithm used by
// room versions 2 and later.
func resolveV2(in Input) (Result, error) {
	unconflicted, conflicted := partition(in.StateSets)

	authConflicted, otherConflicted := splitConflicted(conflicted)

	state := cloneState(unconflicted)
	var rejected []*event.PDU

	authOrder := reverseTopologicalPowerOrder(authConflicted, unconflicted, in.AuthChain)
	for _, e := range authOrder {
		tryApply(&state, e, in.RoomVersion, &rejected)
	}

	mainline := buildMainline(state, in.AuthChain)
	otherOrder := mainlineOrder(otherConflicted, mainline, state, in.AuthChain)

	// otherOrder is preference-descending: the first authorized candidate
	// claims its slot and later candidates for the same slot are ignored.
	claimed := map[event.StateTuple]bool{}
	for _, e := range otherOrder {
		tuple := e.Tuple()
		if claimed[tuple] {
			continue
		}
		if tryApply(&state, e, in.RoomVersion, &rejected) {
			claimed[tuple] = true
		}
	}

	return Result{Resolved: state, Rejected: rejected}, nil
}

// tryApply authorizes e against the current state and, if allowed, installs
// it into state. It reports whether e was applied.
func tryApply(state *auth.State, e *event.PDU, rv roomversion.Behavior, rejected *[]*event.PDU) bool {
	err := auth.Authorize(auth.Params{Event: e, State: *state, RoomVersion: rv})
	if err != nil {
		*rejected = append(*rejected, e)
		return false
	}
	*state = state.With(e.Type, *e.StateKey, e)
	return true
}

// partition splits the K state sets into the unconflicted map (every state
// set that carries the key agrees on the same event_id) and the conflicted
// map (candidates disagree). A key absent from some state sets and present
// in others is conflicted only if the present copies disagree; a key that
// only ever resolves to a single event_id across all sets that carry it is
// unconflicted even when some sets omit it.
func partition(sets []auth.State) (auth.State, map[event.StateTuple][]*event.PDU) {
	byTuple := map[event.StateTuple][]*event.PDU{}
	seen := map[event.StateTuple]map[string]*event.PDU{}
	for _, s := range sets {
		for tuple, pdu := range s {
			if seen[tuple] == nil {
				seen[tuple] = map[string]*event.PDU{}
			}
			if _, ok := seen[tuple][pdu.EventID]; !ok {
				seen[tuple][pdu.EventID] = pdu
				byTuple[tuple] = append(byTuple[tuple], pdu)
			}
		}
	}

	unconflicted := auth.State{}
	conflicted := map[event.StateTuple][]*event.PDU{}
	for tuple, candidates := range byTuple {
		if len(candidates) == 1 {
			unconflicted[tuple] = candidates[0]
			continue
		}
		conflicted[tuple] = candidates
	}
	return unconflicted, conflicted
}

// splitConflicted separates the conflicted set into auth-chain event types
// (resolved first) and everything else.
func splitConflicted(conflicted map[event.StateTuple][]*event.PDU) ([]*event.PDU, []*event.PDU) {
	var authSet, otherSet []*event.PDU
	for tuple, candidates := range conflicted {
		if authEventTypes[tuple.Type] {
			authSet = append(authSet, candidates...)
		} else {
			otherSet = append(otherSet, candidates...)
		}
	}
	return authSet, otherSet
}

// reverseTopologicalPowerOrder orders events so that an event's own
// auth-chain ancestors (among the candidate set) always precede it. Among
// the events whose ancestors have all been emitted, the next pick is by
// descending sender power (as of the unconflicted state), ascending
// origin_server_ts, then ascending event_id — a total order, so the
// result never depends on the caller's iteration order.
func reverseTopologicalPowerOrder(events []*event.PDU, unconflicted auth.State, authChain map[string]*event.PDU) []*event.PDU {
	pl := auth.ExtractPowerLevels(unconflicted)
	power := make(map[string]int64, len(events))
	byID := make(map[string]*event.PDU, len(events))
	for _, e := range events {
		power[e.EventID] = pl.Power(e.Sender)
		byID[e.EventID] = e
	}

	ancestor := func(e *event.PDU) map[string]bool {
		visited := map[string]bool{}
		var walk func(id string)
		walk = func(id string) {
			p := authChain[id]
			if p == nil {
				return
			}
			for _, a := range p.AuthEvents {
				if visited[a] {
					continue
				}
				visited[a] = true
				walk(a)
			}
		}
		for _, a := range e.AuthEvents {
			visited[a] = true
			walk(a)
		}
		return visited
	}

	// Edges run ancestor -> descendant, restricted to the candidate set.
	indegree := make(map[string]int, len(events))
	children := make(map[string][]string, len(events))
	for _, e := range events {
		indegree[e.EventID] = 0
	}
	for _, e := range events {
		for anc := range ancestor(e) {
			if _, candidate := indegree[anc]; candidate && anc != e.EventID {
				children[anc] = append(children[anc], e.EventID)
				indegree[e.EventID]++
			}
		}
	}

	pickBefore := func(a, b *event.PDU) bool {
		if power[a.EventID] != power[b.EventID] {
			return power[a.EventID] > power[b.EventID]
		}
		if a.OriginServerTS != b.OriginServerTS {
			return a.OriginServerTS < b.OriginServerTS
		}
		return a.EventID < b.EventID
	}

	var ready []*event.PDU
	for _, e := range events {
		if indegree[e.EventID] == 0 {
			ready = append(ready, e)
		}
	}

	ordered := make([]*event.PDU, 0, len(events))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if pickBefore(ready[i], ready[best]) {
				best = i
			}
		}
		next := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		ordered = append(ordered, next)
		for _, childID := range children[next.EventID] {
			indegree[childID]--
			if indegree[childID] == 0 {
				ready = append(ready, byID[childID])
			}
		}
	}

	// An auth-chain cycle cannot occur for honestly-derived event IDs, but
	// a malicious batch must still resolve deterministically: append any
	// remainder in the plain power order.
	if len(ordered) < len(events) {
		emitted := make(map[string]bool, len(ordered))
		for _, e := range ordered {
			emitted[e.EventID] = true
		}
		var rest []*event.PDU
		for _, e := range events {
			if !emitted[e.EventID] {
				rest = append(rest, e)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return pickBefore(rest[i], rest[j]) })
		ordered = append(ordered, rest...)
	}
	return ordered
}

// buildMainline walks state's current power_levels event back through its
// own auth-chain ancestry, collecting every power_levels event it finds
// along the way. mainline[0] is the current power_levels event;
// mainline[i+1] is the nearest power_levels ancestor of mainline[i].
func buildMainline(state auth.State, authChain map[string]*event.PDU) []*event.PDU {
	pl := state.PowerLevelsEvent()
	if pl == nil {
		return nil
	}

	var mainline []*event.PDU
	visited := map[string]bool{}
	cur := pl
	for cur != nil && !visited[cur.EventID] {
		mainline = append(mainline, cur)
		visited[cur.EventID] = true
		cur = nearestPowerLevelsAncestor(cur, authChain)
	}
	return mainline
}

// nearestPowerLevelsAncestor breadth-walks e's auth_events looking for the
// closest ancestor of type m.room.power_levels.
func nearestPowerLevelsAncestor(e *event.PDU, authChain map[string]*event.PDU) *event.PDU {
	queue := append([]string(nil), e.AuthEvents...)
	visited := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		p := authChain[id]
		if p == nil {
			continue
		}
		if p.Type == "m.room.power_levels" && p.StateKey != nil && *p.StateKey == "" {
			return p
		}
		queue = append(queue, p.AuthEvents...)
	}
	return nil
}

// mainlineOrder sorts events preference-descending: by position in
// mainline (nearer the head, i.e. the newest power_levels, sorts first;
// events whose auth chain never reaches the mainline are maximally
// distant, position = len(mainline)), then sender power descending as of
// the resolved-so-far state, then origin_server_ts ascending, then
// event_id ascending. The comparator is total, so the result never
// depends on the caller's iteration order.
func mainlineOrder(events []*event.PDU, mainline []*event.PDU, state auth.State, authChain map[string]*event.PDU) []*event.PDU {
	mainlineIndex := make(map[string]int, len(mainline))
	for i, p := range mainline {
		mainlineIndex[p.EventID] = i
	}

	pl := auth.ExtractPowerLevels(state)
	position := make(map[string]int, len(events))
	power := make(map[string]int64, len(events))
	for _, e := range events {
		position[e.EventID] = mainlinePosition(e, mainlineIndex, authChain)
		power[e.EventID] = pl.Power(e.Sender)
	}

	ordered := append([]*event.PDU(nil), events...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if position[a.EventID] != position[b.EventID] {
			return position[a.EventID] < position[b.EventID]
		}
		if power[a.EventID] != power[b.EventID] {
			return power[a.EventID] > power[b.EventID]
		}
		if a.OriginServerTS != b.OriginServerTS {
			return a.OriginServerTS < b.OriginServerTS
		}
		return a.EventID < b.EventID
	})
	return ordered
}

// mainlinePosition walks e's nearest power_levels ancestor chain until it
// finds one present in mainlineIndex, returning that index. An event whose
// chain never reaches the mainline sorts after every event that does.
func mainlinePosition(e *event.PDU, mainlineIndex map[string]int, authChain map[string]*event.PDU) int {
	cur := nearestPowerLevelsAncestor(e, authChain)
	visited := map[string]bool{}
	for cur != nil && !visited[cur.EventID] {
		if idx, ok := mainlineIndex[cur.EventID]; ok {
			return idx
		}
		visited[cur.EventID] = true
		cur = nearestPowerLevelsAncestor(cur, authChain)
	}
	return len(mainlineIndex)
}
