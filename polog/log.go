package polog

import (
	"sort"

	"github.com/Polqt/causalcrdt/crdterr"
)

// StabilizeHook is invoked once per event as it leaves the unstable graph
// because it has fallen under the last stable vector. The hook folds the
// event into whatever stable structure the owning CRDT keeps; it must not
// block (spec §5).
type StabilizeHook func(Event)

// Log is a partially-ordered event graph for one CRDT (or one nested
// child — see package compose). It is not safe for concurrent use: the
// framework's scheduling model is single-threaded cooperative per replica
// (spec §5), so the log relies on its caller for mutual exclusion.
type Log struct {
	nodes map[EventID]*node

	// byAuthor[i] holds the dots attached so far for author i, in
	// ascending order. Per-author FIFO (enforced upstream by dot
	// monotonicity) means this is always append-only at the tail.
	byAuthor map[int][]uint64

	compaction compactionState
	lastStable []Event // diagnostics buffer for iter_stable(); replaced on every Stabilize call
}

// NewLog returns an empty log configured with the given compaction policy.
func NewLog(cfg CompactionConfig) *Log {
	return &Log{
		nodes:      make(map[EventID]*node),
		byAuthor:   make(map[int][]uint64),
		compaction: newCompactionState(cfg),
	}
}

// Len returns the number of events currently in the unstable graph.
func (l *Log) Len() int { return len(l.nodes) }

// EdgeCount returns the total number of predecessor edges currently in the
// graph, the numerator of the edges/nodes compaction ratio (spec §8 S6,
// §9 guidance figure).
func (l *Log) EdgeCount() int {
	n := 0
	for _, nd := range l.nodes {
		n += len(nd.parents)
	}
	return n
}

// Has reports whether id is currently present in the graph.
func (l *Log) Has(id EventID) bool {
	_, ok := l.nodes[id]
	return ok
}

// Get returns the event stored at id.
func (l *Log) Get(id EventID) (Event, bool) {
	n, ok := l.nodes[id]
	if !ok {
		return Event{}, false
	}
	return n.event, true
}

// Predecessors returns id's immediate causal predecessors present in the
// graph (spec §4.2). The returned slice is a copy.
func (l *Log) Predecessors(id EventID) []EventID {
	n, ok := l.nodes[id]
	if !ok {
		return nil
	}
	out := make([]EventID, len(n.parents))
	copy(out, n.parents)
	return out
}

// Successors returns the events that named id as an immediate predecessor.
func (l *Log) Successors(id EventID) []EventID {
	n, ok := l.nodes[id]
	if !ok {
		return nil
	}
	out := make([]EventID, len(n.children))
	copy(out, n.children)
	return out
}

// IsAncestor reports whether a is reachable from b by following predecessor
// edges — i.e. whether a causally precedes b according to the graph
// (spec §8 graph soundness: this must agree with VV comparison for any pair
// still present).
func (l *Log) IsAncestor(a, b EventID) bool {
	if a == b {
		return false
	}
	visited := map[EventID]bool{b: true}
	queue := []EventID{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n, ok := l.nodes[cur]
		if !ok {
			continue
		}
		for _, p := range n.parents {
			if p == a {
				return true
			}
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}

// IterUnstable calls fn for every event currently in the graph. Iteration
// order is unspecified; fn must not mutate the log.
func (l *Log) IterUnstable(fn func(Event)) {
	for _, n := range l.nodes {
		fn(n.event)
	}
}

// IterStable calls fn for every event folded into stable storage by the
// most recent Stabilize call. The log itself retains no permanent stable
// storage — that lives in the CRDT's own structure (spec §3) — this is a
// short-lived diagnostic view over the last stabilization batch, useful for
// tests and for a CRDT that wants to double-check what it just absorbed.
func (l *Log) IterStable(fn func(Event)) {
	for _, e := range l.lastStable {
		fn(e)
	}
}

// Attach inserts event into the graph, computing its immediate predecessors
// via the closest-predecessor-per-author search and 1-hop pruning (spec
// §4.2). It returns the final predecessor set. Re-attaching an id already
// present with an identical payload is idempotent and returns the
// previously computed predecessors; attaching the same id with a different
// payload is a protocol fault.
func (l *Log) Attach(e Event) ([]EventID, error) {
	id := e.ID()
	if id.Dot == 0 {
		return nil, crdterr.NewProtocolFault("event from author %d carries a zero dot", e.Author)
	}
	if existing, ok := l.nodes[id]; ok {
		if !opsEqual(existing.event.Op, e.Op) {
			return nil, crdterr.NewProtocolFault("duplicate dot %s with different payload", id)
		}
		return append([]EventID(nil), existing.parents...), nil
	}
	if dots := l.byAuthor[e.Author]; len(dots) > 0 && dots[len(dots)-1] >= id.Dot {
		return nil, crdterr.NewProtocolFault("non-monotonic dot %s: author's log already at %d", id, dots[len(dots)-1])
	}

	candidates := make(map[EventID]bool)
	for i := 0; i < len(e.VV); i++ {
		target := e.VV[i]
		if target == 0 {
			continue
		}
		dot, ok := l.closestPredecessorDot(i, target)
		if ok {
			candidates[EventID{Author: i, Dot: dot}] = true
		}
	}

	// 1-hop pruning: drop any candidate that is itself an immediate
	// predecessor of another candidate — it is already reachable in one
	// hop once the edge to that other candidate is added.
	redundant := make(map[EventID]bool)
	for x := range candidates {
		xn := l.nodes[x]
		if xn == nil {
			continue
		}
		for _, p := range xn.parents {
			if candidates[p] {
				redundant[p] = true
			}
		}
	}
	for r := range redundant {
		delete(candidates, r)
	}

	parents := make([]EventID, 0, len(candidates))
	for c := range candidates {
		parents = append(parents, c)
	}
	sort.Slice(parents, func(i, j int) bool {
		if parents[i].Author != parents[j].Author {
			return parents[i].Author < parents[j].Author
		}
		return parents[i].Dot < parents[j].Dot
	})

	depth := 0
	for _, p := range parents {
		if pn := l.nodes[p]; pn != nil && pn.depth+1 > depth {
			depth = pn.depth + 1
		}
	}

	n := &node{event: e, parents: parents, depth: depth}
	l.nodes[id] = n
	l.byAuthor[e.Author] = append(l.byAuthor[e.Author], id.Dot)
	for _, p := range parents {
		if pn := l.nodes[p]; pn != nil {
			pn.children = append(pn.children, id)
		}
	}

	l.compaction.recordAttach(id, len(parents))
	if l.compaction.shouldCompact(len(l.nodes)) {
		l.compactSince(l.compaction.checkpointIndex)
	}

	return parents, nil
}

// closestPredecessorDot performs the per-author binary search: the largest
// dot attached for author that does not exceed target. ok is false if
// author has no events in the log at all, or none at or below target.
func (l *Log) closestPredecessorDot(author int, target uint64) (dot uint64, ok bool) {
	dots := l.byAuthor[author]
	if len(dots) == 0 {
		return 0, false
	}
	// dots is sorted ascending; find the rightmost value <= target.
	i := sort.Search(len(dots), func(i int) bool { return dots[i] > target })
	if i == 0 {
		return 0, false
	}
	return dots[i-1], true
}

// Drop removes id from the graph — used both by redundancy predicates (a
// new event obsoletes an old one) and internally by Stabilize. Removal
// detaches edges in both directions; surviving successors are not rewired
// to id's own parents; per spec §4.2 this is sound because a dropped event
// is, by construction, either absorbed into stable state (Stabilize) or
// superseded by a new event already recorded as a predecessor of everything
// that mattered (redundancy).
func (l *Log) Drop(id EventID) {
	n, ok := l.nodes[id]
	if !ok {
		return
	}
	for _, p := range n.parents {
		if pn := l.nodes[p]; pn != nil {
			pn.children = removeID(pn.children, id)
		}
	}
	for _, c := range n.children {
		if cn := l.nodes[c]; cn != nil {
			cn.parents = removeID(cn.parents, id)
		}
	}
	delete(l.nodes, id)
	l.byAuthor[id.Author] = removeDot(l.byAuthor[id.Author], id.Dot)
}

// Stabilize removes every event dominated-or-equal by lsv from the graph,
// invoking hook on each before removal so the owning CRDT can fold it into
// stable storage (spec §4.2). Events are folded in an order consistent with
// causal order — a parent's hook call always happens before any of its
// children's — because a CRDT's Stabilize hook folds events one at a time
// and, for types like AW-Set whose stable storage is order-sensitive (an
// add folded after its causally later remove must not resurrect the
// value), processing children first would silently reorder history. It
// returns the number of events stabilized.
func (l *Log) Stabilize(lsv []uint64, hook StabilizeHook) int {
	var toRemove []EventID
	remove := make(map[EventID]bool)
	for id, n := range l.nodes {
		if dominatedOrEqual(n.event.VV, lsv) {
			toRemove = append(toRemove, id)
			remove[id] = true
		}
	}

	ordered := l.topoOrder(toRemove, remove)
	stable := make([]Event, 0, len(ordered))
	for _, id := range ordered {
		ev := l.nodes[id].event
		if hook != nil {
			hook(ev)
		}
		stable = append(stable, ev)
		l.Drop(id)
	}
	l.lastStable = stable
	return len(ordered)
}

// topoOrder returns ids sorted so that every parent edge still inside the
// removal set is emitted before its child (Kahn's algorithm restricted to
// the removal set). Ties are broken by (author, dot) for determinism.
func (l *Log) topoOrder(ids []EventID, inSet map[EventID]bool) []EventID {
	indegree := make(map[EventID]int, len(ids))
	for _, id := range ids {
		n := l.nodes[id]
		deg := 0
		for _, p := range n.parents {
			if inSet[p] {
				deg++
			}
		}
		indegree[id] = deg
	}

	var ready []EventID
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sortIDs(ready)

	out := make([]EventID, 0, len(ids))
	for len(ready) > 0 {
		sortIDs(ready)
		cur := ready[0]
		ready = ready[1:]
		out = append(out, cur)
		for _, c := range l.nodes[cur].children {
			if !inSet[c] {
				continue
			}
			indegree[c]--
			if indegree[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	return out
}

func sortIDs(ids []EventID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Author != ids[j].Author {
			return ids[i].Author < ids[j].Author
		}
		return ids[i].Dot < ids[j].Dot
	})
}

func dominatedOrEqual(vv []uint64, lsv []uint64) bool {
	n := len(vv)
	if len(lsv) < n {
		n = len(lsv)
	}
	for i := 0; i < n; i++ {
		if vv[i] > lsv[i] {
			return false
		}
	}
	// Any extra entries in vv beyond len(lsv) are columns the LSV doesn't
	// know about yet (brand-new membership); such an event cannot be
	// stable.
	return len(vv) <= len(lsv)
}

func removeID(s []EventID, id EventID) []EventID {
	for i, v := range s {
		if v == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func removeDot(s []uint64, dot uint64) []uint64 {
	for i, v := range s {
		if v == dot {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// opsEqual compares two opaque operation payloads for the duplicate-dot
// check. Concrete CRDT payloads are expected to be comparable structs or to
// implement comparable; for anything else this falls back to pointer-ish
// equality semantics of ==, which is sufficient because legitimate
// redelivery always carries the exact same Go value the author produced.
func opsEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			// a or b holds a non-comparable dynamic type (e.g. a slice or
			// map payload); such payloads can't alias across a genuine
			// redelivery by value equality, so treat them as distinct.
			eq = false
		}
	}()
	return a == b
}
