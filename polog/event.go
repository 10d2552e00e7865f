// Package polog implements the partially-ordered event-graph log: a DAG
// approximating the transitive reduction of causal order, with efficient
// attach and query (spec §4.2). It knows nothing about what an operation
// means — that is the pure-CRDT contract's job (package crdt) — only how
// events relate to each other in time.
package polog

import (
	"fmt"

	"github.com/Polqt/causalcrdt/vclock"
)

// EventID uniquely identifies an event by its author and the dot (the
// author's own counter) it carries.
type EventID struct {
	Author int
	Dot    uint64
}

func (id EventID) String() string { return fmt.Sprintf("%d@%d", id.Author, id.Dot) }

// Event is an author-stamped, version-vector-stamped operation (spec §3).
// Op is the opaque payload a concrete CRDT interprets; the log never
// inspects it beyond equality checks for duplicate detection.
type Event struct {
	Author int
	VV     vclock.VV
	Op     any
}

// ID returns the event's identity: (author, vv[author]).
func (e Event) ID() EventID {
	return EventID{Author: e.Author, Dot: e.VV[e.Author]}
}

// node is the internal graph representation: a flat record referencing its
// neighbors by id rather than by pointer, per the "flat pool with index
// edges" design note — it keeps the DAG free of shared-ownership cycles.
type node struct {
	event    Event
	parents  []EventID
	children []EventID
	depth    int // 1 + max(parent depth); 0 for a root with no in-graph parents
}
