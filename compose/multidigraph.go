package compose

import "github.com/Polqt/causalcrdt/crdt"

// NewMultiDigraph composes a two-field Record — "nodes" and "edges", each an
// UW-Map — into a directed multigraph (spec §4.4's composition examples):
// nodes and edges are independently addressable keys, each update-wins
// against a concurrent removal of the same node or edge. Edge identity is a
// caller concern (e.g. a "from|label|to" key), and nothing here enforces
// that an edge's endpoints exist — the framework specifies a CRDT by its
// operations and redundancy predicate, not by a referential-integrity
// catalog, so that check belongs to whoever builds edge keys.
func NewMultiDigraph(newNode, newEdge func() crdt.PureCRDT) *Record {
	return NewRecord(map[string]func() crdt.PureCRDT{
		"nodes": func() crdt.PureCRDT { return NewUWMap(newNode) },
		"edges": func() crdt.PureCRDT { return NewUWMap(newEdge) },
	})
}
