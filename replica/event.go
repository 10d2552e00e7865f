// Package replica implements the Tagged Causal Stable Broadcast layer
// (spec §4.5, C5): outbound tagging, inbound causal-readiness buffering,
// duplicate detection, LSV tracking, and membership changes, driving a
// root crdt.PureCRDT (or compose.Composite) through its prepare/effect/
// stabilize lifecycle. It is the only public surface of the core (spec §6).
package replica

// VVEntry is one (replica_id, counter) pair in the wire-shape version
// vector (spec §6). Replica ids are symbolic here, never a sender's local
// dense column index — those are assigned independently per replica and
// have no meaning off that replica (spec §12), so an event must carry
// enough information for any receiver to rebuild its own indexing.
type VVEntry struct {
	ReplicaID string
	Counter   uint64
}

// Event is the TCSB wire event (spec §6): `{ author, vv, op }`. Addressing
// into a nested composite is part of Op, which the core treats as opaque.
type Event struct {
	Author string
	VV     []VVEntry
	Op     any
}

// Outcome classifies what Receive did with an incoming event (spec §6/§7).
type Outcome int

const (
	// Delivered means the event was causally ready, applied, and any
	// newly stable events were folded and discarded.
	Delivered Outcome = iota
	// Buffered means the event is not yet causally ready; it is held
	// until its dependencies arrive. Transparent to the caller under the
	// framework's only policy (spec §7: "transparent ... on the default
	// policy" — no explicit mode is implemented).
	Buffered
	// Duplicate means the event's (author, dot) has already been
	// observed; Receive is idempotent under redelivery.
	Duplicate
	// ProtocolFault means the event was rejected: a malformed or
	// impossible version vector, a duplicate dot with a different
	// payload, or a VV dimension that disagrees with current membership.
	// The error return carries the classified crdterr value.
	ProtocolFault
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "Delivered"
	case Buffered:
		return "Buffered"
	case Duplicate:
		return "Duplicate"
	case ProtocolFault:
		return "ProtocolFault"
	default:
		return "Unknown"
	}
}
