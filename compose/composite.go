package compose

import (
	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/polog"
)

// Composite is implemented by a nested CRDT whose operations route to a
// child log instead of the default single-log effect (spec §4.4). Its own
// PureCRDT.Redundant/SelfRedundant/Stabilize/Eval govern composite-level
// operations that live in its own log (e.g. an update-wins map's Remove);
// Route and ChildLog handle addressed operations that skip the composite's
// own log and go straight to the targeted child.
type Composite interface {
	crdt.PureCRDT

	// Route reports the child address op targets and the unwrapped payload
	// to hand that child, or ok=false if op is a composite-level operation
	// with no child (it stays in the composite's own log instead).
	Route(op any) (addr Address, childOp any, ok bool)

	// ChildLog returns the CRDT and log for the child at addr, creating
	// both on first use.
	ChildLog(addr Address) (child crdt.PureCRDT, log *polog.Log)

	// EffectAcrossChildren runs any cross-log consequence a composite-level
	// event has beyond the default single-log effect on the composite's
	// own log — e.g. an update-wins map's Remove(k) must drop every entry
	// in k's child log that it causally dominates (spec §4.4 "scoped
	// causal cuts"), while leaving concurrent entries alone. A composite
	// with no such consequence implements this as a no-op.
	EffectAcrossChildren(e polog.Event)

	// StabilizeAll recurses stabilization into every live child log (and,
	// for a child that is itself a Composite, into its own children),
	// using the same LSV the replica computed for the whole replica. It
	// returns the total number of events stabilized across every child log
	// touched, not counting the composite's own log (the caller invokes
	// the composite's own log's Stabilize separately; StabilizeAll only
	// covers the children it owns).
	StabilizeAll(lsv []uint64) int
}

// Apply is the composite-aware effect(): it replaces crdt.Apply as the
// entry point a replica uses when its active CRDT is a Composite. Routed
// operations are applied against the targeted child's log (recursing if
// the child is itself a Composite); composite-level operations use the
// default single-log effect against the composite's own log, followed by
// EffectAcrossChildren for any cross-log consequence.
func Apply(ownLog *polog.Log, c Composite, e polog.Event) (crdt.Outcome, error) {
	addr, childOp, routed := c.Route(e.Op)
	if !routed {
		outcome, err := crdt.Apply(ownLog, c, e)
		if err != nil {
			return outcome, err
		}
		c.EffectAcrossChildren(e)
		return outcome, nil
	}

	// A routed op also clears any composite-level tombstone it makes
	// redundant (e.g. an update obsoleting a stale remove of the same
	// key) without itself entering the composite's own log.
	var toDrop []polog.EventID
	ownLog.IterUnstable(func(existing polog.Event) {
		if c.Redundant(e, existing, ownLog) {
			toDrop = append(toDrop, existing.ID())
		}
	})
	for _, id := range toDrop {
		ownLog.Drop(id)
	}

	child, childLog := c.ChildLog(addr)
	childEvent := polog.Event{Author: e.Author, VV: e.VV, Op: childOp}
	if grandchild, ok := child.(Composite); ok {
		return Apply(childLog, grandchild, childEvent)
	}
	return crdt.Apply(childLog, child, childEvent)
}
