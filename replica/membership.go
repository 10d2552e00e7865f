package replica

import (
	"go.uber.org/zap"

	"github.com/Polqt/causalcrdt/polog"
)

// MembershipOp is the reserved root-log payload for a reconfiguration
// (spec §4.5, §12 supplement): modeled as an ordinary addressed operation
// rather than a side channel, so it goes through the same attach/causal-
// order bookkeeping as any domain event, keeping "no special-cased control
// path" from the design notes. It never reaches a CRDT's own Redundant/
// Stabilize logic with meaning attached — those only type-switch on the
// Op types they know, so an unrecognized MembershipOp sailing past them in
// the shared log is inert by construction.
type MembershipOp struct {
	Add       bool
	ReplicaID string
}

// MembershipUpdate adds or retires a replica (spec §6 membership_update,
// §4.5): adding extends the version-vector/matrix-clock dimension; removal
// retires the column to infinity (vclock.MatrixClock.Retire) rather than
// shrinking it, since every already-stamped VV in the log still indexes
// into that column. The change is stamped and attached to the root log
// like any other event so FIFO/causal ordering against it is preserved,
// then returned for the caller to broadcast. An addition grows the column
// before stamping; a removal is stamped before the column is retired, so
// the outgoing VV carries the retired replica's last known counter.
func (r *Replica) MembershipUpdate(add bool, id string) (Event, error) {
	if add {
		r.applyMembershipOp(MembershipOp{Add: add, ReplicaID: id})
	}

	r.mc.TickSelf()
	vv := r.mc.SelfRow().Clone()
	pe := polog.Event{Author: r.selfIndex, VV: vv, Op: MembershipOp{Add: add, ReplicaID: id}}
	if _, err := r.log.Attach(pe); err != nil {
		return Event{}, err
	}
	if !add {
		r.applyMembershipOp(MembershipOp{Add: add, ReplicaID: id})
	}

	r.logger.Info("membership update sent", zap.Bool("add", add), zap.String("replica", id))
	return Event{Author: r.self, VV: r.toWireVV(vv), Op: MembershipOp{Add: add, ReplicaID: id}}, nil
}

// applyMembershipOp performs the actual membership-table/matrix-clock
// mutation. Growth is idempotent (vclock.ReplicaTable.Add is a no-op for an
// already-known id); retirement on an unknown id is a no-op, since there is
// nothing to retire.
func (r *Replica) applyMembershipOp(op MembershipOp) {
	if op.Add {
		r.table.Add(op.ReplicaID)
		r.mc.Grow(r.table.Len())
		r.growLSVBookkeeping()
		return
	}
	if idx, ok := r.table.IndexOf(op.ReplicaID); ok {
		r.mc.Retire(idx)
	}
}

// growLSVBookkeeping extends prevLSV/lsvOwner to the table's current size
// after membership grows, so LSVIncremental has a slot for the new column.
// New columns start at the minimum possible value (Retire uses max-uint64,
// a fresh join uses zero), with no known owner, forcing a full rescan of
// that column on its first incremental update.
func (r *Replica) growLSVBookkeeping() {
	n := r.table.Len()
	for len(r.prevLSV) < n {
		r.prevLSV = append(r.prevLSV, 0)
	}
	for len(r.lsvOwner) < n {
		r.lsvOwner = append(r.lsvOwner, -1)
	}
}
