package replica

import (
	"go.uber.org/zap"

	"github.com/Polqt/causalcrdt/compose"
	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/crdterr"
	"github.com/Polqt/causalcrdt/polog"
	"github.com/Polqt/causalcrdt/vclock"
)

// Replica drives one root CRDT through the TCSB send/receive protocol
// (spec §4.5). It owns its log, matrix clock, and delivery buffer
// exclusively — the scheduling model is single-threaded cooperative per
// replica (spec §5), so Replica is not safe for concurrent use; a caller
// juggling multiple replicas (e.g. in a test or demo) must serialize calls
// into each one itself.
type Replica struct {
	self      string
	selfIndex int
	table     *vclock.ReplicaTable
	mc        *vclock.MatrixClock
	prevLSV   vclock.VV
	lsvOwner  []int

	log  *polog.Log
	root crdt.PureCRDT

	buffer  []polog.Event
	wireBuf []Event // inbound Events parallel to buffer, returned by Buffered

	logger  *zap.Logger
	metrics *Metrics
}

// New returns a replica named self, seeded with initial membership (self
// must appear in it), driving root as the root CRDT. A nil logger installs
// a no-op logger rather than a package-global default, keeping "no global
// state" (spec §9 design notes).
func New(self string, membership []string, root crdt.PureCRDT, cfg polog.CompactionConfig, logger *zap.Logger) *Replica {
	if logger == nil {
		logger = zap.NewNop()
	}
	table := vclock.NewReplicaTable(membership)
	selfIdx, ok := table.IndexOf(self)
	if !ok {
		selfIdx = table.Add(self)
	}
	n := table.Len()
	r := &Replica{
		self:      self,
		selfIndex: selfIdx,
		table:     table,
		mc:        vclock.NewMatrixClock(n, selfIdx),
		prevLSV:   vclock.NewVV(n),
		lsvOwner:  make([]int, n),
		log:       polog.NewLog(cfg),
		root:      root,
		logger:    logger,
		metrics:   NewMetrics(),
	}
	for i := range r.lsvOwner {
		r.lsvOwner[i] = -1
	}
	return r
}

// Send prepares intent against the current causal state, stamps it, applies
// it locally, and returns the transport-ready event (spec §4.5 send path).
// The replica performs no I/O itself; the caller broadcasts the result.
func (r *Replica) Send(intent any) (Event, error) {
	op, err := r.root.Prepare(intent, r.log)
	if err != nil {
		return Event{}, err
	}

	r.mc.TickSelf()
	vv := r.mc.SelfRow().Clone()
	pe := polog.Event{Author: r.selfIndex, VV: vv, Op: op}

	if _, err := r.applyEffect(pe); err != nil {
		return Event{}, err
	}

	r.metrics.EventsSent.Inc()
	r.logger.Debug("sent", zap.String("replica", r.self), zap.Uint64("dot", vv[r.selfIndex]))
	return Event{Author: r.self, VV: r.toWireVV(vv), Op: op}, nil
}

// Receive processes an inbound wire event (spec §4.5 receive path / §6).
func (r *Replica) Receive(e Event) (Outcome, error) {
	// A membership-add event's own wire VV carries a column for the
	// replica it is announcing, whether that replica is the event's
	// author (a self-announced join) or a third party admitting someone
	// else. Either way the column must exist locally before fromWireVV
	// can decode it, so pre-admit it here rather than in applyEffect.
	if mop, ok := e.Op.(MembershipOp); ok && mop.Add {
		if _, known := r.table.IndexOf(mop.ReplicaID); !known {
			r.table.Add(mop.ReplicaID)
			r.mc.Grow(r.table.Len())
			r.growLSVBookkeeping()
		}
	}

	authorIdx, ok := r.table.IndexOf(e.Author)
	if !ok {
		err := &crdterr.MembershipMismatch{Want: r.table.Len(), Got: -1}
		r.logger.Warn("unknown author", zap.String("author", e.Author))
		return ProtocolFault, err
	}

	vv, err := r.fromWireVV(e.VV)
	if err != nil {
		r.logger.Warn("protocol fault decoding vv", zap.Error(err))
		return ProtocolFault, err
	}
	if len(vv) != r.table.Len() {
		err := &crdterr.MembershipMismatch{Want: r.table.Len(), Got: len(vv)}
		return ProtocolFault, err
	}

	dot := vv[authorIdx]
	if r.mc.Row(authorIdx)[authorIdx] >= dot {
		r.metrics.Duplicates.Inc()
		return Duplicate, nil
	}

	pe := polog.Event{Author: authorIdx, VV: vv, Op: e.Op}
	if !r.causallyReady(pe, authorIdx) {
		r.buffer = append(r.buffer, pe)
		r.wireBuf = append(r.wireBuf, e)
		r.metrics.Buffered.Set(float64(len(r.buffer)))
		r.logger.Debug("buffered", zap.String("author", e.Author))
		return Buffered, nil
	}

	if err := r.deliver(pe); err != nil {
		return ProtocolFault, err
	}
	r.drainBuffer()
	return Delivered, nil
}

// causallyReady implements spec §4.5 step 2: deliverable iff every other
// author's component is no newer than this replica's own knowledge of it,
// and the author's own component is exactly the next dot expected.
func (r *Replica) causallyReady(e polog.Event, authorIdx int) bool {
	self := r.mc.SelfRow()
	for i := 0; i < len(e.VV); i++ {
		if i == authorIdx {
			continue
		}
		bound := uint64(0)
		if i < len(self) {
			bound = self[i]
		}
		if e.VV[i] > bound {
			return false
		}
	}
	return e.VV[authorIdx] == r.mc.Row(authorIdx)[authorIdx]+1
}

// deliver merges the event's causal news into the matrix clock, applies its
// effect, and recomputes LSV, stabilizing anything newly dominated.
func (r *Replica) deliver(e polog.Event) error {
	authorIdx := e.Author
	r.mc.MergeRow(authorIdx, e.VV)
	r.mc.ObserveColumn(authorIdx, e.VV[authorIdx])

	if _, err := r.applyEffect(e); err != nil {
		r.logger.Warn("protocol fault on effect", zap.Error(err))
		return err
	}

	newLSV, newOwner := r.mc.LSVIncremental(r.prevLSV, r.lsvOwner, authorIdx)
	// ObserveColumn moved the self row too; rescan the columns it owned.
	newLSV, newOwner = r.mc.LSVIncremental(newLSV, newOwner, r.selfIndex)
	advanced := false
	for i := range newLSV {
		if i >= len(r.prevLSV) || newLSV[i] > r.prevLSV[i] {
			advanced = true
			break
		}
	}
	r.prevLSV = newLSV
	r.lsvOwner = newOwner

	if advanced {
		n := r.stabilizeAll(newLSV)
		if n > 0 {
			r.logger.Info("stabilized", zap.Int("count", n))
		}
		r.metrics.LastStabilizeCount.Set(float64(n))
	}
	r.metrics.EventsReceived.Inc()
	r.metrics.EdgeNodeRatio.Set(r.edgeNodeRatio())
	return nil
}

// drainBuffer repeatedly re-scans the delivery buffer for newly deliverable
// events (spec §4.5 step 6), looping until a full pass makes no progress.
func (r *Replica) drainBuffer() {
	for {
		progressed := false
		var stillBuffered []polog.Event
		var stillWire []Event
		for i, pe := range r.buffer {
			if r.causallyReady(pe, pe.Author) {
				if err := r.deliver(pe); err != nil {
					r.logger.Warn("buffered event faulted on delivery", zap.Error(err))
					continue
				}
				progressed = true
				continue
			}
			stillBuffered = append(stillBuffered, pe)
			stillWire = append(stillWire, r.wireBuf[i])
		}
		r.buffer = stillBuffered
		r.wireBuf = stillWire
		r.metrics.Buffered.Set(float64(len(r.buffer)))
		if !progressed {
			return
		}
	}
}

// applyEffect routes a polog.Event through the membership side channel, the
// composite-aware effect, or the default single-log effect, whichever
// applies (spec §4.3/§4.4/§12).
func (r *Replica) applyEffect(e polog.Event) (crdt.Outcome, error) {
	if mop, ok := e.Op.(MembershipOp); ok {
		r.applyMembershipOp(mop)
		if _, err := r.log.Attach(e); err != nil {
			return crdt.Applied, err
		}
		return crdt.Applied, nil
	}
	if composite, ok := r.root.(compose.Composite); ok {
		return compose.Apply(r.log, composite, e)
	}
	return crdt.Apply(r.log, r.root, e)
}

// stabilizeAll folds everything newly dominated by lsv into stable storage,
// across the root's own log and, if it is a Composite, every child log.
func (r *Replica) stabilizeAll(lsv []uint64) int {
	n := r.log.Stabilize(lsv, r.root.Stabilize)
	if composite, ok := r.root.(compose.Composite); ok {
		n += composite.StabilizeAll(lsv)
	}
	return n
}

// Query answers q against the replica's current causal state (spec §4.6).
func (r *Replica) Query(q crdt.Query) (any, error) {
	return r.root.Eval(q, r.log)
}

// StableVector returns the current Last Stable Vector (spec §6).
func (r *Replica) StableVector() vclock.VV { return r.prevLSV.Clone() }

// Self returns the replica's own symbolic identifier.
func (r *Replica) Self() string { return r.self }

// Membership returns the current membership in column order.
func (r *Replica) Membership() []string { return r.table.Members() }

// Metrics returns the replica's Prometheus instrument set, for an operator
// to scrape or a test to assert against.
func (r *Replica) Metrics() *Metrics { return r.metrics }

// Buffered returns the wire events currently held pending causal
// dependencies, in an unspecified order. Exposed for diagnostics and
// testing (spec §8 S4); the framework itself never expires them.
func (r *Replica) Buffered() []Event {
	out := make([]Event, len(r.wireBuf))
	copy(out, r.wireBuf)
	return out
}

func (r *Replica) edgeNodeRatio() float64 {
	nodes := r.log.Len()
	if nodes == 0 {
		return 0
	}
	return float64(r.log.EdgeCount()) / float64(nodes)
}

// toWireVV converts a dense local VV to the symbolic wire shape.
func (r *Replica) toWireVV(vv vclock.VV) []VVEntry {
	out := make([]VVEntry, 0, len(vv))
	for i, c := range vv {
		out = append(out, VVEntry{ReplicaID: r.table.ReplicaAt(i), Counter: c})
	}
	return out
}

// fromWireVV converts a symbolic wire VV back to this replica's own dense
// indexing (spec §12: index assignment is local, never shared), rebuilding
// a local VV of the replica's current membership size. An entry naming a
// replica id this replica has never heard of is a membership mismatch.
func (r *Replica) fromWireVV(entries []VVEntry) (vclock.VV, error) {
	out := vclock.NewVV(r.table.Len())
	for _, ent := range entries {
		idx, ok := r.table.IndexOf(ent.ReplicaID)
		if !ok {
			return nil, &crdterr.MembershipMismatch{Want: r.table.Len(), Got: -1}
		}
		out[idx] = ent.Counter
	}
	return out, nil
}
