package compose

import (
	"fmt"
	"sort"

	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/crdterr"
	"github.com/Polqt/causalcrdt/polog"
	"github.com/Polqt/causalcrdt/vclock"
)

// PutIntent addresses a caller intent at the child CRDT living at Key,
// creating that child on first use.
type PutIntent struct {
	Key         string
	ChildIntent any
}

// RemoveIntent deletes Key, update-wins against any concurrent Put.
type RemoveIntent struct{ Key string }

// AtOp is the wire payload for a routed child operation.
type AtOp struct {
	Key     string
	ChildOp any
}

// RemoveOp is the composite-level tombstone payload; it lives in the map's
// own log, never in a child log.
type RemoveOp struct{ Key string }

// ContainsKeyQuery asks whether Key currently holds a value.
type ContainsKeyQuery struct {
	crdt.QueryBase
	Key string
}

// KeysQuery asks for every key currently present.
type KeysQuery struct{ crdt.QueryBase }

// AtQuery forwards Query to the child CRDT living at Key.
type AtQuery struct {
	crdt.QueryBase
	Key   string
	Query crdt.Query
}

type uwChild struct {
	crdtVal        crdt.PureCRDT
	log            *polog.Log
	everStabilized bool
}

// UWMap is an update-wins map (spec §4.4, scenario S3): a key removed
// concurrently with an update to its child survives, because Remove only
// drops child-log entries it causally observed, never concurrent ones. A
// key that has ever folded stable content into its child is treated as
// permanently live — full tombstoning of already-stabilized content is a
// documented simplification (see DESIGN.md), consistent with spec §9's own
// resolution that stable storage is monotonic per type.
type UWMap struct {
	crdt.NoSelfRedundancy
	newChild func() crdt.PureCRDT
	children map[string]*uwChild
	everSeen map[string]bool // key has ever had a Put routed to it
}

// NewUWMap returns an empty update-wins map whose children are created by
// newChild on first reference to a key.
func NewUWMap(newChild func() crdt.PureCRDT) *UWMap {
	return &UWMap{
		newChild: newChild,
		children: make(map[string]*uwChild),
		everSeen: make(map[string]bool),
	}
}

func (m *UWMap) Prepare(intent any, _ *polog.Log) (any, error) {
	switch in := intent.(type) {
	case PutIntent:
		child, childLog := m.child(in.Key)
		childOp, err := child.crdtVal.Prepare(in.ChildIntent, childLog)
		if err != nil {
			return nil, err
		}
		return AtOp{Key: in.Key, ChildOp: childOp}, nil
	case RemoveIntent:
		return RemoveOp{Key: in.Key}, nil
	default:
		return nil, fmt.Errorf("compose: UWMap.Prepare: unsupported intent %T", intent)
	}
}

// Redundant is r(new, e) evaluated against the map's own log: a new
// Remove(k) obsoletes a prior Remove(k); a new At(k,...) — routed, so it
// never enters this log itself, but compose.Apply still runs this check —
// unconditionally obsoletes a prior Remove(k), clearing the tombstone so
// the key is no longer considered removed once an update arrives for it.
func (m *UWMap) Redundant(newEvent, existing polog.Event, _ *polog.Log) bool {
	existingRemove, ok := existing.Op.(RemoveOp)
	if !ok {
		return false
	}
	switch n := newEvent.Op.(type) {
	case RemoveOp:
		return n.Key == existingRemove.Key
	case AtOp:
		return n.Key == existingRemove.Key
	}
	return false
}

func (m *UWMap) Policy() crdt.Policy { return crdt.Policy{} }

// Stabilize folds a stabilized composite-level Remove: the key is dropped
// from bookkeeping only if it is no longer present — its child log holds no
// entry that survived the remove's scoped cut and it never accumulated any
// stable content (see the type doc comment).
func (m *UWMap) Stabilize(e polog.Event) {
	rem, ok := e.Op.(RemoveOp)
	if !ok {
		return
	}
	if !m.present(rem.Key, nil) {
		delete(m.everSeen, rem.Key)
		delete(m.children, rem.Key)
	}
}

// EffectAcrossChildren implements the scoped causal cut for Remove: every
// entry in Key's child log whose VV is dominated by the remove's VV
// causally happened-before it and is dropped; concurrent entries survive
// (spec §4.4).
func (m *UWMap) EffectAcrossChildren(e polog.Event) {
	rem, ok := e.Op.(RemoveOp)
	if !ok {
		return
	}
	child, exists := m.children[rem.Key]
	if !exists {
		return
	}
	var toDrop []polog.EventID
	child.log.IterUnstable(func(ce polog.Event) {
		if vclock.LessOrEqualPadded(ce.VV, e.VV) {
			toDrop = append(toDrop, ce.ID())
		}
	})
	for _, id := range toDrop {
		child.log.Drop(id)
	}
}

// Route sends AtOp to its key's child; RemoveOp stays composite-level.
func (m *UWMap) Route(op any) (Address, any, bool) {
	if at, ok := op.(AtOp); ok {
		return Address{at.Key}, at.ChildOp, true
	}
	return nil, nil, false
}

// ChildLog returns the child CRDT and log at addr, creating both on first
// reference.
func (m *UWMap) ChildLog(addr Address) (crdt.PureCRDT, *polog.Log) {
	key, _, ok := addr.Head()
	if !ok {
		return nil, nil
	}
	c, _ := m.child(key)
	return c.crdtVal, c.log
}

func (m *UWMap) child(key string) (*uwChild, bool) {
	if c, ok := m.children[key]; ok {
		return c, false
	}
	c := &uwChild{crdtVal: m.newChild(), log: polog.NewLog(polog.DefaultCompactionConfig())}
	m.children[key] = c
	m.everSeen[key] = true
	return c, true
}

// StabilizeAll recurses stabilization into every live child log.
func (m *UWMap) StabilizeAll(lsv []uint64) int {
	total := 0
	for _, c := range m.children {
		n := c.log.Stabilize(lsv, c.crdtVal.Stabilize)
		if n > 0 {
			c.everStabilized = true
		}
		total += n
		if nested, ok := c.crdtVal.(Composite); ok {
			total += nested.StabilizeAll(lsv)
		}
	}
	return total
}

func (m *UWMap) hasStableContent(key string) bool {
	c, ok := m.children[key]
	if !ok {
		return false
	}
	_, isComposite := c.crdtVal.(Composite)
	if isComposite {
		return true // a nested composite's own children may hold stable content
	}
	// Leaf CRDTs expose no generic "has stable content" probe; a present
	// key whose child log has gone empty due to stabilization (not
	// removal) is treated conservatively as still holding content. This
	// mirrors the type's monotonic-stable-storage decision above.
	return c.everStabilized
}

func (m *UWMap) Eval(q crdt.Query, log *polog.Log) (any, error) {
	switch query := q.(type) {
	case ContainsKeyQuery:
		return m.present(query.Key, log), nil
	case KeysQuery:
		out := make([]string, 0, len(m.everSeen))
		for k := range m.everSeen {
			if m.present(k, log) {
				out = append(out, k)
			}
		}
		sort.Strings(out)
		return out, nil
	case AtQuery:
		c, ok := m.children[query.Key]
		if !ok {
			return nil, &crdterr.QueryDomainError{Address: query.Key}
		}
		return c.crdtVal.Eval(query.Query, c.log)
	default:
		return nil, fmt.Errorf("compose: UWMap.Eval: unsupported query %T", q)
	}
}

// present reports whether key currently holds a value: EffectAcrossChildren
// has already pruned exactly the child-log entries a Remove causally
// dominated, so whatever remains there (or was ever stabilized) is, by
// construction, content that survived every remove it wasn't concurrent
// with — the map's own log's Remove record itself carries no further
// liveness information once that pruning has run.
func (m *UWMap) present(key string, _ *polog.Log) bool {
	c, ok := m.children[key]
	if !ok {
		return false
	}
	return c.log.Len() > 0 || m.hasStableContent(key)
}
