package compose

import (
	"fmt"
	"sort"

	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/polog"
)

// SeqElementID names a sequence element by the id of the event that
// inserted it.
type SeqElementID = polog.EventID

// seqHead is the anchor every first element in the sequence inserts after;
// it is never a real event id, so no inserted element can collide with it.
var seqHead = SeqElementID{}

// SeqInsertIntent inserts Value immediately after After, or at the head if
// After is the zero value.
type SeqInsertIntent struct {
	After SeqElementID
	Value string
}

// SeqRemoveIntent tombstones the element inserted by Target.
type SeqRemoveIntent struct{ Target SeqElementID }

type SeqInsertOp struct {
	After SeqElementID
	Value string
}
type SeqRemoveOp struct{ Target SeqElementID }

// SeqValuesQuery returns the sequence's current linearization.
type SeqValuesQuery struct{ crdt.QueryBase }

// Sequence is a flat RGA-style causal tree (spec §4.4): every insert names
// the element it follows, concurrent inserts after the same anchor are
// ordered deterministically by descending (author, dot) so every replica
// linearizes them identically, and a remove tombstones without deleting,
// so later concurrent inserts still have a stable anchor to attach to.
// Unlike UW-Map or Record it has no children to route to — it is a leaf
// CRDT living entirely in its own single log.
type Sequence struct {
	crdt.NoSelfRedundancy
	stable []polog.Event
}

func NewSequence() *Sequence { return &Sequence{} }

func (s *Sequence) Prepare(intent any, _ *polog.Log) (any, error) {
	switch in := intent.(type) {
	case SeqInsertIntent:
		return SeqInsertOp{After: in.After, Value: in.Value}, nil
	case SeqRemoveIntent:
		return SeqRemoveOp{Target: in.Target}, nil
	default:
		return nil, fmt.Errorf("compose: Sequence.Prepare: unsupported intent %T", intent)
	}
}

// Redundant collapses a repeated remove of the same target to one entry;
// inserts are never redundant against one another, since each is a
// distinct element.
func (s *Sequence) Redundant(newEvent, existing polog.Event, _ *polog.Log) bool {
	n, ok := newEvent.Op.(SeqRemoveOp)
	if !ok {
		return false
	}
	o, ok := existing.Op.(SeqRemoveOp)
	return ok && o.Target == n.Target
}

func (s *Sequence) Policy() crdt.Policy { return crdt.Policy{} }

func (s *Sequence) Stabilize(e polog.Event) {
	s.stable = append(s.stable, e)
}

func (s *Sequence) Eval(q crdt.Query, log *polog.Log) (any, error) {
	if _, ok := q.(SeqValuesQuery); !ok {
		return nil, fmt.Errorf("compose: Sequence.Eval: unsupported query %T", q)
	}

	values := make(map[SeqElementID]string)
	children := make(map[SeqElementID][]SeqElementID)
	removed := make(map[SeqElementID]bool)

	record := func(e polog.Event) {
		switch op := e.Op.(type) {
		case SeqInsertOp:
			id := e.ID()
			values[id] = op.Value
			children[op.After] = append(children[op.After], id)
		case SeqRemoveOp:
			removed[op.Target] = true
		}
	}
	for _, e := range s.stable {
		record(e)
	}
	log.IterUnstable(record)

	for anchor := range children {
		sort.Slice(children[anchor], func(i, j int) bool {
			a, b := children[anchor][i], children[anchor][j]
			if a.Author != b.Author {
				return a.Author > b.Author
			}
			return a.Dot > b.Dot
		})
	}

	var out []string
	var walk func(anchor SeqElementID)
	walk = func(anchor SeqElementID) {
		for _, id := range children[anchor] {
			if !removed[id] {
				out = append(out, values[id])
			}
			walk(id)
		}
	}
	walk(seqHead)
	return out, nil
}
