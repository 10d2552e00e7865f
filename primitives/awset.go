package primitives

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/polog"
)

// AddIntent and RemoveIntent are the local caller intents for AWSet.
type AddIntent struct{ Value string }
type RemoveIntent struct{ Value string }

// AddOp and RemoveOp are the opaque operation payloads AWSet broadcasts.
// AddOp carries a uuid tag so concurrent adds of the same value from
// different replicas remain distinguishable even though the event id
// (author, dot) already disambiguates them on the wire — the tag mirrors
// the teacher's own OR-Set add-tag design and is what a nested composite
// (package compose) forwards when scoping an Add to a child log.
type AddOp struct {
	Value string
	Tag   string
}

// RemoveOp tombstones every add-tag its preparing replica could currently
// see for Value (stable and unstable). A remove that never observed a
// concurrent add carries none of that add's tags, so stabilizing the two in
// either order leaves the add's tag live — add-wins without depending on
// stabilization order.
type RemoveOp struct {
	Value string
	Tags  []string
}

// ContainsQuery asks whether a value is currently in the set.
type ContainsQuery struct {
	crdt.QueryBase
	Value string
}

// ValuesQuery asks for every value currently in the set.
type ValuesQuery struct{ crdt.QueryBase }

// AWSet is an add-wins set (spec §4.4, scenario S2): a value added
// concurrently with a remove of the same value remains present, because
// Remove only tombstones the add-tags it causally observed, never
// concurrent ones. Redundancy in the unstable log (r/r0) is what keeps the
// window small; tag-tracking in stable storage is what makes the outcome
// independent of the order concurrent events happen to stabilize in.
type AWSet struct {
	crdt.NoSelfRedundancy // r0 is always false for AW-Set: nothing is discarded on arrival
	stable                map[string]map[string]struct{}
}

// NewAWSet returns an empty add-wins set.
func NewAWSet() *AWSet {
	return &AWSet{stable: make(map[string]map[string]struct{})}
}

// Prepare turns an Add/RemoveIntent into the corresponding op. A remove
// snapshots every add-tag for Value currently visible — in stable storage
// or still live in the unstable log — as the set it intends to tombstone.
func (s *AWSet) Prepare(intent any, log *polog.Log) (any, error) {
	switch in := intent.(type) {
	case AddIntent:
		return AddOp{Value: in.Value, Tag: uuid.NewString()}, nil
	case RemoveIntent:
		tags := make([]string, 0, len(s.stable[in.Value]))
		for tag := range s.stable[in.Value] {
			tags = append(tags, tag)
		}
		if log != nil {
			log.IterUnstable(func(e polog.Event) {
				if op, ok := e.Op.(AddOp); ok && op.Value == in.Value {
					tags = append(tags, op.Tag)
				}
			})
		}
		sort.Strings(tags)
		return RemoveOp{Value: in.Value, Tags: tags}, nil
	default:
		return nil, fmt.Errorf("primitives: AWSet.Prepare: unsupported intent %T", intent)
	}
}

// Redundant is r(new, e):
//   - a new Add(v) makes redundant any prior Add(v) or Remove(v): the
//     latest add-or-remove of a value is the only one whose tag or
//     tombstone still matters for this value's presence;
//   - a new Remove(v) makes redundant any prior Remove(v), and any prior
//     Add(v) that causally happened-before it (never a concurrent one —
//     that's what gives add-wins its name).
func (s *AWSet) Redundant(newEvent, existing polog.Event, log *polog.Log) bool {
	switch n := newEvent.Op.(type) {
	case AddOp:
		switch o := existing.Op.(type) {
		case AddOp:
			return o.Value == n.Value
		case RemoveOp:
			return o.Value == n.Value
		}
	case RemoveOp:
		switch o := existing.Op.(type) {
		case RemoveOp:
			return o.Value == n.Value
		case AddOp:
			return o.Value == n.Value && log.IsAncestor(existing.ID(), newEvent.ID())
		}
	}
	return false
}

// Policy uses the default (both scans enabled): AW-Set's redundancy rules
// depend on every other unstable event, so neither short-circuit applies.
func (s *AWSet) Policy() crdt.Policy { return crdt.Policy{} }

// Stabilize folds a stabilized Add or Remove into the tag-tracked stable
// set. An Add adds its tag to Value's live-tag set; a Remove deletes only
// the tags it snapshotted at Prepare time. Because ties among concurrent
// events are broken arbitrarily within a batch (spec §4.2 makes no causal
// promise between concurrent siblings), tag-scoped removal is what keeps
// the result independent of which one folds first — a naive
// delete-on-any-remove fold would let fold order decide a race the
// causal order itself left undecided.
func (s *AWSet) Stabilize(e polog.Event) {
	switch op := e.Op.(type) {
	case AddOp:
		tags := s.stable[op.Value]
		if tags == nil {
			tags = make(map[string]struct{})
			s.stable[op.Value] = tags
		}
		tags[op.Tag] = struct{}{}
	case RemoveOp:
		tags := s.stable[op.Value]
		if tags == nil {
			return
		}
		for _, tag := range op.Tags {
			delete(tags, tag)
		}
		if len(tags) == 0 {
			delete(s.stable, op.Value)
		}
	}
}

// Eval answers ContainsQuery and ValuesQuery over the stable set plus
// whatever unstable adds/removes still decide a value's fate.
func (s *AWSet) Eval(q crdt.Query, log *polog.Log) (any, error) {
	switch query := q.(type) {
	case ContainsQuery:
		return s.present(query.Value, log), nil
	case ValuesQuery:
		// Candidate values are every value stable storage or the unstable
		// log still mentions; each candidate's fate is then decided by
		// present(), the same add-wins-over-concurrent-remove resolution
		// ContainsQuery uses, instead of folding ops into a result set by
		// iteration order (polog.Log ranges a Go map, so that order is
		// randomized run to run and would make a concurrent add/remove
		// race the map, not the causal order).
		candidates := make(map[string]struct{}, len(s.stable))
		for v, tags := range s.stable {
			if len(tags) > 0 {
				candidates[v] = struct{}{}
			}
		}
		log.IterUnstable(func(e polog.Event) {
			switch op := e.Op.(type) {
			case AddOp:
				candidates[op.Value] = struct{}{}
			case RemoveOp:
				candidates[op.Value] = struct{}{}
			}
		})
		out := make([]string, 0, len(candidates))
		for v := range candidates {
			if s.present(v, log) {
				out = append(out, v)
			}
		}
		sort.Strings(out)
		return out, nil
	default:
		return nil, fmt.Errorf("primitives: AWSet.Eval: unsupported query %T", q)
	}
}

// present evaluates whether value is currently visible. If the unstable log
// still carries an add or remove of value, Apply's redundancy resolution
// already decided the outcome (a surviving add always wins per Redundant
// above), so a simple scan is sufficient; once both sides have stabilized,
// presence falls back to the tag-tracked stable set.
func (s *AWSet) present(value string, log *polog.Log) bool {
	hasAdd := false
	hasRemove := false
	log.IterUnstable(func(e polog.Event) {
		switch op := e.Op.(type) {
		case AddOp:
			if op.Value == value {
				hasAdd = true
			}
		case RemoveOp:
			if op.Value == value {
				hasRemove = true
			}
		}
	})
	if hasAdd {
		return true
	}
	if hasRemove {
		return false
	}
	return len(s.stable[value]) > 0
}
