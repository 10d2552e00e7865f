package compose

import (
	"fmt"

	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/crdterr"
	"github.com/Polqt/causalcrdt/polog"
)

// SwitchIntent selects Variant as the union's active alternative.
type SwitchIntent struct{ Variant string }

// VariantIntent addresses a caller intent at whichever variant this
// replica's local view currently considers active.
type VariantIntent struct{ ChildIntent any }

// SwitchOp is the composite-level payload recording a variant switch.
type SwitchOp struct{ Variant string }

// VariantOp is the wire payload for a routed variant operation; Variant is
// stamped at prepare time so delivery always reaches the variant the
// sender intended, even if a later switch has since changed what's active.
type VariantOp struct {
	Variant string
	ChildOp any
}

// ActiveQuery asks which variant is currently active.
type ActiveQuery struct{ crdt.QueryBase }

// AtVariantQuery forwards Query to the named variant's child regardless of
// whether it is currently active.
type AtVariantQuery struct {
	crdt.QueryBase
	Variant string
	Query   crdt.Query
}

// Union is a sum-type composite (spec §4.4): exactly one named variant is
// active at a time. Concurrent switches to different variants converge
// deterministically — the switch whose event id (author, dot) is
// lexicographically greatest wins on every replica, independent of
// delivery order, the same guarantee an LWW register gives.
type Union struct {
	crdt.NoSelfRedundancy
	variants  map[string]*uwChild
	active    string
	winner    polog.EventID
	hasWinner bool
}

// NewUnion returns a union with one (inactive) child per entry in
// factories and initial as the starting active variant.
func NewUnion(factories map[string]func() crdt.PureCRDT, initial string) *Union {
	variants := make(map[string]*uwChild, len(factories))
	for name, f := range factories {
		variants[name] = &uwChild{crdtVal: f(), log: polog.NewLog(polog.DefaultCompactionConfig())}
	}
	return &Union{variants: variants, active: initial}
}

func (u *Union) Prepare(intent any, _ *polog.Log) (any, error) {
	switch in := intent.(type) {
	case SwitchIntent:
		if _, ok := u.variants[in.Variant]; !ok {
			return nil, fmt.Errorf("compose: Union.Prepare: unknown variant %q", in.Variant)
		}
		return SwitchOp{Variant: in.Variant}, nil
	case VariantIntent:
		v, ok := u.variants[u.active]
		if !ok {
			return nil, fmt.Errorf("compose: Union.Prepare: no active variant")
		}
		childOp, err := v.crdtVal.Prepare(in.ChildIntent, v.log)
		if err != nil {
			return nil, err
		}
		return VariantOp{Variant: u.active, ChildOp: childOp}, nil
	default:
		return nil, fmt.Errorf("compose: Union.Prepare: unsupported intent %T", intent)
	}
}

// Redundant collapses the switch history to the latest: every new switch
// obsoletes every prior one. The winner is decided independently by
// EffectAcrossChildren's deterministic tie-break, never by log order, so
// this is purely a memory bound.
func (u *Union) Redundant(newEvent, existing polog.Event, _ *polog.Log) bool {
	_, newIsSwitch := newEvent.Op.(SwitchOp)
	_, oldIsSwitch := existing.Op.(SwitchOp)
	return newIsSwitch && oldIsSwitch
}

func (u *Union) Policy() crdt.Policy { return crdt.Policy{} }

func (u *Union) Stabilize(polog.Event) {}

func (u *Union) Route(op any) (Address, any, bool) {
	vo, ok := op.(VariantOp)
	if !ok {
		return nil, nil, false
	}
	return Address{vo.Variant}, vo.ChildOp, true
}

func (u *Union) ChildLog(addr Address) (crdt.PureCRDT, *polog.Log) {
	name, _, ok := addr.Head()
	if !ok {
		return nil, nil
	}
	v, ok := u.variants[name]
	if !ok {
		return nil, nil
	}
	return v.crdtVal, v.log
}

// EffectAcrossChildren updates the active-variant pointer whenever e is a
// switch whose id beats the current winner.
func (u *Union) EffectAcrossChildren(e polog.Event) {
	sw, ok := e.Op.(SwitchOp)
	if !ok {
		return
	}
	id := e.ID()
	if !u.hasWinner || winnerLess(u.winner, id) {
		u.winner = id
		u.hasWinner = true
		u.active = sw.Variant
	}
}

func winnerLess(a, b polog.EventID) bool {
	if a.Author != b.Author {
		return a.Author < b.Author
	}
	return a.Dot < b.Dot
}

func (u *Union) StabilizeAll(lsv []uint64) int {
	total := 0
	for _, v := range u.variants {
		total += v.log.Stabilize(lsv, v.crdtVal.Stabilize)
		if nested, ok := v.crdtVal.(Composite); ok {
			total += nested.StabilizeAll(lsv)
		}
	}
	return total
}

func (u *Union) Eval(q crdt.Query, _ *polog.Log) (any, error) {
	switch query := q.(type) {
	case ActiveQuery:
		return u.active, nil
	case AtVariantQuery:
		v, ok := u.variants[query.Variant]
		if !ok {
			return nil, &crdterr.QueryDomainError{Address: query.Variant}
		}
		return v.crdtVal.Eval(query.Query, v.log)
	default:
		return nil, fmt.Errorf("compose: Union.Eval: unsupported query %T", q)
	}
}
