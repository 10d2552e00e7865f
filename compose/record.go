package compose

import (
	"fmt"
	"sort"

	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/crdterr"
	"github.com/Polqt/causalcrdt/polog"
)

// FieldIntent addresses a caller intent at a fixed named field.
type FieldIntent struct {
	Field       string
	ChildIntent any
}

// FieldOp is the wire payload for a routed field operation.
type FieldOp struct {
	Field   string
	ChildOp any
}

// AtFieldQuery forwards Query to the child CRDT living at Field.
type AtFieldQuery struct {
	crdt.QueryBase
	Field string
	Query crdt.Query
}

// FieldsQuery asks for the record's fixed field names.
type FieldsQuery struct{ crdt.QueryBase }

// Record is a product-type composite (spec §4.4): a fixed set of named
// fields, each backed by its own child CRDT, present for the record's
// entire lifetime. Unlike UW-Map there is no key removal, so no
// composite-level redundancy predicate or cross-child effect exists —
// fields never conflict with one another.
type Record struct {
	crdt.NoSelfRedundancy
	fields map[string]*uwChild
}

// NewRecord returns a record with one child per entry in factories,
// created immediately (product types have a fixed shape, unlike a map's
// lazily created keys).
func NewRecord(factories map[string]func() crdt.PureCRDT) *Record {
	fields := make(map[string]*uwChild, len(factories))
	for name, f := range factories {
		fields[name] = &uwChild{crdtVal: f(), log: polog.NewLog(polog.DefaultCompactionConfig())}
	}
	return &Record{fields: fields}
}

func (r *Record) Prepare(intent any, _ *polog.Log) (any, error) {
	in, ok := intent.(FieldIntent)
	if !ok {
		return nil, fmt.Errorf("compose: Record.Prepare: unsupported intent %T", intent)
	}
	f, ok := r.fields[in.Field]
	if !ok {
		return nil, fmt.Errorf("compose: Record.Prepare: unknown field %q", in.Field)
	}
	childOp, err := f.crdtVal.Prepare(in.ChildIntent, f.log)
	if err != nil {
		return nil, err
	}
	return FieldOp{Field: in.Field, ChildOp: childOp}, nil
}

// Redundant always reports false: no field operation ever obsoletes
// another field's, and a field's own redundancy is entirely its child
// CRDT's concern, decided in the child's log.
func (r *Record) Redundant(_, _ polog.Event, _ *polog.Log) bool { return false }

func (r *Record) Policy() crdt.Policy {
	return crdt.Policy{DisableRWhenRedundant: true, DisableRWhenNotRedundant: true}
}

// Stabilize is a no-op: a Record's own log never holds any composite-level
// event (every operation routes to a field), so it is never invoked.
func (r *Record) Stabilize(polog.Event) {}

func (r *Record) Route(op any) (Address, any, bool) {
	fo, ok := op.(FieldOp)
	if !ok {
		return nil, nil, false
	}
	return Address{fo.Field}, fo.ChildOp, true
}

func (r *Record) ChildLog(addr Address) (crdt.PureCRDT, *polog.Log) {
	name, _, ok := addr.Head()
	if !ok {
		return nil, nil
	}
	f, ok := r.fields[name]
	if !ok {
		return nil, nil
	}
	return f.crdtVal, f.log
}

// EffectAcrossChildren is a no-op: fields are independent.
func (r *Record) EffectAcrossChildren(polog.Event) {}

func (r *Record) StabilizeAll(lsv []uint64) int {
	total := 0
	for _, f := range r.fields {
		total += f.log.Stabilize(lsv, f.crdtVal.Stabilize)
		if nested, ok := f.crdtVal.(Composite); ok {
			total += nested.StabilizeAll(lsv)
		}
	}
	return total
}

func (r *Record) Eval(q crdt.Query, _ *polog.Log) (any, error) {
	switch query := q.(type) {
	case AtFieldQuery:
		f, ok := r.fields[query.Field]
		if !ok {
			return nil, &crdterr.QueryDomainError{Address: query.Field}
		}
		return f.crdtVal.Eval(query.Query, f.log)
	case FieldsQuery:
		out := make([]string, 0, len(r.fields))
		for name := range r.fields {
			out = append(out, name)
		}
		sort.Strings(out)
		return out, nil
	default:
		return nil, fmt.Errorf("compose: Record.Eval: unsupported query %T", q)
	}
}
