// Package primitives provides the minimal leaf CRDTs needed to exercise and
// test the causal-delivery core end to end (spec scenarios S1–S3). It is
// deliberately not a catalog: spec §1 places the concrete CRDT catalog out
// of scope, so Counter and AWSet below exist only as grounding fixtures for
// the framework's own tests and the cmd/replicademo CLI, not as a product
// surface.
package primitives

import (
	"fmt"

	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/polog"
)

// IncIntent is the local caller intent for incrementing a Counter.
type IncIntent struct{ Delta int64 }

// IncOp is the opaque operation payload a Counter broadcasts.
type IncOp struct{ Delta int64 }

// ReadQuery asks for the counter's current total.
type ReadQuery struct{ crdt.QueryBase }

// Counter is a grow-only, operation-based counter: every increment
// commutes with every other, so nothing is ever redundant and nothing is
// ever self-redundant (spec §4.3's own example of a type that disables
// both quadratic scans).
type Counter struct {
	crdt.NoSelfRedundancy
	stable int64
}

// NewCounter returns a zeroed counter.
func NewCounter() *Counter { return &Counter{} }

// Prepare turns an IncIntent into an IncOp. Counter has no need of the log
// to decide an op's shape, unlike AWSet's remove.
func (c *Counter) Prepare(intent any, _ *polog.Log) (any, error) {
	in, ok := intent.(IncIntent)
	if !ok {
		return nil, fmt.Errorf("primitives: Counter.Prepare: unsupported intent %T", intent)
	}
	return IncOp{Delta: in.Delta}, nil
}

// Redundant always reports false: increments commute and none ever
// obsoletes another.
func (c *Counter) Redundant(_, _ polog.Event, _ *polog.Log) bool { return false }

// Policy disables both redundancy scans, per spec §4.3's own example.
func (c *Counter) Policy() crdt.Policy {
	return crdt.Policy{DisableRWhenRedundant: true, DisableRWhenNotRedundant: true}
}

// Stabilize folds a stabilized increment into the running total.
func (c *Counter) Stabilize(e polog.Event) {
	if op, ok := e.Op.(IncOp); ok {
		c.stable += op.Delta
	}
}

// Eval answers ReadQuery with the stable total plus every still-unstable
// increment.
func (c *Counter) Eval(q crdt.Query, log *polog.Log) (any, error) {
	switch q.(type) {
	case ReadQuery:
		total := c.stable
		log.IterUnstable(func(e polog.Event) {
			if op, ok := e.Op.(IncOp); ok {
				total += op.Delta
			}
		})
		return total, nil
	default:
		return nil, fmt.Errorf("primitives: Counter.Eval: unsupported query %T", q)
	}
}
