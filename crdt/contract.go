// Package crdt defines the pure-CRDT contract (spec §4.3): the uniform
// interface every concrete conflict-free replicated data type implements so
// the replica and the event-graph log can drive it generically, without any
// per-type special casing anywhere else in the framework.
package crdt

import "github.com/Polqt/causalcrdt/polog"

// Query is a marker interface for typed read descriptors (spec §4.6,
// §6). Concrete CRDTs define their own query types (Read, Contains, Keys,
// ...) and only accept the ones that make sense for their shape; an
// unrecognized query is reported as an error, not a panic.
type Query interface {
	isQuery()
}

// QueryBase is embedded by concrete query types to satisfy Query without
// repeating the marker method.
type QueryBase struct{}

func (QueryBase) isQuery() {}

// PureCRDT is the capability set a concrete data type implements (spec
// §4.3). It is intentionally not an inheritance hierarchy: primitives and
// composites both satisfy it directly, and composites carry typed child
// contracts rather than reaching for runtime reflection (spec §9 Design
// Notes).
type PureCRDT interface {
	// Prepare inspects the current (stable, unstable) view and a caller
	// intent, and emits the opaque operation payload a replica will stamp
	// with a version vector and broadcast. Some types need more than the
	// intent to decide an op's shape — e.g. an add-wins set's remove must
	// snapshot the add-tags it currently observes — so Prepare receives the
	// log read-only; it must not mutate it.
	Prepare(intent any, log *polog.Log) (any, error)

	// Redundant is r(new, e): true when newEvent makes existing e obsolete
	// and therefore droppable from the unstable log. Predicates are
	// evaluated over the log (spec §4.2/§4.3), so they receive log to run
	// causal-order queries such as "did e happen-before newEvent" via
	// log.IsAncestor.
	Redundant(newEvent, existing polog.Event, log *polog.Log) bool

	// SelfRedundant is r0(new, e): true when existing e already makes
	// newEvent obsolete on arrival, so it must be discarded instead of
	// kept attached. Most data types never discard an incoming event;
	// embed NoSelfRedundancy for the default false.
	SelfRedundant(newEvent, existing polog.Event, log *polog.Log) bool

	// Policy reports the redundancy short-circuit switches this type
	// wants (spec §4.3); a type with no opinion returns the zero Policy.
	Policy() Policy

	// Stabilize folds an event that has fallen under the last stable
	// vector into whatever stable structure the type keeps internally. It
	// must not block.
	Stabilize(e polog.Event)

	// Eval answers a query against the type's current causal state: its
	// own stable storage plus the still-unstable events in log.
	Eval(q Query, log *polog.Log) (any, error)
}

// NoSelfRedundancy is embedded by data types whose incoming operations are
// never discarded on arrival — the common case (spec §4.3: "default
// false").
type NoSelfRedundancy struct{}

// SelfRedundant always reports false.
func (NoSelfRedundancy) SelfRedundant(_, _ polog.Event, _ *polog.Log) bool { return false }
