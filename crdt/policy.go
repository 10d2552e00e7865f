package crdt

// Policy carries the compile/configuration-time switches spec §4.3 and §9
// attach to a data type: short-circuits that skip the quadratic redundancy
// scan when a type's semantics don't need it. A monotone grow-only counter,
// for instance, never drops a prior event and is never itself obsoleted, so
// both scans are pure overhead for it.
type Policy struct {
	// DisableRWhenRedundant skips running Redundant (r) against the
	// unstable log on every Effect call.
	DisableRWhenRedundant bool

	// DisableRWhenNotRedundant skips running SelfRedundant (r0) against
	// the unstable log on every Effect call.
	DisableRWhenNotRedundant bool
}
