// Package vclock implements version vectors and the matrix clock built from
// them: the logical-time substrate the rest of causalcrdt reasons about
// (dominance, merge, dot assignment, and the last-stable-vector derivation
// used for causal-stability garbage collection).
//
// Replica identifiers are symbolic (any comparable string chosen by the
// application). Each replica keeps its own mapping from symbolic id to a
// dense column index via ReplicaTable; that mapping is never shared across
// replicas, so two replicas may assign the same peer different column
// numbers without any loss of correctness (see SPEC_FULL.md §12).
package vclock

import "fmt"

// ReplicaTable maps symbolic replica identifiers to dense column indices,
// local to one replica. Indices are assigned in first-seen order and never
// reused, so a VV's length only ever grows.
type ReplicaTable struct {
	ids     []string
	indexOf map[string]int
}

// NewReplicaTable builds a table seeded with the given membership, in order.
// The order determines initial column assignment; callers that need a
// specific self-index should pass self first.
func NewReplicaTable(membership []string) *ReplicaTable {
	t := &ReplicaTable{indexOf: make(map[string]int, len(membership))}
	for _, id := range membership {
		t.indexOrAdd(id)
	}
	return t
}

// Len returns the current membership size (VV/MC dimension).
func (t *ReplicaTable) Len() int { return len(t.ids) }

// IndexOf returns the column index for id and whether it was already known.
func (t *ReplicaTable) IndexOf(id string) (int, bool) {
	i, ok := t.indexOf[id]
	return i, ok
}

// ReplicaAt returns the symbolic id occupying column i.
func (t *ReplicaTable) ReplicaAt(i int) string { return t.ids[i] }

// Members returns the current membership in column order. The returned
// slice is owned by the caller.
func (t *ReplicaTable) Members() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// indexOrAdd returns id's column, assigning the next free column if id is
// new. Used both by NewReplicaTable and by membership growth on the receive
// path.
func (t *ReplicaTable) indexOrAdd(id string) int {
	if i, ok := t.indexOf[id]; ok {
		return i
	}
	i := len(t.ids)
	t.ids = append(t.ids, id)
	t.indexOf[id] = i
	return i
}

// Add grows the table with a new replica id, returning its column index.
// It is a no-op (returning the existing index) if id is already a member.
func (t *ReplicaTable) Add(id string) int { return t.indexOrAdd(id) }

// VV is a version vector: a dense counter per replica column. Index i holds
// the number of events the owning replica has observed as authored by
// column i (vv[author] is that author's own dot).
type VV []uint64

// NewVV returns a zeroed version vector of the given size.
func NewVV(size int) VV { return make(VV, size) }

// Clone returns an independent copy of v.
func (v VV) Clone() VV {
	c := make(VV, len(v))
	copy(c, v)
	return c
}

// Grow returns a copy of v extended to n entries, new entries zeroed. It is
// a no-op copy if n <= len(v).
func (v VV) Grow(n int) VV {
	if n <= len(v) {
		return v.Clone()
	}
	c := make(VV, n)
	copy(c, v)
	return c
}

// Tick increments the entry at index self and returns the new value — the
// event's dot. Panics if self is out of range; callers must grow the vector
// first (membership changes are explicit, see SPEC_FULL.md §12).
func (v VV) Tick(self int) uint64 {
	v[self]++
	return v[self]
}

// Merge returns the pointwise maximum of v and other. The result has the
// length of the longer operand; shorter operands are treated as zero in the
// missing columns.
func (v VV) Merge(other VV) VV {
	n := len(v)
	if len(other) > n {
		n = len(other)
	}
	out := make(VV, n)
	for i := 0; i < n; i++ {
		a, b := uint64(0), uint64(0)
		if i < len(v) {
			a = v[i]
		}
		if i < len(other) {
			b = other[i]
		}
		if a > b {
			out[i] = a
		} else {
			out[i] = b
		}
	}
	return out
}

// Dominates reports whether a dominates b: a[i] >= b[i] for every i, with
// strict inequality somewhere. Both vectors must be the same length; it
// panics if they are not.
func Dominates(a, b VV) bool {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vclock: Dominates called on mismatched sizes %d, %d", len(a), len(b)))
	}
	strict := false
	for i := range a {
		if a[i] < b[i] {
			return false
		}
		if a[i] > b[i] {
			strict = true
		}
	}
	return strict
}

// DominatesOrEqual reports a[i] >= b[i] for every i (non-strict dominance).
// This is the predicate used for causal stability: an event is stable when
// its VV is dominated-or-equal by the LSV.
func DominatesOrEqual(a, b VV) bool {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vclock: DominatesOrEqual called on mismatched sizes %d, %d", len(a), len(b)))
	}
	for i := range a {
		if a[i] < b[i] {
			return false
		}
	}
	return true
}

// LessOrEqual reports a[i] <= b[i] for every i.
func LessOrEqual(a, b VV) bool {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vclock: LessOrEqual called on mismatched sizes %d, %d", len(a), len(b)))
	}
	for i := range a {
		if a[i] > b[i] {
			return false
		}
	}
	return true
}

// Concurrent reports whether neither a nor b dominates the other.
func Concurrent(a, b VV) bool {
	return !DominatesOrEqual(a, b) && !DominatesOrEqual(b, a)
}

// Equal reports whether a and b are pointwise equal.
func Equal(a, b VV) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LessOrEqualPadded reports whether a is dominated-or-equal by b, treating
// any entry missing from the shorter vector as zero. Plain LessOrEqual
// panics on a length mismatch because within one log all live VVs share a
// dimension; this variant is for scoped causal cuts (spec §4.4), which
// compare a composite-level event's VV against a child-log entry's VV
// stamped at an earlier point in the replica's membership growth, where a
// length mismatch is expected rather than a bug.
func LessOrEqualPadded(a, b VV) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var av, bv uint64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av > bv {
			return false
		}
	}
	return true
}

// ErrSizeMismatch describes two VVs (or a VV and a matrix clock row) that do
// not share a dimension because membership has drifted between the two sides
// of a comparison. No function in this package returns it: the same-length
// comparisons above panic on a mismatch, and LessOrEqualPadded pads instead.
type ErrSizeMismatch struct {
	Want, Got int
}

func (e *ErrSizeMismatch) Error() string {
	return fmt.Sprintf("vclock: size mismatch: want %d, got %d", e.Want, e.Got)
}
