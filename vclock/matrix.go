package vclock

// MatrixClock is a replica's view of every member's version vector: row i is
// the latest VV replica i is known to have reached. The owning replica's own
// row is its local VV. Invariants (spec §3):
//
//	square:          len(rows) == len(rows[i]) for every i
//	MC[i][j] <= MC[j][j]
//	MC[self][i] >= MC[i][i]  (enforced by Merge on delivery, not by
//	                          construction — a freshly grown column starts
//	                          at 0 until a row speaks for it)
type MatrixClock struct {
	self int
	rows []VV
}

// NewMatrixClock returns a zeroed n x n matrix clock for a replica occupying
// column self.
func NewMatrixClock(n, self int) *MatrixClock {
	rows := make([]VV, n)
	for i := range rows {
		rows[i] = NewVV(n)
	}
	return &MatrixClock{self: self, rows: rows}
}

// Self returns the column index of the owning replica.
func (m *MatrixClock) Self() int { return m.self }

// Size returns the current dimension (membership size).
func (m *MatrixClock) Size() int { return len(m.rows) }

// Row returns the VV the matrix clock holds for replica i. The returned
// slice aliases internal state; callers must not mutate it directly except
// through the matrix clock's own methods.
func (m *MatrixClock) Row(i int) VV { return m.rows[i] }

// SelfRow returns the owning replica's own version vector.
func (m *MatrixClock) SelfRow() VV { return m.rows[m.self] }

// Grow extends the matrix clock to n columns/rows, zero-filling new entries.
// Used when membership grows (spec §4.5).
func (m *MatrixClock) Grow(n int) {
	if n <= len(m.rows) {
		return
	}
	for i := range m.rows {
		m.rows[i] = m.rows[i].Grow(n)
	}
	for len(m.rows) < n {
		m.rows = append(m.rows, NewVV(n))
	}
}

// Retire marks column i as permanently caught up at +inf by setting every
// row's entry for i to the maximum uint64, the matrix-clock encoding of
// "this column reached infinity" used when a replica is removed from
// membership (spec §4.5): no future event can be concurrent to anything
// already stable on that column, so stability must never again wait on it.
func (m *MatrixClock) Retire(i int) {
	const inf = ^uint64(0)
	for r := range m.rows {
		m.rows[r][i] = inf
	}
}

// TickSelf increments the owning replica's own entry in its own row and
// returns the new dot.
func (m *MatrixClock) TickSelf() uint64 {
	return m.rows[m.self].Tick(m.self)
}

// MergeRow merges incoming into the row for replica author — the "the
// author's row got news" step of the receive path (spec §4.5 step 3, first
// half).
func (m *MatrixClock) MergeRow(author int, incoming VV) {
	m.rows[author] = m.rows[author].Merge(incoming)
}

// ObserveColumn records that the owning replica has now seen dot from
// author — the second half of receive-path step 3: MC[self][author] =
// event.vv[author].
func (m *MatrixClock) ObserveColumn(author int, dot uint64) {
	if m.rows[m.self][author] < dot {
		m.rows[m.self][author] = dot
	}
}

// LSV computes the column-wise minimum of the matrix clock from scratch: an
// event whose VV is dominated-or-equal by the result has been observed by
// every replica and is therefore causally stable.
func (m *MatrixClock) LSV() VV {
	n := len(m.rows)
	out := make(VV, n)
	for j := 0; j < n; j++ {
		min := m.rows[0][j]
		for i := 1; i < n; i++ {
			if m.rows[i][j] < min {
				min = m.rows[i][j]
			}
		}
		out[j] = min
	}
	return out
}

// LSVIncremental recomputes the LSV after only row `changed` has moved,
// given the previous LSV and which row previously supplied the minimum for
// each column (ownerOfMin, same length as previous; ownerOfMin[j] == -1
// means unknown / never tracked, forcing a full rescan of column j).
//
// It returns the new LSV and an updated ownerOfMin to pass into the next
// call. This is the §4.1 `lsv_incremental` operation: a column is untouched
// if the changed row did not lower below the previous minimum, and a full
// column scan is only needed when the previous minimum's owner was the row
// that just changed (its old contribution may no longer be the minimum).
func (m *MatrixClock) LSVIncremental(previous VV, ownerOfMin []int, changed int) (VV, []int) {
	n := len(m.rows)
	out := make(VV, n)
	newOwner := make([]int, n)
	copy(out, previous)
	copy(newOwner, ownerOfMin)

	for j := 0; j < n; j++ {
		changedVal := m.rows[changed][j]

		// Early exit: the changed row cannot have lowered column j.
		if j < len(previous) && changedVal >= previous[j] && ownerOfMin[j] >= 0 && ownerOfMin[j] != changed {
			continue
		}

		if j < len(ownerOfMin) && ownerOfMin[j] != changed && ownerOfMin[j] >= 0 {
			// Previous minimum came from a different, untouched row:
			// it's still a valid upper bound, but the changed row might
			// now be lower, so compare rather than rescanning fully.
			if changedVal < previous[j] {
				out[j] = changedVal
				newOwner[j] = changed
			}
			continue
		}

		// The previous minimum's owner was this changed row (or unknown):
		// a full column scan is required since that row's old
		// contribution may no longer be the minimum.
		min := m.rows[0][j]
		owner := 0
		for i := 1; i < n; i++ {
			if m.rows[i][j] < min {
				min = m.rows[i][j]
				owner = i
			}
		}
		out[j] = min
		newOwner[j] = owner
	}
	return out, newOwner
}
