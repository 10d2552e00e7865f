package vclock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplicaTable_AssignsStableIndices(t *testing.T) {
	tbl := NewReplicaTable([]string{"R0", "R1", "R2"})
	require.Equal(t, 3, tbl.Len())

	i0, ok := tbl.IndexOf("R0")
	require.True(t, ok)
	require.Equal(t, 0, i0)

	i2, ok := tbl.IndexOf("R2")
	require.True(t, ok)
	require.Equal(t, 2, i2)

	_, ok = tbl.IndexOf("R9")
	require.False(t, ok)
}

func TestReplicaTable_AddIsIdempotent(t *testing.T) {
	tbl := NewReplicaTable([]string{"R0"})
	i := tbl.Add("R1")
	require.Equal(t, 1, i)
	require.Equal(t, 2, tbl.Len())

	again := tbl.Add("R1")
	require.Equal(t, i, again)
	require.Equal(t, 2, tbl.Len())
}

func TestReplicaTable_MembersPreservesOrder(t *testing.T) {
	tbl := NewReplicaTable([]string{"R0", "R1"})
	tbl.Add("R2")
	require.Equal(t, []string{"R0", "R1", "R2"}, tbl.Members())
}

func TestVV_TickAndClone(t *testing.T) {
	v := NewVV(3)
	dot := v.Tick(1)
	require.Equal(t, uint64(1), dot)

	c := v.Clone()
	c.Tick(1)
	require.Equal(t, uint64(1), v[1], "clone must not alias the original")
	require.Equal(t, uint64(2), c[1])
}

func TestVV_Grow(t *testing.T) {
	v := VV{1, 2}
	grown := v.Grow(4)
	require.Equal(t, VV{1, 2, 0, 0}, grown)

	same := v.Grow(1)
	require.Equal(t, VV{1, 2}, same)
}

func TestVV_Merge(t *testing.T) {
	a := VV{1, 0, 5}
	b := VV{0, 3, 2}
	require.Equal(t, VV{1, 3, 5}, a.Merge(b))

	short := VV{9}
	require.Equal(t, VV{9, 3, 2}, short.Merge(b))
}

func TestDominates(t *testing.T) {
	require.True(t, Dominates(VV{2, 1}, VV{1, 1}))
	require.False(t, Dominates(VV{1, 1}, VV{1, 1}), "equal vectors do not strictly dominate")
	require.False(t, Dominates(VV{0, 2}, VV{1, 1}), "concurrent vectors do not dominate")
}

func TestDominates_PanicsOnMismatchedLength(t *testing.T) {
	require.Panics(t, func() { Dominates(VV{1}, VV{1, 1}) })
}

func TestDominatesOrEqual(t *testing.T) {
	require.True(t, DominatesOrEqual(VV{1, 1}, VV{1, 1}))
	require.True(t, DominatesOrEqual(VV{2, 1}, VV{1, 1}))
	require.False(t, DominatesOrEqual(VV{1, 0}, VV{1, 1}))
}

func TestLessOrEqual(t *testing.T) {
	require.True(t, LessOrEqual(VV{1, 1}, VV{1, 1}))
	require.True(t, LessOrEqual(VV{0, 1}, VV{1, 1}))
	require.False(t, LessOrEqual(VV{2, 0}, VV{1, 1}))
}

func TestConcurrent(t *testing.T) {
	require.True(t, Concurrent(VV{1, 0}, VV{0, 1}))
	require.False(t, Concurrent(VV{1, 1}, VV{1, 0}))
	require.False(t, Concurrent(VV{1, 1}, VV{1, 1}))
}

func TestEqual(t *testing.T) {
	require.True(t, Equal(VV{1, 2}, VV{1, 2}))
	require.False(t, Equal(VV{1, 2}, VV{1, 3}))
	require.False(t, Equal(VV{1, 2}, VV{1, 2, 0}))
}

func TestLessOrEqualPadded(t *testing.T) {
	require.True(t, LessOrEqualPadded(VV{1, 0}, VV{1, 0, 5}))
	require.True(t, LessOrEqualPadded(VV{0, 0, 0}, VV{1, 2}))
	require.False(t, LessOrEqualPadded(VV{1, 1}, VV{1, 0, 9}))
}

func TestErrSizeMismatch_Error(t *testing.T) {
	err := &ErrSizeMismatch{Want: 3, Got: 2}
	require.Contains(t, err.Error(), "3")
	require.Contains(t, err.Error(), "2")
}
