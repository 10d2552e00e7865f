package vclock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatrixClock_TickSelf(t *testing.T) {
	mc := NewMatrixClock(2, 0)
	require.Equal(t, uint64(1), mc.TickSelf())
	require.Equal(t, uint64(2), mc.TickSelf())
	require.Equal(t, VV{2, 0}, mc.SelfRow())
}

func TestMatrixClock_Grow(t *testing.T) {
	mc := NewMatrixClock(2, 0)
	mc.TickSelf()
	mc.Grow(4)

	require.Equal(t, 4, mc.Size())
	require.Equal(t, VV{1, 0, 0, 0}, mc.Row(0))
	require.Equal(t, VV{0, 0, 0, 0}, mc.Row(3))
}

func TestMatrixClock_Grow_NoOpWhenNotLarger(t *testing.T) {
	mc := NewMatrixClock(3, 0)
	mc.TickSelf()
	mc.Grow(2)
	require.Equal(t, 3, mc.Size())
}

func TestMatrixClock_Retire(t *testing.T) {
	mc := NewMatrixClock(3, 0)
	mc.TickSelf()
	mc.Retire(1)

	const inf = ^uint64(0)
	for i := 0; i < mc.Size(); i++ {
		require.Equal(t, inf, mc.Row(i)[1])
	}
}

func TestMatrixClock_MergeRowAndObserveColumn(t *testing.T) {
	mc := NewMatrixClock(2, 0)
	mc.MergeRow(1, VV{0, 5})
	require.Equal(t, VV{0, 5}, mc.Row(1))

	mc.ObserveColumn(1, 5)
	require.Equal(t, uint64(5), mc.SelfRow()[1])

	mc.ObserveColumn(1, 3)
	require.Equal(t, uint64(5), mc.SelfRow()[1], "ObserveColumn must not move a column backward")
}

func TestMatrixClock_LSV(t *testing.T) {
	mc := NewMatrixClock(3, 0)
	mc.rows[0] = VV{3, 2, 1}
	mc.rows[1] = VV{1, 5, 1}
	mc.rows[2] = VV{2, 2, 9}

	require.Equal(t, VV{1, 2, 1}, mc.LSV())
}

func TestMatrixClock_LSVIncremental_MatchesFullScan(t *testing.T) {
	mc := NewMatrixClock(3, 0)
	mc.rows[0] = VV{3, 2, 1}
	mc.rows[1] = VV{1, 5, 1}
	mc.rows[2] = VV{2, 2, 9}

	prev := mc.LSV()
	ownerOfMin := []int{-1, -1, -1}
	for j := range ownerOfMin {
		for i := 0; i < 3; i++ {
			if mc.rows[i][j] == prev[j] {
				ownerOfMin[j] = i
				break
			}
		}
	}

	mc.rows[1] = VV{4, 5, 1}
	got, _ := mc.LSVIncremental(prev, ownerOfMin, 1)
	require.Equal(t, mc.LSV(), got)
}

func TestMatrixClock_LSVIncremental_RaisedMinimumForcesRescan(t *testing.T) {
	mc := NewMatrixClock(2, 0)
	mc.rows[0] = VV{0, 0}
	mc.rows[1] = VV{0, 0}

	prev := mc.LSV()
	ownerOfMin := []int{0, 0}

	mc.rows[0] = VV{9, 9}
	got, newOwner := mc.LSVIncremental(prev, ownerOfMin, 0)

	require.Equal(t, mc.LSV(), got)
	require.Equal(t, 1, newOwner[0])
}
