package compose

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/polog"
)

func TestSequence_SequentialInsertsLinearize(t *testing.T) {
	s := NewSequence()
	l := polog.NewLog(polog.DefaultCompactionConfig())

	op1, err := s.Prepare(SeqInsertIntent{After: seqHead, Value: "a"}, l)
	require.NoError(t, err)
	e1 := polog.Event{Author: 0, VV: vv(1), Op: op1}
	_, err = crdt.Apply(l, s, e1)
	require.NoError(t, err)

	op2, err := s.Prepare(SeqInsertIntent{After: e1.ID(), Value: "b"}, l)
	require.NoError(t, err)
	e2 := polog.Event{Author: 0, VV: vv(2), Op: op2}
	_, err = crdt.Apply(l, s, e2)
	require.NoError(t, err)

	vals, err := s.Eval(SeqValuesQuery{}, l)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, vals)
}

func TestSequence_RemoveTombstonesWithoutBreakingAnchors(t *testing.T) {
	s := NewSequence()
	l := polog.NewLog(polog.DefaultCompactionConfig())

	op1, err := s.Prepare(SeqInsertIntent{After: seqHead, Value: "a"}, l)
	require.NoError(t, err)
	e1 := polog.Event{Author: 0, VV: vv(1), Op: op1}
	_, err = crdt.Apply(l, s, e1)
	require.NoError(t, err)

	op2, err := s.Prepare(SeqInsertIntent{After: e1.ID(), Value: "b"}, l)
	require.NoError(t, err)
	e2 := polog.Event{Author: 0, VV: vv(2), Op: op2}
	_, err = crdt.Apply(l, s, e2)
	require.NoError(t, err)

	remOp, err := s.Prepare(SeqRemoveIntent{Target: e1.ID()}, l)
	require.NoError(t, err)
	_, err = crdt.Apply(l, s, polog.Event{Author: 0, VV: vv(3), Op: remOp})
	require.NoError(t, err)

	vals, err := s.Eval(SeqValuesQuery{}, l)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, vals, "b must remain anchored after a's removal")
}

func TestSequence_ConcurrentInsertsAfterSameAnchorOrderDeterministically(t *testing.T) {
	s0 := NewSequence()
	l0 := polog.NewLog(polog.DefaultCompactionConfig())
	s1 := NewSequence()
	l1 := polog.NewLog(polog.DefaultCompactionConfig())

	rootOp, err := s0.Prepare(SeqInsertIntent{After: seqHead, Value: "root"}, l0)
	require.NoError(t, err)
	rootEvent := polog.Event{Author: 0, VV: vv(1, 0), Op: rootOp}
	_, err = crdt.Apply(l0, s0, rootEvent)
	require.NoError(t, err)
	_, err = crdt.Apply(l1, s1, rootEvent)
	require.NoError(t, err)

	op0, err := s0.Prepare(SeqInsertIntent{After: rootEvent.ID(), Value: "x"}, l0)
	require.NoError(t, err)
	e0 := polog.Event{Author: 0, VV: vv(2, 0), Op: op0}
	_, err = crdt.Apply(l0, s0, e0)
	require.NoError(t, err)

	op1, err := s1.Prepare(SeqInsertIntent{After: rootEvent.ID(), Value: "y"}, l1)
	require.NoError(t, err)
	e1 := polog.Event{Author: 1, VV: vv(1, 1), Op: op1}
	_, err = crdt.Apply(l1, s1, e1)
	require.NoError(t, err)

	_, err = crdt.Apply(l0, s0, e1)
	require.NoError(t, err)
	_, err = crdt.Apply(l1, s1, e0)
	require.NoError(t, err)

	vals0, err := s0.Eval(SeqValuesQuery{}, l0)
	require.NoError(t, err)
	vals1, err := s1.Eval(SeqValuesQuery{}, l1)
	require.NoError(t, err)
	require.Equal(t, vals0, vals1, "both replicas must linearize concurrent siblings identically")
}
