package crdt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Polqt/causalcrdt/polog"
)

// lastWriterWins is a minimal fixture CRDT used only to exercise Apply's
// redundancy wiring: any new write obsoletes every prior write (r), and
// nothing is ever self-redundant (embeds NoSelfRedundancy).
type lastWriterWins struct {
	NoSelfRedundancy
}

func (lastWriterWins) Prepare(intent any, _ *polog.Log) (any, error) { return intent, nil }
func (lastWriterWins) Redundant(newEvent, existing polog.Event, log *polog.Log) bool {
	return true // every new write obsoletes every prior write
}
func (lastWriterWins) Policy() Policy      { return Policy{} }
func (lastWriterWins) Stabilize(polog.Event) {}
func (lastWriterWins) Eval(Query, *polog.Log) (any, error) { return nil, nil }

func TestApply_RedundantDropsPriorEvents(t *testing.T) {
	log := polog.NewLog(polog.DefaultCompactionConfig())
	c := lastWriterWins{}

	_, err := Apply(log, c, polog.Event{Author: 0, VV: vvFixture(1, 0), Op: "first"})
	require.NoError(t, err)
	require.Equal(t, 1, log.Len())

	_, err = Apply(log, c, polog.Event{Author: 0, VV: vvFixture(2, 0), Op: "second"})
	require.NoError(t, err)
	require.Equal(t, 1, log.Len()) // first was dropped as redundant
}

// selfRedundantAlways always reports the incoming op redundant against any
// existing event, exercising the Discarded path.
type selfRedundantAlways struct{}

func (selfRedundantAlways) Prepare(intent any, _ *polog.Log) (any, error) { return intent, nil }
func (selfRedundantAlways) Redundant(polog.Event, polog.Event, *polog.Log) bool { return false }
func (selfRedundantAlways) SelfRedundant(polog.Event, polog.Event, *polog.Log) bool { return true }
func (selfRedundantAlways) Policy() Policy      { return Policy{} }
func (selfRedundantAlways) Stabilize(polog.Event) {}
func (selfRedundantAlways) Eval(Query, *polog.Log) (any, error) { return nil, nil }

func TestApply_SelfRedundantDiscardsIncoming(t *testing.T) {
	log := polog.NewLog(polog.DefaultCompactionConfig())
	c := selfRedundantAlways{}

	_, err := Apply(log, c, polog.Event{Author: 0, VV: vvFixture(1, 0), Op: "first"})
	require.NoError(t, err)
	require.Equal(t, 1, log.Len())

	outcome, err := Apply(log, c, polog.Event{Author: 1, VV: vvFixture(1, 1), Op: "second"})
	require.NoError(t, err)
	require.Equal(t, Discarded, outcome)
	require.Equal(t, 1, log.Len()) // only "first" remains
}

func vvFixture(xs ...uint64) []uint64 { return xs }
