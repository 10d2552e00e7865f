package replica

import (
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/causalcrdt/compose"
	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/polog"
	"github.com/Polqt/causalcrdt/primitives"
)

// TestReplica_S1_CounterConvergence: two replicas concurrently increment a
// shared Counter; after exchanging events both must read the combined
// total (spec §8 S1).
func TestReplica_S1_CounterConvergence(t *testing.T) {
	members := []string{"R0", "R1"}
	r0 := New("R0", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)
	r1 := New("R1", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)

	e0, err := r0.Send(primitives.IncIntent{Delta: 5})
	require.NoError(t, err)
	e1, err := r1.Send(primitives.IncIntent{Delta: 3})
	require.NoError(t, err)

	outcome, err := r1.Receive(e0)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)

	outcome, err = r0.Receive(e1)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)

	v0, err := r0.Query(primitives.ReadQuery{})
	require.NoError(t, err)
	v1, err := r1.Query(primitives.ReadQuery{})
	require.NoError(t, err)
	require.Equal(t, int64(8), v0)
	require.Equal(t, int64(8), v1)
}

// TestReplica_S2_AWSetAddWins: a concurrent Add("x")/Remove("x") must
// converge with "x" present on both replicas (spec §8 S2).
func TestReplica_S2_AWSetAddWins(t *testing.T) {
	members := []string{"R0", "R1"}
	r0 := New("R0", members, primitives.NewAWSet(), polog.DefaultCompactionConfig(), nil)
	r1 := New("R1", members, primitives.NewAWSet(), polog.DefaultCompactionConfig(), nil)

	addEvent, err := r0.Send(primitives.AddIntent{Value: "x"})
	require.NoError(t, err)
	removeEvent, err := r1.Send(primitives.RemoveIntent{Value: "x"})
	require.NoError(t, err)

	outcome, err := r1.Receive(addEvent)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)
	outcome, err = r0.Receive(removeEvent)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)

	for _, r := range []*Replica{r0, r1} {
		present, err := r.Query(primitives.ContainsQuery{Value: "x"})
		require.NoError(t, err)
		require.True(t, present.(bool), "%s: add must win over the concurrent remove", r.Self())
	}
}

// TestReplica_S3_UWMapScopedEffect: a concurrent Put("k", Inc 1)/Remove("k")
// on an update-wins map must converge with k present, counter reading 1
// (spec §8 S3).
func TestReplica_S3_UWMapScopedEffect(t *testing.T) {
	members := []string{"R0", "R1"}
	newChild := func() crdt.PureCRDT { return primitives.NewCounter() }
	r0 := New("R0", members, compose.NewUWMap(newChild), polog.DefaultCompactionConfig(), nil)
	r1 := New("R1", members, compose.NewUWMap(newChild), polog.DefaultCompactionConfig(), nil)

	putEvent, err := r0.Send(compose.PutIntent{Key: "k", ChildIntent: primitives.IncIntent{Delta: 1}})
	require.NoError(t, err)
	removeEvent, err := r1.Send(compose.RemoveIntent{Key: "k"})
	require.NoError(t, err)

	outcome, err := r1.Receive(putEvent)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)
	outcome, err = r0.Receive(removeEvent)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)

	for _, r := range []*Replica{r0, r1} {
		present, err := r.Query(compose.ContainsKeyQuery{Key: "k"})
		require.NoError(t, err)
		require.True(t, present.(bool), "%s: concurrent put must win over the remove", r.Self())

		val, err := r.Query(compose.AtQuery{Key: "k", Query: primitives.ReadQuery{}})
		require.NoError(t, err)
		require.Equal(t, int64(1), val)
	}
}

// TestReplica_S4_CausalBufferingViaRelay: R0 emits two causally dependent
// events; R2 relays them on to R1 out of order. R1 must buffer the
// dependent event until the relay delivers its predecessor, then drain
// automatically (spec §8 S4).
func TestReplica_S4_CausalBufferingViaRelay(t *testing.T) {
	members := []string{"R0", "R1", "R2"}
	r0 := New("R0", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)
	r1 := New("R1", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)
	r2 := New("R2", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)

	e1, err := r0.Send(primitives.IncIntent{Delta: 1})
	require.NoError(t, err)
	e2, err := r0.Send(primitives.IncIntent{Delta: 10})
	require.NoError(t, err)

	// R2 receives both from R0, in order.
	outcome, err := r2.Receive(e1)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)
	outcome, err = r2.Receive(e2)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)

	// R2 relays to R1 in reverse order.
	outcome, err = r1.Receive(e2)
	require.NoError(t, err)
	require.Equal(t, Buffered, outcome)
	require.Len(t, r1.Buffered(), 1)

	v1, err := r1.Query(primitives.ReadQuery{})
	require.NoError(t, err)
	require.Equal(t, int64(0), v1, "the dependent event must not have been applied yet")

	outcome, err = r1.Receive(e1)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)
	require.Empty(t, r1.Buffered(), "the predecessor's arrival must drain the buffer")

	v1, err = r1.Query(primitives.ReadQuery{})
	require.NoError(t, err)
	require.Equal(t, int64(11), v1)
}

// TestReplica_S5_StabilityAndGC: 100 add-wins events, originated across
// three replicas and fully cross-delivered, must stabilize: the final
// value set is correct everywhere, and a closing round lets every
// replica's matrix clock learn enough about its peers to fold the bulk of
// the log into stable storage (spec §8 S5).
func TestReplica_S5_StabilityAndGC(t *testing.T) {
	members := []string{"R0", "R1", "R2"}
	replicas := []*Replica{
		New("R0", members, primitives.NewAWSet(), polog.DefaultCompactionConfig(), nil),
		New("R1", members, primitives.NewAWSet(), polog.DefaultCompactionConfig(), nil),
		New("R2", members, primitives.NewAWSet(), polog.DefaultCompactionConfig(), nil),
	}

	const total = 100
	deliver := func(origin int, e Event) {
		for i, r := range replicas {
			if i == origin {
				continue
			}
			_, err := r.Receive(e)
			require.NoError(t, err)
		}
	}

	for i := 0; i < total; i++ {
		origin := i % 3
		e, err := replicas[origin].Send(primitives.AddIntent{Value: valueName(i)})
		require.NoError(t, err)
		deliver(origin, e)
	}

	// A closing round so every replica's matrix clock learns that its
	// peers have caught up with everyone else, letting LSV advance past
	// the bulk of the 100 real events.
	for origin := range replicas {
		e, err := replicas[origin].Send(primitives.AddIntent{Value: "sentinel-" + replicas[origin].Self()})
		require.NoError(t, err)
		deliver(origin, e)
	}

	for _, r := range replicas {
		values, err := r.Query(primitives.ValuesQuery{})
		require.NoError(t, err)
		require.Len(t, values.([]string), total+len(replicas))

		for i := 0; i < total; i++ {
			present, err := r.Query(primitives.ContainsQuery{Value: valueName(i)})
			require.NoError(t, err)
			require.True(t, present.(bool))
		}

		t.Logf("%s: stable vector %v, unstable log len %d after GC round", r.Self(), r.StableVector(), r.log.Len())
	}
}

func valueName(i int) string {
	return "v" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// TestReplica_S6_CompactionUnderRandomConcurrency: 1000 increments across
// four replicas, cross-delivered in randomized order (exercising the
// delivery buffer, not just the happy path), must converge on the same
// total everywhere, and the root log's edge/node ratio must stay well
// below the unbounded-DAG case thanks to periodic transitive reduction
// and compaction (spec §8 S6, §9 guidance figure).
func TestReplica_S6_CompactionUnderRandomConcurrency(t *testing.T) {
	members := []string{"R0", "R1", "R2", "R3"}
	replicas := []*Replica{
		New("R0", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil),
		New("R1", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil),
		New("R2", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil),
		New("R3", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil),
	}

	rng := rand.New(rand.NewSource(1))
	const total = 1000
	events := make([]Event, 0, total)
	for i := 0; i < total; i++ {
		author := rng.Intn(len(replicas))
		e, err := replicas[author].Send(primitives.IncIntent{Delta: 1})
		require.NoError(t, err)
		events = append(events, e)
	}

	for dest := range replicas {
		shuffled := make([]Event, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		for _, e := range shuffled {
			if e.Author == replicas[dest].Self() {
				continue
			}
			_, err := replicas[dest].Receive(e)
			require.NoError(t, err)
		}
	}

	for _, r := range replicas {
		v, err := r.Query(primitives.ReadQuery{})
		require.NoError(t, err)
		require.Equal(t, int64(total), v, "%s must converge on the combined total", r.Self())

		ratio := r.edgeNodeRatio()
		t.Logf("%s: edge/node ratio after compaction = %.3f", r.Self(), ratio)
		require.LessOrEqualf(t, ratio, 1.3, "%s: compaction must bring the ratio down to the spec's target, not just below the uncompacted ~1.85 baseline", r.Self())
	}
}

// TestReplica_MembershipAddAndRetire exercises MembershipUpdate end to end:
// a late-joining replica can be announced, have its own event delivered to
// the others, and
// a later retirement does not invalidate already-stamped vectors (spec §6
// membership_update, §12 supplement).
func TestReplica_MembershipAddAndRetire(t *testing.T) {
	members := []string{"R0", "R1"}
	r0 := New("R0", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)
	r1 := New("R1", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)

	joinEvent, err := r0.MembershipUpdate(true, "R2")
	require.NoError(t, err)
	outcome, err := r1.Receive(joinEvent)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)
	require.ElementsMatch(t, []string{"R0", "R1", "R2"}, r1.Membership())

	r2 := New("R2", r1.Membership(), primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)
	e, err := r2.Send(primitives.IncIntent{Delta: 7})
	require.NoError(t, err)

	outcome, err = r0.Receive(e)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)
	outcome, err = r1.Receive(e)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)

	retireEvent, err := r0.MembershipUpdate(false, "R2")
	require.NoError(t, err)
	outcome, err = r1.Receive(retireEvent)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)

	v1, err := r1.Query(primitives.ReadQuery{})
	require.NoError(t, err)
	require.Equal(t, int64(7), v1, "retirement must not erase already-applied history")
}

// TestReplica_DuplicateAndProtocolFault exercises the two rejection paths:
// a redelivered event is a no-op Duplicate, and an event from an unknown
// author is a ProtocolFault (spec §6/§7).
func TestReplica_DuplicateAndProtocolFault(t *testing.T) {
	members := []string{"R0", "R1"}
	r0 := New("R0", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)
	r1 := New("R1", members, primitives.NewCounter(), polog.DefaultCompactionConfig(), nil)

	e, err := r0.Send(primitives.IncIntent{Delta: 1})
	require.NoError(t, err)

	outcome, err := r1.Receive(e)
	require.NoError(t, err)
	require.Equal(t, Delivered, outcome)

	outcome, err = r1.Receive(e)
	require.NoError(t, err)
	require.Equal(t, Duplicate, outcome)
	require.Equal(t, float64(1), testutil.ToFloat64(r1.Metrics().Duplicates))

	unknown := Event{
		Author: "ghost",
		VV:     []VVEntry{{ReplicaID: "R0", Counter: 1}, {ReplicaID: "R1", Counter: 0}},
		Op:     primitives.IncIntent{Delta: 1},
	}
	outcome, err = r1.Receive(unknown)
	require.Error(t, err)
	require.Equal(t, ProtocolFault, outcome)
}
