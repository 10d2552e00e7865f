package replica

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments one replica reports (spec §12
// supplement): send/receive counts, buffer depth, stabilization activity,
// and the compaction edge/node ratio an operator can compare against the
// guidance figure from spec §9 ("~1.85 at 1000 events / 4 replicas").
// Registered on a private Registry rather than the global
// prometheus.DefaultRegisterer — each Replica is a self-contained value
// (spec §9 "no global state"), so its metrics are too.
type Metrics struct {
	Registry *prometheus.Registry

	EventsSent         prometheus.Counter
	EventsReceived     prometheus.Counter
	Duplicates         prometheus.Counter
	Buffered           prometheus.Gauge
	LastStabilizeCount prometheus.Gauge
	EdgeNodeRatio      prometheus.Gauge
}

// NewMetrics constructs and registers a fresh instrument set.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "causalcrdt_replica_events_sent_total",
			Help: "Events produced by this replica's Send.",
		}),
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "causalcrdt_replica_events_received_total",
			Help: "Events this replica delivered via Receive.",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "causalcrdt_replica_duplicates_total",
			Help: "Inbound events rejected as already-observed duplicates.",
		}),
		Buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "causalcrdt_replica_buffered_events",
			Help: "Events currently held pending causal readiness.",
		}),
		LastStabilizeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "causalcrdt_replica_last_stabilize_count",
			Help: "Events folded into stable storage by the most recent LSV advance.",
		}),
		EdgeNodeRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "causalcrdt_polog_edge_node_ratio",
			Help: "Root log edges/nodes ratio, for comparison against the spec's compaction guidance figure.",
		}),
	}
	m.Registry.MustRegister(
		m.EventsSent,
		m.EventsReceived,
		m.Duplicates,
		m.Buffered,
		m.LastStabilizeCount,
		m.EdgeNodeRatio,
	)
	return m
}
