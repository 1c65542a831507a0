package metrics

import "github.com/prometheus/client_golang/prometheus"

// Observer records a value with optional label values.
type Observer interface {
	Observe(val float64, labels ...string)

	prometheus.Collector
}

// Metrics is the set of instruments of the suggestion workflow.
type Metrics struct {
	Submissions        Observer // no labels
	Votes              Observer // direction, action
	Resolutions        Observer // status
	ResolveLatency     Observer // status
	SideEffectFailures Observer // side_effect
	DataDeletions      Observer // no labels
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Submissions,
		m.Votes,
		m.Resolutions,
		m.ResolveLatency,
		m.SideEffectFailures,
		m.DataDeletions,
	}
}

// New builds the workflow instruments. They are not registered anywhere;
// pass Collectors to Serve or a registry of your own.
func New() *Metrics {
	return &Metrics{
		Submissions: NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "suggestbot",
					Subsystem: "suggestions",
					Name:      "submitted_total",
					Help:      "Number of suggestions created.",
				},
			),
		),
		Votes: NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "suggestbot",
					Subsystem: "suggestions",
					Name:      "votes_total",
					Help:      "Number of vote toggles by direction and resulting action.",
				},
				[]string{"direction", "action"},
			),
		),
		Resolutions: NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "suggestbot",
					Subsystem: "suggestions",
					Name:      "resolved_total",
					Help:      "Number of suggestions approved or rejected.",
				},
				[]string{"status"},
			),
		),
		ResolveLatency: NewPromObserverVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
					Namespace: "suggestbot",
					Subsystem: "suggestions",
					Name:      "resolve_latency_seconds",
					Help:      "How long approving or rejecting takes up to the card edit, in seconds.",
				},
				[]string{"status"},
			),
		),
		SideEffectFailures: NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "suggestbot",
					Subsystem: "suggestions",
					Name:      "side_effect_failures_total",
					Help:      "Best-effort deliveries (review copies, direct messages, card edits) that failed.",
				},
				[]string{"side_effect"},
			),
		),
		DataDeletions: NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "suggestbot",
					Subsystem: "privacy",
					Name:      "scrubbed_records_total",
					Help:      "Number of records a data deletion request touched.",
				},
			),
		),
	}
}
