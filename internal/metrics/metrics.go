// Package metrics defines the Prometheus instrumentation for the sync
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors the engine updates at runtime.
type Metrics struct {
	// EventsReceived counts decoded push events by event name.
	EventsReceived *prometheus.CounterVec

	// MergesApplied counts order patches merged into the snapshot.
	MergesApplied prometheus.Counter

	// PollCycles counts fallback poll ticks that ran a fetch.
	PollCycles prometheus.Counter

	// FetchErrors counts failed reconciliation fetches.
	FetchErrors prometheus.Counter

	// FetchDuration observes reconciliation fetch latency.
	FetchDuration prometheus.Histogram

	// Live is 1 while the push channel is usable, 0 otherwise.
	Live prometheus.Gauge

	// Reconnects counts push channel recoveries.
	Reconnects prometheus.Counter
}

// New creates the metric set registered against reg. A nil registerer
// yields an isolated throwaway registry, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barsync",
			Name:      "events_received_total",
			Help:      "Push events received, by event name.",
		}, []string{"event"}),
		MergesApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "barsync",
			Name:      "merges_applied_total",
			Help:      "Order patches merged into the local snapshot.",
		}),
		PollCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "barsync",
			Name:      "poll_cycles_total",
			Help:      "Fallback poll cycles that ran a reconciliation fetch.",
		}),
		FetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "barsync",
			Name:      "fetch_errors_total",
			Help:      "Reconciliation fetches that failed.",
		}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "barsync",
			Name:      "fetch_duration_seconds",
			Help:      "Reconciliation fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		Live: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "barsync",
			Name:      "push_channel_live",
			Help:      "1 while the push channel is usable, 0 otherwise.",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "barsync",
			Name:      "push_reconnects_total",
			Help:      "Push channel recoveries after a drop.",
		}),
	}
}
