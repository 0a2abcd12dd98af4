// Package metrics exposes broker call statistics as Prometheus gauges,
// counters, and histograms, grounded on the gateway's own
// internal/metrics package (github.com/prometheus/client_golang,
// promauto constructors, a namespaced struct of vectors built once).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink holds every metric brokerd emits. Unlike the gateway's package-level
// singleton, Sink is constructed explicitly by the caller (typically once,
// in cmd/brokerd) and threaded through via BrokerMiddleware, so tests can
// build an isolated registry instead of sharing prometheus's default one.
type Sink struct {
	CallsTotal    *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	ActiveCalls   prometheus.Gauge
	CircuitState  *prometheus.GaugeVec
	EventsEmitted *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
}

// New registers every metric against reg and returns the Sink. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose via the global /metrics handler.
func New(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brokerd",
				Name:      "calls_total",
				Help:      "Total action calls, by action and outcome.",
			},
			[]string{"action", "success"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "brokerd",
				Name:      "call_duration_seconds",
				Help:      "Action call duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		ActiveCalls: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "brokerd",
				Name:      "active_calls",
				Help:      "Calls currently in flight.",
			},
		),
		CircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "brokerd",
				Name:      "circuit_breaker_state",
				Help:      "Per-action circuit breaker state (0=CLOSED, 1=HALF_OPEN, 2=OPEN).",
			},
			[]string{"action"},
		),
		EventsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brokerd",
				Name:      "events_emitted_total",
				Help:      "Total events emitted, by event name.",
			},
			[]string{"event"},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "brokerd",
				Name:      "cache_hits_total",
				Help:      "Total action-result cache hits.",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "brokerd",
				Name:      "cache_misses_total",
				Help:      "Total action-result cache misses.",
			},
		),
	}
}
