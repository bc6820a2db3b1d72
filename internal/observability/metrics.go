// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Market data metrics
	MetricsCacheLookups *prometheus.CounterVec
	ProviderFailures    *prometheus.CounterVec
	ProviderLatency     prometheus.Histogram

	// Guard metrics
	GuardDecisions *prometheus.CounterVec

	// Idempotency metrics
	IdempotencyChecks *prometheus.CounterVec

	// Trigger metrics
	TriggerOutcomes   *prometheus.CounterVec
	ReconcileCycles   *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram

	// Position cache metrics
	PositionCacheRepairs *prometheus.CounterVec

	// Event metrics
	EventsPublished    prometheus.Counter
	EventHandlerPanics prometheus.Counter
	FeedReconnects     prometheus.Counter

	// Health metrics
	LastSuccessfulReconcile prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a new Metrics instance registered on reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "autotrade"
	}
	factory := promauto.With(reg)

	return &Metrics{
		MetricsCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "cache_lookups_total",
			Help:      "Metrics cache lookups by result (hit, miss)",
		}, []string{"result"}),
		ProviderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "provider_failures_total",
			Help:      "Market data provider failures by kind",
		}, []string{"kind"}),
		ProviderLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "provider_latency_seconds",
			Help:      "Market data provider call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),

		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Market-cap guard decisions by reason",
		}, []string{"reason"}),

		IdempotencyChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "idempotency",
			Name:      "checks_total",
			Help:      "Idempotency gate checks by namespace and result (acquired, held, error)",
		}, []string{"namespace", "result"}),

		TriggerOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "outcomes_total",
			Help:      "Auto-trade trigger outcomes by trigger path and outcome",
		}, []string{"trigger", "outcome"}),
		ReconcileCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "cycles_total",
			Help:      "Reconciliation cycles by status",
		}, []string{"status"}),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "cycle_duration_seconds",
			Help:      "Reconciliation cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),

		PositionCacheRepairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poscache",
			Name:      "repairs_total",
			Help:      "Position cache self-healing repairs by kind (stale_index, corrupt_payload)",
		}, []string{"kind"}),

		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Position-closed events published on the bus",
		}),
		EventHandlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handler_panics_total",
			Help:      "Event handler panics recovered by the bus consumer",
		}),
		FeedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "feed_reconnects_total",
			Help:      "Websocket position feed reconnect attempts",
		}),

		LastSuccessfulReconcile: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_reconcile_timestamp",
			Help:      "Unix timestamp of last successful reconciliation cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCacheLookup records a metrics cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		DefaultMetrics.MetricsCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	DefaultMetrics.MetricsCacheLookups.WithLabelValues("miss").Inc()
}

// RecordProviderCall records a provider call latency and, on failure, its kind.
func RecordProviderCall(d time.Duration, failureKind string) {
	DefaultMetrics.ProviderLatency.Observe(d.Seconds())
	if failureKind != "" {
		DefaultMetrics.ProviderFailures.WithLabelValues(failureKind).Inc()
	}
}

// RecordGuardDecision records a guard decision.
func RecordGuardDecision(reason string) {
	DefaultMetrics.GuardDecisions.WithLabelValues(reason).Inc()
}

// RecordIdempotencyCheck records an idempotency gate check.
func RecordIdempotencyCheck(namespace, result string) {
	DefaultMetrics.IdempotencyChecks.WithLabelValues(namespace, result).Inc()
}

// RecordTriggerOutcome records the outcome of one trigger attempt.
func RecordTriggerOutcome(trigger, outcome string) {
	DefaultMetrics.TriggerOutcomes.WithLabelValues(trigger, outcome).Inc()
}

// RecordReconcileCycle records a reconciliation cycle.
func RecordReconcileCycle(status string, d time.Duration) {
	DefaultMetrics.ReconcileCycles.WithLabelValues(status).Inc()
	DefaultMetrics.ReconcileDuration.Observe(d.Seconds())
	if status == "ok" {
		DefaultMetrics.LastSuccessfulReconcile.SetToCurrentTime()
	}
}

// RecordCacheRepair records a position cache self-healing repair.
func RecordCacheRepair(kind string) {
	DefaultMetrics.PositionCacheRepairs.WithLabelValues(kind).Inc()
}

// RecordEventPublished increments the published events counter.
func RecordEventPublished() {
	DefaultMetrics.EventsPublished.Inc()
}

// RecordHandlerPanic increments the recovered handler panics counter.
func RecordHandlerPanic() {
	DefaultMetrics.EventHandlerPanics.Inc()
}

// RecordFeedReconnect increments the feed reconnect counter.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}
