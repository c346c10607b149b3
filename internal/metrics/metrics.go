// Package metrics holds the Prometheus collectors for event sync, dead-lettering,
// pattern detection and graph queries. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fingraph"

// Metrics groups every collector exported by the engine.
type Metrics struct {
	EventsProcessed     *prometheus.CounterVec
	EventRetries        *prometheus.CounterVec
	DeadLetters         *prometheus.CounterVec
	DeadLetterFailures  prometheus.Counter
	DetectorRuns        *prometheus.CounterVec
	DetectorPatterns    *prometheus.CounterVec
	DetectorDuration    *prometheus.HistogramVec
	GraphQueryDuration  *prometheus.HistogramVec
	GraphQueryErrors    *prometheus.CounterVec
	PatternCacheLookups *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_total",
			Help:      "Lifecycle events handled, by entity kind and outcome.",
		}, []string{"kind", "outcome"}),
		EventRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_retries_total",
			Help:      "Failed event attempts that were scheduled for retry.",
		}, []string{"kind"}),
		DeadLetters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Events published to the dead-letter destination, by original topic.",
		}, []string{"topic"}),
		DeadLetterFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letter_publish_failures_total",
			Help:      "Dead-letter envelopes that could not be published.",
		}),
		DetectorRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_detector_runs_total",
			Help:      "Detector executions by detector and outcome.",
		}, []string{"detector", "outcome"}),
		DetectorPatterns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_detector_patterns_total",
			Help:      "Patterns emitted by each detector.",
		}, []string{"detector"}),
		DetectorDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pattern_detector_duration_seconds",
			Help:      "Detector latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"detector"}),
		GraphQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_query_duration_seconds",
			Help:      "Graph statement latency by access mode.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"mode"}),
		GraphQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_query_errors_total",
			Help:      "Graph statements that returned an error.",
		}, []string{"mode"}),
		PatternCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_cache_lookups_total",
			Help:      "Pattern cache lookups by result.",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Ops server requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Ops server latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) EventHandled(kind, outcome string) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) EventRetried(kind string) {
	if m == nil {
		return
	}
	m.EventRetries.WithLabelValues(kind).Inc()
}

func (m *Metrics) DeadLettered(topic string) {
	if m == nil {
		return
	}
	m.DeadLetters.WithLabelValues(topic).Inc()
}

func (m *Metrics) DeadLetterPublishFailed() {
	if m == nil {
		return
	}
	m.DeadLetterFailures.Inc()
}

// DetectorFinished records one detector execution.
func (m *Metrics) DetectorFinished(detector, outcome string, seconds float64, patterns int) {
	if m == nil {
		return
	}
	m.DetectorRuns.WithLabelValues(detector, outcome).Inc()
	m.DetectorDuration.WithLabelValues(detector).Observe(seconds)
	m.DetectorPatterns.WithLabelValues(detector).Add(float64(patterns))
}

func (m *Metrics) PatternCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PatternCacheLookups.WithLabelValues(result).Inc()
}

// ObserveGraphQuery satisfies graph.QueryObserver.
func (m *Metrics) ObserveGraphQuery(mode string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.GraphQueryDuration.WithLabelValues(mode).Observe(seconds)
	if err != nil {
		m.GraphQueryErrors.WithLabelValues(mode).Inc()
	}
}

// HTTPRequestServed records one ops server response.
func (m *Metrics) HTTPRequestServed(route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}
