// Package metrics holds the Prometheus collectors for lookups, upstream
// fetches, and the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup outcomes.
const (
	OutcomeFresh     = "fresh"
	OutcomeUnchanged = "unchanged"
	OutcomeChanged   = "changed"
	OutcomeError     = "error"
)

// Metrics provides observability for name-history lookups.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Lookup outcomes: fresh, unchanged, changed, error
	LookupOutcome *prometheus.CounterVec

	// Full lookup latency including store and fetch
	LookupLatency prometheus.Histogram

	// Upstream fetch results by error kind ("ok" on success)
	FetchResult *prometheus.CounterVec

	// Upstream fetch latency
	FetchLatency prometheus.Histogram

	// Lookups answered by another in-flight lookup for the same identifier
	SharedLookups prometheus.Counter

	// Identifiers seeded or skipped by bulk import
	ImportedIdentifiers *prometheus.CounterVec

	// HTTP requests by route pattern and status code
	HTTPRequests *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on reg.
// Tests pass prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LookupOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "namehist_lookup_outcomes_total",
			Help: "Total name-history lookups by outcome",
		}, []string{"outcome"}),

		LookupLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "namehist_lookup_duration_seconds",
			Help:    "Duration of name-history lookups including store access and upstream fetch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		FetchResult: f.NewCounterVec(prometheus.CounterOpts{
			Name: "namehist_fetch_results_total",
			Help: "Total upstream profile fetches by result",
		}, []string{"result"}),

		FetchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "namehist_fetch_duration_seconds",
			Help:    "Duration of upstream profile fetches",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		SharedLookups: f.NewCounter(prometheus.CounterOpts{
			Name: "namehist_lookups_shared_total",
			Help: "Lookups that reused the result of a concurrent lookup for the same identifier",
		}),

		ImportedIdentifiers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "namehist_import_identifiers_total",
			Help: "Identifiers processed by bulk import by result",
		}, []string{"result"}), // result: "seeded", "skipped"

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "namehist_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		}, []string{"route", "status"}),
	}
}

// IncrementLookup records a lookup outcome.
func (m *Metrics) IncrementLookup(outcome string) {
	if m != nil {
		m.LookupOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveLookupLatency records the duration of a lookup.
func (m *Metrics) ObserveLookupLatency(d time.Duration) {
	if m != nil {
		m.LookupLatency.Observe(d.Seconds())
	}
}

// IncrementFetch records an upstream fetch result.
func (m *Metrics) IncrementFetch(result string) {
	if m != nil {
		m.FetchResult.WithLabelValues(result).Inc()
	}
}

// ObserveFetchLatency records the duration of an upstream fetch.
func (m *Metrics) ObserveFetchLatency(d time.Duration) {
	if m != nil {
		m.FetchLatency.Observe(d.Seconds())
	}
}

// IncrementShared records a lookup served by a concurrent one.
func (m *Metrics) IncrementShared() {
	if m != nil {
		m.SharedLookups.Inc()
	}
}

// IncrementImported records a bulk-import result for one identifier.
func (m *Metrics) IncrementImported(result string) {
	if m != nil {
		m.ImportedIdentifiers.WithLabelValues(result).Inc()
	}
}

// IncrementHTTPRequest records a served HTTP request.
func (m *Metrics) IncrementHTTPRequest(route, status string) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(route, status).Inc()
	}
}
