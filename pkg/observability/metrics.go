// Package observability holds the Prometheus collectors and the tracer used across the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "store_usage"

// Metrics groups every collector the service records to.
type Metrics struct {
	ReportsParsed    *prometheus.CounterVec
	ParseDiagnostics *prometheus.CounterVec
	ParseDuration    prometheus.Histogram
	Replacements     *prometheus.CounterVec
	WeekEdits        *prometheus.CounterVec
	Backfilled       prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ReportsParsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_parsed_total",
			Help:      "Uploaded usage reports by extraction outcome.",
		}, []string{"outcome"}),
		ParseDiagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_diagnostics_total",
			Help:      "Recovery gaps reported while parsing usage reports.",
		}, []string{"kind"}),
		ParseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent extracting and parsing one report.",
			Buckets:   prometheus.DefBuckets,
		}),
		Replacements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replacements_total",
			Help:      "Full usage replacements by outcome.",
		}, []string{"outcome"}),
		WeekEdits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "week_edits_total",
			Help:      "Single week edits by outcome.",
		}, []string{"outcome"}),
		Backfilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_backfill_rows_total",
			Help:      "Stored product rows rewritten by conversion backfills.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}
