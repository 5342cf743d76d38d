// Package metrics exposes process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ProviderCallsTotal  *prometheus.CounterVec
	ProviderDuration    *prometheus.HistogramVec
	CacheLookupsTotal   *prometheus.CounterVec
	QuotaDeniedTotal    prometheus.Counter
	ScansTotal          *prometheus.CounterVec
)

func Init() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Total number of external capability calls.",
		},
		[]string{"provider", "status"}, // status: success, failure
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Duration of external capability calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"provider"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Result cache lookups by kind and outcome.",
		},
		[]string{"kind", "outcome"}, // kind: vision, price; outcome: hit, miss
	)

	QuotaDeniedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_denied_total",
			Help: "Requests rejected because the daily quota was exhausted.",
		},
	)

	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Completed scan pipeline runs.",
		},
		[]string{"status"}, // status: success, failure
	)
}

// ObserveCache records a cache lookup outcome. Safe to call before Init;
// it becomes a no-op.
func ObserveCache(kind string, hit bool) {
	if CacheLookupsTotal == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	CacheLookupsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveProvider records one external call outcome. Safe to call before
// Init.
func ObserveProvider(provider string, seconds float64, err error) {
	if ProviderCallsTotal == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	ProviderCallsTotal.WithLabelValues(provider, status).Inc()
	ProviderDuration.WithLabelValues(provider).Observe(seconds)
}
