// Package metrics holds the process-wide Prometheus collectors. All
// collectors register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts URL cache reads by tier (l1, l2) and result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortener_cache_lookups_total",
		Help: "URL cache lookups by tier and result.",
	}, []string{"tier", "result"})

	ClickIncrements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortener_click_increments_total",
		Help: "Click accumulator increments by result.",
	}, []string{"result"})

	FlushRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortener_flush_runs_total",
		Help: "Analytics flush runs by outcome (completed, skipped, failed).",
	}, []string{"outcome"})

	FlushProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortener_flush_processed_total",
		Help: "Short codes whose pending clicks were applied to the durable store.",
	})

	FlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortener_flush_errors_total",
		Help: "Short codes that failed to flush, including orphans.",
	})

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shortener_flush_duration_seconds",
		Help:    "Duration of analytics flush runs.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// RateLimitDecisions is labelled by key prefix, never by client.
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortener_ratelimit_decisions_total",
		Help: "Rate limiter decisions by key prefix and decision (allowed, rejected, failopen).",
	}, []string{"prefix", "decision"})

	AllocatorBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortener_allocator_batches_total",
		Help: "Counter batches reserved from the durable store.",
	})

	AllocatorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortener_allocator_failures_total",
		Help: "Failed counter batch reservations.",
	})

	StoreDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortener_store_degraded_total",
		Help: "Key-value store failures absorbed by a component.",
	}, []string{"component"})

	PeriodicRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortener_periodic_runs_total",
		Help: "Background task runs by task and outcome (ok, error, panic, overlap).",
	}, []string{"task", "outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
