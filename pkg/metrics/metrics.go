// Package metrics declares the Prometheus collectors exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSpawnedTotal counts every successful Job Launcher call.
	JobsSpawnedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scaler_jobs_spawned_total",
		Help: "Total number of worker jobs spawned, by type",
	}, []string{"type"})

	// JobsTerminatedTotal counts every successful Job Terminator call.
	JobsTerminatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scaler_jobs_terminated_total",
		Help: "Total number of worker jobs terminated, by type",
	}, []string{"type"})

	// TickDuration measures wall-clock time per controller tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scaler_tick_duration_seconds",
		Help:    "Duration of one scaling controller tick",
		Buckets: prometheus.DefBuckets,
	})

	// ReportsTotal counts incoming worker reports by endpoint.
	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scaler_reports_total",
		Help: "Total number of worker reports received",
	}, []string{"endpoint"})

	// HTTPRequestDuration measures Read/Report API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scaler_http_request_duration_seconds",
		Help:    "Duration of HTTP requests served by the controller",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
