// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished pipeline runs by terminal state and reason.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsworker_runs_total",
			Help: "Pipeline runs by final state and abort reason",
		},
		[]string{"state", "reason"},
	)

	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hlsworker_runs_in_flight",
			Help: "Pipeline runs currently executing",
		},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hlsworker_run_duration_seconds",
			Help:    "Wall time of a pipeline run from fetch to notification",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// VariantsTotal counts per-variant results: encoded, invalid, failed, published.
	VariantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsworker_variants_total",
			Help: "Variant processing results",
		},
		[]string{"variant", "result"},
	)

	EncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hlsworker_encode_duration_seconds",
			Help:    "Time spent in the external encoder per variant",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"variant"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsworker_uploads_total",
			Help: "Object uploads by result",
		},
		[]string{"result"},
	)

	NotifyAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsworker_notify_attempts_total",
			Help: "Backend notification attempts by outcome",
		},
		[]string{"outcome"},
	)
)
