// Package telemetry exposes prometheus metrics for the digest service; the
// HTTP server publishes them on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRuns counts completed pipeline runs by terminal status.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_pipeline_runs_total",
		Help: "Completed digest pipeline runs by status.",
	}, []string{"status"})

	// PipelineDuration observes wall-clock time of whole pipeline runs.
	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_pipeline_duration_seconds",
		Help:    "Duration of digest pipeline runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// ProbeVerdicts counts link liveness probe outcomes.
	ProbeVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_probe_verdicts_total",
		Help: "Link liveness probe verdicts.",
	}, []string{"verdict"})

	// EmailsSent counts per-recipient delivery outcomes.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_emails_total",
		Help: "Per-recipient email delivery outcomes.",
	}, []string{"status"})

	// CronAttempts counts attempts of the unattended job.
	CronAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "digest_cron_attempts_total",
		Help: "Attempts made by the scheduled digest job.",
	})
)
