// Package metrics exposes the Prometheus gauges and counters the worker
// pipeline and scheduler update, served at /metrics by the separate metrics
// listener (METRICS_ADDR) that cmd/bearmemorid starts.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// JobsEnqueued counts jobs dispatched per job_type.
	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bearmemori_jobs_enqueued_total",
		Help: "LLM jobs enqueued, by job_type.",
	}, []string{"job_type"})

	// JobsCompleted counts terminal job outcomes per job_type and status.
	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bearmemori_jobs_completed_total",
		Help: "LLM jobs reaching a terminal state, by job_type and status.",
	}, []string{"job_type", "status"})

	// JobRetries counts retry attempts per job_type and failure family.
	JobRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bearmemori_job_retries_total",
		Help: "LLM job retry attempts, by job_type and failure family.",
	}, []string{"job_type", "family"})

	// QueueDepth is a per-job-type gauge for queued (not yet processing)
	// jobs. It is registered, but no package sets it, so it always reads 0.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bearmemori_queue_depth",
		Help: "Queued LLM jobs awaiting processing, by job_type.",
	}, []string{"job_type"})

	// SchedulerTickDuration observes how long each housekeeping tick takes.
	SchedulerTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bearmemori_scheduler_tick_seconds",
		Help:    "Duration of each housekeeping scheduler tick.",
		Buckets: prometheus.DefBuckets,
	})

	// SchedulerTaskErrors counts panics/errors recovered within one
	// housekeeping task, by task name.
	SchedulerTaskErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bearmemori_scheduler_task_errors_total",
		Help: "Housekeeping task failures recovered without aborting the tick.",
	}, []string{"task"})

	// QueuePaused gauges whether a stream is currently in the unavailable
	// retry family (1) or healthy (0), by stream name.
	QueuePaused = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bearmemori_queue_paused",
		Help: "1 if the stream's LLM backend is classified unavailable, 0 otherwise.",
	}, []string{"stream"})
)

func init() {
	prometheus.MustRegister(JobsEnqueued, JobsCompleted, JobRetries, QueueDepth, SchedulerTickDuration, SchedulerTaskErrors, QueuePaused)
}
