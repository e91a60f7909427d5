// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	FitResponsesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fit_responses_parsed_total",
			Help: "Total number of fit responses parsed by source",
		},
		[]string{"source"},
	)

	FitCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fit_cache_lookups_total",
			Help: "Total number of fit cache lookups by result",
		},
		[]string{"result"},
	)

	FitCacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fit_cache_refreshes_total",
			Help: "Total number of fit cache refreshes by outcome",
		},
		[]string{"outcome"},
	)

	TierDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tier_decisions_total",
			Help: "Total number of tier gate decisions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	ComputeStageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fit_compute_stage_transitions_total",
			Help: "Total number of fit compute operation stage transitions",
		},
		[]string{"from", "to"},
	)
)
