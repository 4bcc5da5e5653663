package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted tracks indexing sessions by the action that launched them
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txscope_sessions_started_total",
			Help: "Total number of indexing sessions started",
		},
		[]string{"action"},
	)

	// SessionsCompleted tracks finished sessions by outcome
	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txscope_sessions_completed_total",
			Help: "Total number of indexing sessions finished",
		},
		[]string{"outcome"},
	)

	// StepsCompleted tracks completed pipeline steps
	StepsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txscope_steps_completed_total",
			Help: "Total number of pipeline steps completed",
		},
		[]string{"step"},
	)

	// StepsFailed tracks failed step attempts by error kind
	StepsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txscope_steps_failed_total",
			Help: "Total number of failed step attempts",
		},
		[]string{"step", "kind"},
	)

	// RetriesScheduled tracks automatic retries per step
	RetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txscope_retries_scheduled_total",
			Help: "Total number of automatic step retries",
		},
		[]string{"step"},
	)

	// StepDuration tracks how long each step takes to complete
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "txscope_step_duration_seconds",
			Help:    "Pipeline step duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	// PagesFetched tracks history API pages downloaded
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txscope_pages_fetched_total",
			Help: "Total number of history API pages fetched",
		},
		[]string{"network"},
	)

	// APIErrorsTotal tracks upstream API failures
	APIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txscope_api_errors_total",
			Help: "Total number of history API errors",
		},
		[]string{"network", "status"},
	)

	// CacheHits tracks result cache hits and misses
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txscope_cache_requests_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"result"},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "txscope_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
