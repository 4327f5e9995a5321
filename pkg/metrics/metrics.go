// Package metrics exposes the Prometheus collectors used across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Intake
var (
	// IntakeCycles counts ingestion cycles by outcome
	// (completed, skipped_locked, mailbox_error, aborted).
	IntakeCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideabox_intake_cycles_total",
			Help: "Ingestion cycles by outcome",
		},
		[]string{"outcome"},
	)

	IntakeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideabox_intake_messages_total",
			Help: "Mailbox messages seen by the pipeline, by result (created, duplicate)",
		},
		[]string{"result"},
	)

	IntakeCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ideabox_intake_cycle_duration_seconds",
			Help:    "Duration of one ingestion cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// Classifier
var ClassifierResults = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ideabox_classifier_results_total",
		Help: "Classifier outcomes (ok, unavailable, failed)",
	},
	[]string{"result"},
)

// Rewards
var RewardSends = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ideabox_reward_sends_total",
		Help: "Reward notification attempts by result (sent, failed)",
	},
	[]string{"result"},
)

// Store
var (
	StoredSubmissions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ideabox_submissions",
			Help: "Number of submissions held by the record store",
		},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ideabox_persist_failures_total",
			Help: "Failed snapshot writes",
		},
	)
)

// Worker pool
var (
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideabox_worker_jobs_total",
			Help: "Worker jobs by type and result (ok, failed, dropped, timeout)",
		},
		[]string{"type", "result"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ideabox_worker_job_duration_seconds",
			Help:    "Worker job duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// HTTP
var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideabox_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ideabox_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// CircuitState is 0 closed, 1 half-open, 2 open.
var CircuitState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ideabox_circuit_breaker_state",
		Help: "Circuit breaker state by name (0 closed, 1 half-open, 2 open)",
	},
	[]string{"name"},
)
