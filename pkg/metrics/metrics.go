package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Execution metrics
	ExecutionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_executions_started_total",
			Help: "Total number of flow executions started",
		},
		[]string{"triggered_by"},
	)

	ExecutionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_executions_completed_total",
			Help: "Total number of flow executions completed",
		},
		[]string{"triggered_by", "status"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailflow_execution_duration_seconds",
			Help:    "Flow execution duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	ItemsProcessed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailflow_execution_items",
			Help:    "Number of messages fetched per execution",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	// Node metrics
	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_classifications_total",
			Help: "Total number of item classifications",
		},
		[]string{"provider", "outcome"},
	)

	Actions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_actions_total",
			Help: "Total number of mailbox actions applied",
		},
		[]string{"action", "result"},
	)

	// Provider metrics
	MailboxRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_mailbox_requests_total",
			Help: "Total number of mailbox API requests",
		},
		[]string{"op", "status"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_token_refreshes_total",
			Help: "Total number of OAuth token refresh attempts",
		},
		[]string{"result"},
	)

	// Scheduler metrics
	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_scheduled_runs_total",
			Help: "Total number of scheduled executions dispatched",
		},
		[]string{"result"},
	)
)
