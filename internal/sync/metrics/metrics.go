package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed tracks dispatched events per source and event kind.
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_events_processed_total",
			Help: "Total number of events dispatched to handlers",
		},
		[]string{"source", "event"},
	)

	// HandlerErrors tracks handler failures that were caught and recorded.
	HandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_handler_errors_total",
			Help: "Total number of handler errors caught by the dispatcher",
		},
		[]string{"source", "event"},
	)

	// UnknownEvents tracks events with no registered handler.
	UnknownEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_unknown_events_total",
			Help: "Total number of events skipped for lack of a handler",
		},
		[]string{"source"},
	)

	// MalformedEvents tracks logs that failed schema decoding.
	MalformedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_malformed_events_total",
			Help: "Total number of logs that failed schema decoding",
		},
		[]string{"source"},
	)

	// EndpointFailures tracks failed calls per endpoint.
	EndpointFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_endpoint_failures_total",
			Help: "Total number of failed endpoint calls",
		},
		[]string{"source", "endpoint"},
	)

	// EndpointDemotions tracks endpoints taken out of rotation.
	EndpointDemotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_endpoint_demotions_total",
			Help: "Total number of endpoint demotions to cooling_down or unhealthy",
		},
		[]string{"source", "endpoint"},
	)

	// Reconnects tracks pipeline reconnections per source.
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_reconnects_total",
			Help: "Total number of pipeline reconnections",
		},
		[]string{"source", "reason"},
	)

	// HeadHeight is the latest observed head height per source.
	HeadHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "todosync_head_height",
			Help: "Latest observed head height of the source",
		},
		[]string{"source"},
	)

	// CursorBlock is the last safely processed block per source.
	CursorBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "todosync_cursor_block",
			Help: "Last safely processed block of the source",
		},
		[]string{"source"},
	)

	// RecoveryChunks tracks chunked catch-up requests issued per source.
	RecoveryChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_recovery_chunks_total",
			Help: "Total number of chunked log-range requests during recovery",
		},
		[]string{"source"},
	)

	// ReconcileJobs tracks single-entity reconciliations by outcome.
	ReconcileJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_reconcile_jobs_total",
			Help: "Total number of single-entity reconciliation jobs",
		},
		[]string{"source", "outcome"},
	)

	// DBConnectionPoolUsage is the database pool usage percentage.
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "todosync_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)
