// Package metrics provides Prometheus instrumentation for the gateway,
// following the teacher pack's promauto-vars-by-concern convention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP/SSE surface metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	SSEConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sse_connections_active",
		Help: "Number of currently open SSE streams.",
	})

	SSEEventsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sse_events_sent_total",
		Help: "Total number of SSE events delivered to consumers.",
	}, []string{"event_type"})

	SSEReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sse_reconnects_total",
		Help: "Total number of SSE stream reconnects with replay.",
	})
)

// Dispatcher/task metrics.
var (
	TasksSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_tasks_submitted_total",
		Help: "Total number of tasks submitted to the dispatcher.",
	}, []string{"agent"})

	TasksCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_tasks_completed_total",
		Help: "Total number of tasks that reached a terminal status.",
	}, []string{"agent", "status"})

	TaskDispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_task_dispatch_duration_seconds",
		Help:    "Time from task submission to first agent response.",
		Buckets: prometheus.DefBuckets,
	}, []string{"agent"})

	PendingTasksGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_dispatcher_pending_tasks",
		Help: "Number of tasks currently awaiting a reply.",
	})
)

// Registry metrics.
var (
	RegisteredAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_registered_agents",
		Help: "Number of agents currently registered and healthy.",
	})

	RegisteredGateways = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_registered_gateways",
		Help: "Number of gateway instances currently registered.",
	})
)

// Scheduler metrics.
var (
	SchedulerIsLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_scheduler_is_leader",
		Help: "1 if this instance currently holds the scheduler leader lease, else 0.",
	})

	ScheduledTaskFiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_scheduled_task_fires_total",
		Help: "Total number of scheduled task trigger fires.",
	}, []string{"outcome"})

	ScheduledTasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_scheduled_tasks_running",
		Help: "Number of scheduled task executions currently in flight.",
	})
)

// Document conversion metrics.
var (
	DocConversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_doc_conversions_total",
		Help: "Total number of document conversion requests.",
	}, []string{"format", "cache"})

	DocConversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_doc_conversion_duration_seconds",
		Help:    "Document conversion latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"format"})
)

// Retention metrics.
var (
	RetentionRowsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_retention_rows_deleted_total",
		Help: "Total number of rows pruned by the data retention service.",
	}, []string{"table"})
)
