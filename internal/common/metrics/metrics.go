// Package metrics exposes Prometheus collectors for the agent worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallSessionsTotal counts agent call sessions by agent kind and outcome.
	CallSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_call_sessions_total",
			Help: "Total number of agent call sessions",
		},
		[]string{"agent", "outcome"},
	)

	// CallSessionDuration observes call session duration in seconds.
	CallSessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_call_session_duration_seconds",
			Help:    "Duration of agent call sessions",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"agent"},
	)

	// ActiveSessions tracks currently running call sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_active_sessions",
			Help: "Number of currently active call sessions",
		},
	)

	// ToolInvocationsTotal counts function tool invocations by tool and status.
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tool_invocations_total",
			Help: "Total number of function tool invocations",
		},
		[]string{"tool", "status"},
	)

	// ToolDuration observes function tool execution time in seconds.
	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_tool_duration_seconds",
			Help:    "Duration of function tool executions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// ExternalRequestsTotal counts outbound API requests by service and status.
	ExternalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_external_requests_total",
			Help: "Total number of outbound external API requests",
		},
		[]string{"service", "status"},
	)

	// ExternalRequestDuration observes outbound API latency in seconds.
	ExternalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_external_request_duration_seconds",
			Help:    "Duration of outbound external API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// MemoryIngestQueueDepth tracks pending background memory ingestions.
	MemoryIngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_memory_ingest_queue_depth",
			Help: "Number of pending background memory ingestions",
		},
	)

	// MemoryIngestTotal counts memory ingestion attempts by status.
	MemoryIngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_memory_ingest_total",
			Help: "Total number of memory ingestion attempts",
		},
		[]string{"status"},
	)

	// DeviceRPCTotal counts device RPC calls by method and status.
	DeviceRPCTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_device_rpc_total",
			Help: "Total number of device RPC calls",
		},
		[]string{"method", "status"},
	)

	// WorkerReconnectsTotal counts worker websocket reconnect attempts.
	WorkerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_worker_reconnects_total",
			Help: "Total number of worker websocket reconnects",
		},
	)

	// ErrorsTotal counts standardized errors by code and category.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_errors_total",
			Help: "Total number of standardized errors",
		},
		[]string{"code", "category"},
	)
)

// RecordToolInvocation records a tool invocation with its duration.
func RecordToolInvocation(tool, status string, seconds float64) {
	ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
	ToolDuration.WithLabelValues(tool).Observe(seconds)
}

// RecordExternalRequest records an outbound API request with its duration.
func RecordExternalRequest(service, status string, seconds float64) {
	ExternalRequestsTotal.WithLabelValues(service, status).Inc()
	ExternalRequestDuration.WithLabelValues(service).Observe(seconds)
}
