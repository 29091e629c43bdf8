// Package observability exposes the service's prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PipelineRuns counts completed pipeline runs by outcome
	// (ok, catalog_error, llm_error, malformed, dispatch_error).
	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_pipeline_runs_total",
			Help: "Completed agent pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)

	// ToolExecutions counts dispatched tool executions by tool name.
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tool_executions_total",
			Help: "Dispatched tool executions by tool.",
		},
		[]string{"tool"},
	)

	// ControlTimeouts counts device controls that expired unacknowledged.
	ControlTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_control_timeouts_total",
			Help: "Device control commands that timed out by device.",
		},
		[]string{"device"},
	)
)

func init() {
	prometheus.MustRegister(PipelineRuns, ToolExecutions, ControlTimeouts)
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }
