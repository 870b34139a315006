// Package observability provides Prometheus metrics instrumentation for the coreengine.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// RUN METRICS
// =============================================================================

var (
	runExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchtown_run_executions_total",
			Help: "Total number of engine runs",
		},
		[]string{"run", "status"}, // status: completed, error, cancelled
	)

	runDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchtown_run_duration_seconds",
			Help:    "Engine run duration in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"run"},
	)
)

// =============================================================================
// STAGE METRICS
// =============================================================================

var (
	stageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchtown_stage_executions_total",
			Help: "Total number of stage executions",
		},
		[]string{"stage", "status"}, // status: success, error
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchtown_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"stage"},
	)

	stageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchtown_stage_transitions_total",
			Help: "Total number of stage transitions taken",
		},
		[]string{"from", "to", "outcome"},
	)
)

// =============================================================================
// ALLOCATION METRICS
// =============================================================================

var allocationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "researchtown_allocations_total",
		Help: "Total number of participant allocation calls",
	},
	[]string{"role", "status"}, // status: success, error
)

// =============================================================================
// EVALUATION / LLM METRICS
// =============================================================================

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchtown_evaluations_total",
			Help: "Total number of artifact quality evaluations",
		},
		[]string{"kind", "status"},
	)

	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchtown_llm_calls_total",
			Help: "Total number of LLM calls issued by evaluators",
		},
		[]string{"model", "status"},
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchtown_llm_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)
)

// =============================================================================
// GRPC METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchtown_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"},
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchtown_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordRun records a finished engine run.
func RecordRun(run string, status string, durationMS int) {
	runExecutionsTotal.WithLabelValues(run, status).Inc()
	runDurationSeconds.WithLabelValues(run).Observe(float64(durationMS) / 1000.0)
}

// RecordStageExecution records one stage execute cycle.
func RecordStageExecution(stage string, status string, durationMS int) {
	stageExecutionsTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordTransition records a transition edge taken by the engine.
func RecordTransition(from, to string, outcome bool) {
	stageTransitionsTotal.WithLabelValues(from, to, strconv.FormatBool(outcome)).Inc()
}

// RecordAllocation records a participant allocation call.
func RecordAllocation(role string, status string) {
	allocationsTotal.WithLabelValues(role, status).Inc()
}

// RecordEvaluation records one artifact evaluation.
func RecordEvaluation(kind string, status string) {
	evaluationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordLLMCall records LLM call metrics.
func RecordLLMCall(model string, status string, durationMS int) {
	llmCallsTotal.WithLabelValues(model, status).Inc()
	llmDurationSeconds.WithLabelValues(model).Observe(float64(durationMS) / 1000.0)
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}
