package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pylearn_executions_total",
			Help: "Total number of code executions",
		},
		[]string{"status"}, // success, error, timeout
	)

	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pylearn_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pylearn_queue_depth",
			Help: "Current number of jobs in the queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pylearn_active_workers",
			Help: "Number of workers currently processing jobs",
		},
	)

	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pylearn_rejected_total",
			Help: "Requests rejected before execution",
		},
		[]string{"reason"}, // busy, rate_limit
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pylearn_llm_requests_total",
			Help: "Feedback requests sent to the language model",
		},
		[]string{"outcome"}, // ok, error
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pylearn_llm_tokens_total",
			Help: "Tokens consumed by feedback requests",
		},
		[]string{"model", "kind"}, // kind: prompt, completion
	)

	CircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pylearn_llm_circuit_open",
			Help: "1 while the LLM circuit breaker is open",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
