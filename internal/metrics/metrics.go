// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "agentgate_http_request_duration_seconds",
			Help: "Duration of HTTP API requests",
		},
		[]string{"method", "endpoint"},
	)
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_submissions_total",
			Help: "Total number of submitted requests",
		},
		[]string{"capability", "status"},
	)
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "agentgate_stage_duration_seconds",
			Help: "Duration of workflow stages",
		},
		[]string{"workflow", "stage"},
	)
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_verdicts_total",
			Help: "Total number of validation verdicts",
		},
		[]string{"workflow", "verdict"},
	)
	GenerationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_generation_attempts_total",
			Help: "Total number of generation attempts by outcome",
		},
		[]string{"outcome"},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
	)
	ExternalAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_api_calls_total",
			Help: "Total number of external API calls",
		},
		[]string{"provider", "status"},
	)
	SinkDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentgate_sink_dropped_total",
			Help: "Evaluation reports dropped because the sink buffer was full",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(VerdictsTotal)
	prometheus.MustRegister(GenerationAttemptsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ExternalAPICallsTotal)
	prometheus.MustRegister(SinkDroppedTotal)
}
