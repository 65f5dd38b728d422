package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	interruptsTotal *prometheus.CounterVec
}

// NewPrometheusRecorder creates a Prometheus-based metrics recorder registered
// on the default registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWith(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWith creates a recorder registered on a specific
// registerer. Tests use this to avoid duplicate registration panics.
func NewPrometheusRecorderWith(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model, thread, and status",
			},
			[]string{"model", "thread_id", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "thread_id", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"model", "thread_id"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "thread_id"},
		),
		interruptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_interrupts_total",
				Help: "Total number of workflow suspensions awaiting human review",
			},
			[]string{"thread_id", "tool"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, threadID string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(model, threadID, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, threadID, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, threadID, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(model, threadID).Add(cost)
	}

	p.requestDuration.WithLabelValues(model, threadID).Observe(duration.Seconds())
}

// IncInterrupt increments the interrupt counter.
func (p *PrometheusRecorder) IncInterrupt(threadID, toolName string) {
	p.interruptsTotal.WithLabelValues(threadID, toolName).Inc()
}
