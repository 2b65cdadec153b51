package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names shared with the usage report queries.
const (
	RequestsTotal   = "tarot_llm_requests_total"
	RequestDuration = "tarot_llm_request_duration_seconds"
	TokensTotal     = "tarot_llm_tokens_total"
	ReadingsTotal   = "tarot_readings_total"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	readingsTotal   *prometheus.CounterVec
}

// NewPrometheusRecorder registers the metrics with the default registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWith(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWith registers the metrics with reg. Tests pass a fresh registry.
func NewPrometheusRecorderWith(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: RequestsTotal,
				Help: "Total number of completion calls by model, stage and status",
			},
			[]string{"model", "stage", "status", "error_type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    RequestDuration,
				Help:    "Duration of completion calls in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 300},
			},
			[]string{"model", "stage"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: TokensTotal,
				Help: "Total number of tokens sent and received",
			},
			[]string{"model", "direction"},
		),
		readingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ReadingsTotal,
				Help: "Total number of readings by spread and outcome",
			},
			[]string{"spread", "outcome"},
		),
	}
}

// ObserveRequest records metrics for a finished completion call.
func (p *PrometheusRecorder) ObserveRequest(
	model, stage string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(model, stage, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}

	p.requestDuration.WithLabelValues(model, stage).Observe(duration.Seconds())
}

// ObserveReading records how a reading ended.
func (p *PrometheusRecorder) ObserveReading(spread, outcome string) {
	p.readingsTotal.WithLabelValues(spread, outcome).Inc()
}
