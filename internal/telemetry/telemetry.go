// Package telemetry provides observability with Prometheus metrics and structured logging.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics anthrogate's pipeline stages emit, narrowed from the
// teacher's multi-provider/multi-tenant/semantic-cache surface down to what a single-backend
// translator actually produces: per-stage request counts/latency, rate-limiter denials, token
// accounting, and stream duration.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	TokensInput  *prometheus.CounterVec
	TokensOutput *prometheus.CounterVec

	RateLimitDenials *prometheus.CounterVec
	AuthFailures     *prometheus.CounterVec

	BackendErrors       *prometheus.CounterVec
	ServiceTierFallback *prometheus.CounterVec

	StreamConnections prometheus.Gauge
	StreamDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers anthrogate's metrics against registry (prometheus.
// DefaultRegisterer if nil), matching the teacher's promauto.With(registry) registration idiom.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anthrogate_requests_total",
			Help: "Total number of /v1/messages requests by model and status.",
		}, []string{"model", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anthrogate_request_duration_seconds",
			Help:    "End-to-end pipeline latency per request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model", "stream"}),

		RequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "anthrogate_requests_in_flight",
			Help: "Number of requests currently being handled.",
		}),

		TokensInput: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anthrogate_tokens_input_total",
			Help: "Total input tokens accounted, by model.",
		}, []string{"model"}),

		TokensOutput: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anthrogate_tokens_output_total",
			Help: "Total output tokens accounted, by model.",
		}, []string{"model"}),

		RateLimitDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anthrogate_rate_limit_denials_total",
			Help: "Requests denied by the rate limiter, by API key.",
		}, []string{"api_key"}),

		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anthrogate_auth_failures_total",
			Help: "Authentication failures by reason (missing, unknown, inactive).",
		}, []string{"reason"}),

		BackendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anthrogate_backend_errors_total",
			Help: "Backend invocation errors by classified error kind.",
		}, []string{"kind"}),

		ServiceTierFallback: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anthrogate_service_tier_fallback_total",
			Help: "Requests retried with the default service tier after rejection.",
		}, []string{"requested_tier"}),

		StreamConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "anthrogate_stream_connections",
			Help: "Number of open SSE streaming connections.",
		}),

		StreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anthrogate_stream_duration_seconds",
			Help:    "Duration of a streamed /v1/messages response, from first to last event.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"model"}),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records a completed request's status and latency.
func (m *Metrics) RecordRequest(model, status string, stream bool, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(model, status).Inc()
	streamLabel := "false"
	if stream {
		streamLabel = "true"
	}
	m.RequestDuration.WithLabelValues(model, streamLabel).Observe(duration.Seconds())
}

// RecordTokens records the token accounting of one completed request.
func (m *Metrics) RecordTokens(model string, input, output int) {
	m.TokensInput.WithLabelValues(model).Add(float64(input))
	m.TokensOutput.WithLabelValues(model).Add(float64(output))
}

// RecordRateLimitDenial records one rate-limiter rejection.
func (m *Metrics) RecordRateLimitDenial(apiKey string) {
	m.RateLimitDenials.WithLabelValues(apiKey).Inc()
}

// RecordAuthFailure records one authentication failure by reason.
func (m *Metrics) RecordAuthFailure(reason string) {
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// RecordBackendError records one classified backend error.
func (m *Metrics) RecordBackendError(kind string) {
	m.BackendErrors.WithLabelValues(kind).Inc()
}

// RecordServiceTierFallback records one at-most-once service-tier retry (§4.5).
func (m *Metrics) RecordServiceTierFallback(requestedTier string) {
	m.ServiceTierFallback.WithLabelValues(requestedTier).Inc()
}

// RecordStreamDuration records the wall-clock duration of a completed stream.
func (m *Metrics) RecordStreamDuration(model string, duration time.Duration) {
	m.StreamDuration.WithLabelValues(model).Observe(duration.Seconds())
}
