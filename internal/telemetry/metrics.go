package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the enhancement gateway.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	RateLimitHits     *prometheus.CounterVec
	AuthFailures      *prometheus.CounterVec
	UpstreamRetries   prometheus.Counter
	StreamEvents      *prometheus.CounterVec
	UsageTokens       *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enhance_gateway_request_total",
			Help: "Total number of requests processed by the gateway.",
		}, []string{"endpoint", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enhance_gateway_request_duration_ms",
			Help:    "Request duration in milliseconds, including upstream turn latency.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"endpoint"}),

		RateLimitHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enhance_gateway_rate_limit_hits_total",
			Help: "Total requests rejected by a rate-limit window.",
		}, []string{"scope"}),

		AuthFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enhance_gateway_auth_failures_total",
			Help: "Total authentication failures by class.",
		}, []string{"class"}),

		UpstreamRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enhance_gateway_upstream_retries_total",
			Help: "Total retries of upstream turns after overload failures.",
		}),

		StreamEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enhance_gateway_stream_events_total",
			Help: "Total translated events emitted to clients.",
		}, []string{"type"}),

		UsageTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enhance_gateway_usage_tokens_total",
			Help: "Total upstream usage tokens reported on completed turns.",
		}, []string{"direction"}),
	}
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(endpoint, status string, durationMs float64) {
	m.RequestTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDurationMs.WithLabelValues(endpoint).Observe(durationMs)
}

// RecordRateLimitHit records a rejection by the named window scope.
func (m *Metrics) RecordRateLimitHit(scope string) {
	m.RateLimitHits.WithLabelValues(scope).Inc()
}

// RecordAuthFailure records an authentication failure class
// (missing, invalid, unavailable, not_configured).
func (m *Metrics) RecordAuthFailure(class string) {
	m.AuthFailures.WithLabelValues(class).Inc()
}

// RecordUsage records token usage reported by a completed turn.
func (m *Metrics) RecordUsage(inputTokens, outputTokens int64) {
	if inputTokens > 0 {
		m.UsageTokens.WithLabelValues("input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.UsageTokens.WithLabelValues("output").Add(float64(outputTokens))
	}
}

// RecordUpstreamRetry records one retried upstream turn.
func (m *Metrics) RecordUpstreamRetry() {
	m.UpstreamRetries.Inc()
}

// RecordStreamEvent records one outbound event by its wire type.
func (m *Metrics) RecordStreamEvent(eventType string) {
	m.StreamEvents.WithLabelValues(eventType).Inc()
}
