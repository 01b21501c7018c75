package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	Evaluations      *prometheus.CounterVec
	RiskScore        prometheus.Histogram
	RateLimitedTotal prometheus.Counter
	PIIDetections    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sentinel",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		Evaluations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "evaluations_total",
				Help:      "Total gateway evaluations",
			},
			[]string{"decision"}, // decision=allow/pending/deny
		),
		RiskScore: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sentinel",
				Name:      "risk_score",
				Help:      "Distribution of computed risk scores",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		RateLimitedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the rate limiter",
			},
		),
		PIIDetections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "pii_detections_total",
				Help:      "Total PII entities masked before evaluation",
			},
			[]string{"entity"},
		),
	}
}
