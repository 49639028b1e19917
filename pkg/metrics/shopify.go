package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShopifyMetrics tracks Admin API usage.
type ShopifyMetrics struct {
	requests  *prometheus.CounterVec
	throttled prometheus.Histogram
	available prometheus.Gauge
}

// NewShopifyMetrics registers the Admin API metrics on reg. A nil registerer
// yields a no-op collector.
func NewShopifyMetrics(reg prometheus.Registerer) *ShopifyMetrics {
	if reg == nil {
		return &ShopifyMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "shopify",
		Name:      "requests_total",
		Help:      "Admin GraphQL requests by outcome.",
	}, []string{"outcome"})
	throttled := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "shopify",
		Name:      "throttle_wait_seconds",
		Help:      "Time spent waiting for the cost bucket to refill.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
	available := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "shopify",
		Name:      "cost_available",
		Help:      "Query cost points available after the last request.",
	})
	reg.MustRegister(requests, throttled, available)
	return &ShopifyMetrics{requests: requests, throttled: throttled, available: available}
}

// IncRequest counts a request with the given outcome (ok, graphql_error, http_error, breaker_open).
func (s *ShopifyMetrics) IncRequest(outcome string) {
	if s == nil || s.requests == nil {
		return
	}
	s.requests.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveThrottle records a throttle sleep.
func (s *ShopifyMetrics) ObserveThrottle(wait time.Duration) {
	if s == nil || s.throttled == nil {
		return
	}
	s.throttled.Observe(wait.Seconds())
}

// SetAvailable records the remaining cost points.
func (s *ShopifyMetrics) SetAvailable(points float64) {
	if s == nil || s.available == nil {
		return
	}
	s.available.Set(points)
}
