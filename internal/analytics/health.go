package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
)

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

type HealthMetrics struct {
	ErrorRate        float64 `json:"errorRate"`
	ResponseTime     float64 `json:"responseTime"`
	CachePerformance float64 `json:"cachePerformance"`
	DatabaseHealth   float64 `json:"databaseHealth"`
}

type Health struct {
	Status          HealthStatus  `json:"status"`
	Issues          []string      `json:"issues"`
	Recommendations []string      `json:"recommendations"`
	Metrics         HealthMetrics `json:"metrics"`
}

// DBHealthScore times a cart count query and maps its latency onto [0,1].
func (s *Service) DBHealthScore(ctx context.Context) float64 {
	start := time.Now()
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Cart{}).Count(&n).Error; err != nil {
		return 0
	}
	return scoreLatency(time.Since(start))
}

func scoreLatency(d time.Duration) float64 {
	switch {
	case d < 100*time.Millisecond:
		return 1
	case d < 500*time.Millisecond:
		return 0.8
	case d < time.Second:
		return 0.6
	default:
		return 0.3
	}
}

// HealthCheck grades error rate, latency, cache hit rate and database latency.
func (s *Service) HealthCheck(ctx context.Context) Health {
	errorRate := s.recorder.ErrorRate()
	avgMs := float64(s.recorder.AverageResponseTime().Microseconds()) / 1000
	hitRate := s.cacheHitRate()
	dbHealth := s.DBHealthScore(ctx)
	return evaluateHealth(errorRate, avgMs, hitRate, dbHealth)
}

func evaluateHealth(errorRate, avgMs, hitRate, dbHealth float64) Health {
	h := Health{
		Issues:          []string{},
		Recommendations: []string{},
		Metrics: HealthMetrics{
			ErrorRate:        errorRate,
			ResponseTime:     avgMs,
			CachePerformance: hitRate,
			DatabaseHealth:   dbHealth,
		},
	}
	if errorRate > 0.1 {
		h.Issues = append(h.Issues, fmt.Sprintf("High error rate: %.1f%%", errorRate*100))
		h.Recommendations = append(h.Recommendations, "Investigate error sources and improve error handling")
	}
	if avgMs > 1000 {
		h.Issues = append(h.Issues, fmt.Sprintf("Slow response time: %.0fms", avgMs))
		h.Recommendations = append(h.Recommendations, "Optimize database queries and consider caching improvements")
	}
	if hitRate < 0.5 {
		h.Issues = append(h.Issues, fmt.Sprintf("Low cache hit rate: %.1f%%", hitRate*100))
		h.Recommendations = append(h.Recommendations, "Review cache configuration and TTL settings")
	}
	if dbHealth < 0.8 {
		h.Issues = append(h.Issues, "Database performance issues detected")
		h.Recommendations = append(h.Recommendations, "Check database indexes and query optimization")
	}

	switch {
	case len(h.Issues) > 2 || errorRate > 0.2:
		h.Status = HealthCritical
	case len(h.Issues) > 0 || errorRate > 0.05:
		h.Status = HealthWarning
	default:
		h.Status = HealthHealthy
	}
	return h
}
