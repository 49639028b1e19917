package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/watercolor-storefront/internal/errmonitor"
	"github.com/angelmondragon/watercolor-storefront/pkg/metrics"
)

// APIErrorRecorder receives server-side failures for the error monitor.
type APIErrorRecorder interface {
	RecordAPIError(ctx context.Context, endpoint string, status int, err error, ec errmonitor.Context)
}

// Metrics observes each request by its chi route pattern and reports 5xx
// responses to the error monitor.
func Metrics(m *metrics.HTTPMetrics, recorder APIErrorRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r)

			took := time.Since(start)
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := rec.code()
			m.Observe(r.Method, route, status, took)

			if recorder != nil && status >= http.StatusInternalServerError {
				endpoint := r.Method + " " + route
				recorder.RecordAPIError(r.Context(), endpoint, status,
					fmt.Errorf("%s responded %d", endpoint, status),
					errmonitor.Context{Operation: endpoint, ResponseTime: took})
			}
		})
	}
}
