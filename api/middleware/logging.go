package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

// Logging writes one access line per storefront request once the handler
// returns. Health and metrics scrapes log at debug.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method":    r.Method,
				"path":      r.URL.Path,
				"client_ip": clientIP(r),
			})

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(ctx))

			fields := map[string]any{
				"status":      rec.code(),
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					fields["route"] = pattern
				}
			}
			ctx = logg.WithFields(ctx, fields)

			switch {
			case quietRoute(r.URL.Path):
				logg.Debug(ctx, "storefront.request")
			case rec.code() >= http.StatusInternalServerError:
				logg.Warn(ctx, "storefront.request.failed")
			default:
				logg.Info(ctx, "storefront.request")
			}
		})
	}
}

func quietRoute(path string) bool {
	return path == "/metrics" || path == "/health/live" || path == "/health/ready"
}
