package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/watercolor-storefront/api/responses"
	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

const (
	envHeader           = "X-Storefront-Env"
	readyCheckTimeout   = 2 * time.Second
	statusHealthy       = "healthy"
	statusUnhealthy     = "unhealthy"
	statusReady         = "ready"
	statusNotReady      = "not_ready"
	statusNotConfigured = "not_configured"
)

// Pinger is the health-check surface of the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

type apiHealth struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and, when configured, redis. Any failure is a 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, db Pinger, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		checks := map[string]string{
			"database": checkDependency(ctx, logg, "database", db),
			"redis":    checkDependency(ctx, logg, "redis", redis),
		}
		status, code := statusReady, http.StatusOK
		for _, v := range checks {
			if v == statusUnhealthy {
				status, code = statusNotReady, http.StatusServiceUnavailable
			}
		}
		responses.WriteSuccessStatus(w, code, map[string]any{"status": status, "checks": checks})
	}
}

// APIHealth reports overall service health for uptime monitors.
func APIHealth(logg *logger.Logger, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		body := apiHealth{
			Status:    statusHealthy,
			Timestamp: time.Now().UTC(),
			Services: map[string]string{
				"database": checkDependency(ctx, logg, "database", db),
				"api":      statusHealthy,
			},
		}
		code := http.StatusOK
		if body.Services["database"] != statusHealthy {
			body.Status = statusUnhealthy
			code = http.StatusServiceUnavailable
		}
		responses.WriteSuccessStatus(w, code, body)
	}
}

func checkDependency(ctx context.Context, logg *logger.Logger, name string, p Pinger) string {
	if p == nil {
		return statusNotConfigured
	}
	if err := p.Ping(ctx); err != nil {
		if logg != nil {
			logg.Error(logg.WithField(ctx, "dependency", name), "health.dependency_failed", err)
		}
		return statusUnhealthy
	}
	return statusHealthy
}
