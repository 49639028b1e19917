package admin

import (
	"net/http"

	"github.com/angelmondragon/watercolor-storefront/api/responses"
	"github.com/angelmondragon/watercolor-storefront/api/validators"
	"github.com/angelmondragon/watercolor-storefront/internal/analytics"
)

type analyticsResponse struct {
	Metrics *analytics.Metrics `json:"metrics"`
	analytics.Trends
}

// CartAnalytics returns the cart overview plus daily, hourly, product and
// value breakdowns over ?days (default 30).
func (h *Handlers) CartAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days, err := validators.ParseQueryInt(r, "days", analytics.DefaultTrendDays, 1, 365)
	if err != nil {
		responses.WriteError(ctx, h.deps.Logger, w, err)
		return
	}

	m, err := h.deps.Analytics.Metrics(ctx)
	if err != nil {
		responses.WriteError(ctx, h.deps.Logger, w, err)
		return
	}
	trends, err := h.deps.Analytics.Trends(ctx, days)
	if err != nil {
		responses.WriteError(ctx, h.deps.Logger, w, err)
		return
	}
	responses.WriteSuccess(w, analyticsResponse{Metrics: m, Trends: *trends})
}

func (h *Handlers) CartHealth(w http.ResponseWriter, r *http.Request) {
	responses.WriteSuccess(w, h.deps.Analytics.HealthCheck(r.Context()))
}
