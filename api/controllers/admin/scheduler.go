package admin

import (
	"net/http"

	"github.com/angelmondragon/watercolor-storefront/api/responses"
	"github.com/angelmondragon/watercolor-storefront/internal/cron"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
)

func (h *Handlers) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Scheduler == nil {
		responses.WriteError(r.Context(), h.deps.Logger, w, pkgerrors.New(pkgerrors.CodeNotFound, "scheduler not running in this process"))
		return
	}
	responses.WriteSuccess(w, h.deps.Scheduler.Status())
}

// RunScheduler runs every registered job once and reports per-job outcomes.
func (h *Handlers) RunScheduler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Scheduler == nil {
		responses.WriteError(ctx, h.deps.Logger, w, pkgerrors.New(pkgerrors.CodeNotFound, "scheduler not running in this process"))
		return
	}
	results := h.deps.Scheduler.RunAll(ctx)
	failed := 0
	for _, res := range results {
		if res.Outcome == cron.OutcomeFailed {
			failed++
		}
	}
	responses.WriteSuccess(w, map[string]any{
		"results": results,
		"failed":  failed,
		"ranAt":   h.now().UTC(),
	})
}
