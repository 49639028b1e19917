package admin

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/watercolor-storefront/api/responses"
	"github.com/angelmondragon/watercolor-storefront/api/validators"
	"github.com/angelmondragon/watercolor-storefront/internal/errmonitor"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
)

const (
	defaultErrorLimit = 50
	maxErrorLimit     = 500
)

var (
	knownCategories = map[errmonitor.Category]struct{}{
		errmonitor.CategoryCart:       {},
		errmonitor.CategoryDatabase:   {},
		errmonitor.CategoryCache:      {},
		errmonitor.CategoryAPI:        {},
		errmonitor.CategoryValidation: {},
	}
	knownLevels = map[errmonitor.Level]struct{}{
		errmonitor.LevelError:   {},
		errmonitor.LevelWarning: {},
		errmonitor.LevelInfo:    {},
	}
)

type errorsResponse struct {
	Stats  errmonitor.Stats   `json:"stats"`
	Events []errmonitor.Event `json:"events,omitempty"`
}

// Errors returns monitor stats; ?category or ?level additionally lists the matching events.
func (h *Handlers) Errors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := validators.ParseQueryInt(r, "limit", defaultErrorLimit, 1, maxErrorLimit)
	if err != nil {
		responses.WriteError(ctx, h.deps.Logger, w, err)
		return
	}

	out := errorsResponse{Stats: h.deps.Errors.Stats()}
	q := r.URL.Query()
	if raw := strings.ToLower(strings.TrimSpace(q.Get("category"))); raw != "" {
		cat := errmonitor.Category(raw)
		if _, ok := knownCategories[cat]; !ok {
			responses.WriteError(ctx, h.deps.Logger, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown error category"))
			return
		}
		out.Events = h.deps.Errors.ByCategory(cat, limit)
	} else if raw := strings.ToLower(strings.TrimSpace(q.Get("level"))); raw != "" {
		lvl := errmonitor.Level(raw)
		if _, ok := knownLevels[lvl]; !ok {
			responses.WriteError(ctx, h.deps.Logger, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown error level"))
			return
		}
		out.Events = h.deps.Errors.ByLevel(lvl, limit)
	}
	responses.WriteSuccess(w, out)
}

// ClearErrors drops events older than ?olderThan (default one day).
func (h *Handlers) ClearErrors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	age, err := validators.ParseQueryDuration(r, "olderThan", errmonitor.DefaultRetention)
	if err != nil {
		responses.WriteError(ctx, h.deps.Logger, w, err)
		return
	}
	removed := h.deps.Errors.ClearOlderThan(ctx, age)
	responses.WriteSuccess(w, map[string]any{"removed": removed, "olderThan": age.String()})
}
