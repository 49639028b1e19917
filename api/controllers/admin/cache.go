package admin

import (
	"net/http"

	"github.com/angelmondragon/watercolor-storefront/api/responses"
)

// cacheMetrics reports rates as percentages of lookups.
type cacheMetrics struct {
	HitRate      float64 `json:"hitRate"`
	MissRate     float64 `json:"missRate"`
	EvictionRate float64 `json:"evictionRate"`
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	Evictions    uint64  `json:"evictions"`
	Size         int     `json:"size"`
	MaxSize      int     `json:"maxSize"`
}

func (h *Handlers) CacheMetrics(w http.ResponseWriter, r *http.Request) {
	s := h.deps.Cache.Stats()
	out := cacheMetrics{
		Hits:      s.Hits,
		Misses:    s.Misses,
		Evictions: s.Evictions,
		Size:      s.Size,
		MaxSize:   s.MaxSize,
	}
	if total := float64(s.Hits + s.Misses); total > 0 {
		out.HitRate = float64(s.Hits) / total * 100
		out.MissRate = float64(s.Misses) / total * 100
		out.EvictionRate = float64(s.Evictions) / total * 100
	}
	responses.WriteSuccess(w, out)
}

func (h *Handlers) ResetCacheStats(w http.ResponseWriter, r *http.Request) {
	h.deps.Cache.ResetStats()
	if h.deps.Logger != nil {
		h.deps.Logger.Info(r.Context(), "cart.cache.stats_reset")
	}
	responses.WriteSuccess(w, map[string]string{"message": "Cache statistics reset"})
}
