package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheStats is a point-in-time view of an in-process cache.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	MaxSize   int
}

// CacheStatsSource yields cache statistics on demand.
type CacheStatsSource interface {
	Snapshot() CacheStats
}

// RegisterCartCache exposes the cart cache counters as scrape-time functions so
// the cache itself stays free of prometheus types.
func RegisterCartCache(reg prometheus.Registerer, src CacheStatsSource) error {
	if reg == nil || src == nil {
		return nil
	}
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart_cache",
			Name:      "hits_total",
			Help:      "Cart cache lookups served from memory.",
		}, func() float64 { return float64(src.Snapshot().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart_cache",
			Name:      "misses_total",
			Help:      "Cart cache lookups that fell through to storage.",
		}, func() float64 { return float64(src.Snapshot().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart_cache",
			Name:      "evictions_total",
			Help:      "Entries evicted to make room for newer carts.",
		}, func() float64 { return float64(src.Snapshot().Evictions) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cart_cache",
			Name:      "entries",
			Help:      "Entries currently held by the cart cache.",
		}, func() float64 { return float64(src.Snapshot().Size) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cart_cache",
			Name:      "capacity",
			Help:      "Maximum entries the cart cache holds.",
		}, func() float64 { return float64(src.Snapshot().MaxSize) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
