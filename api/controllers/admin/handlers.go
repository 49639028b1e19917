// Package admin serves the operator endpoints under /api/admin: cart
// analytics and health, cache counters, the scheduler and the error monitor.
package admin

import (
	"context"
	"time"

	"github.com/angelmondragon/watercolor-storefront/internal/analytics"
	cartsvc "github.com/angelmondragon/watercolor-storefront/internal/cart"
	"github.com/angelmondragon/watercolor-storefront/internal/cron"
	"github.com/angelmondragon/watercolor-storefront/internal/errmonitor"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

type AnalyticsReader interface {
	Metrics(ctx context.Context) (*analytics.Metrics, error)
	Trends(ctx context.Context, days int) (*analytics.Trends, error)
	HealthCheck(ctx context.Context) analytics.Health
}

type CacheStats interface {
	Stats() cartsvc.CacheStats
	ResetStats()
}

type Scheduler interface {
	Status() cron.Status
	RunAll(ctx context.Context) []cron.JobResult
}

type ErrorMonitor interface {
	Stats() errmonitor.Stats
	ByCategory(category errmonitor.Category, limit int) []errmonitor.Event
	ByLevel(level errmonitor.Level, limit int) []errmonitor.Event
	ClearOlderThan(ctx context.Context, age time.Duration) int
}

// Deps wires the admin handlers. A nil Scheduler disables the scheduler routes.
type Deps struct {
	Analytics AnalyticsReader
	Cache     CacheStats
	Scheduler Scheduler
	Errors    ErrorMonitor
	Logger    *logger.Logger
}

type Handlers struct {
	deps Deps
	now  func() time.Time
}

func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps, now: time.Now}
}
