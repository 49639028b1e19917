package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/watercolor-storefront/internal/cart"
	"github.com/angelmondragon/watercolor-storefront/internal/errmonitor"
	"github.com/angelmondragon/watercolor-storefront/internal/shopify"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

// Job names.
const (
	JobCartCleanup      = "cart-cleanup"
	JobCartCacheCleanup = "cart-cache-cleanup"
	JobCartAnalytics    = "cart-analytics"
	JobErrorAlerts      = "error-alerts"
	JobShopifyDelta     = "shopify-delta-sync"
)

type cartCleaner interface {
	Run(ctx context.Context) (cart.CleanupResult, error)
}

type cacheSweeper interface {
	Cleanup() int
}

type analyticsSnapshotter interface {
	Snapshot(ctx context.Context) (*models.AnalyticsSnapshot, error)
}

type alertChecker interface {
	CheckAlerts(ctx context.Context) []errmonitor.Alert
	ClearOlderThan(ctx context.Context, age time.Duration) int
}

type deltaRunner interface {
	Run(ctx context.Context) (shopify.DeltaResult, error)
}

// funcJob adapts a closure to Job.
type funcJob struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

func (f *funcJob) Name() string                  { return f.name }
func (f *funcJob) Schedule() string              { return f.schedule }
func (f *funcJob) Run(ctx context.Context) error { return f.run(ctx) }

func newFuncJob(name, schedule, fallback string, run func(ctx context.Context) error) *funcJob {
	if schedule == "" {
		schedule = fallback
	}
	return &funcJob{name: name, schedule: schedule, run: run}
}

// NewCartCleanupJob marks expired and abandoned carts and purges old expired ones.
func NewCartCleanupJob(schedule string, cleaner cartCleaner, logg *logger.Logger) (Job, error) {
	if cleaner == nil {
		return nil, fmt.Errorf("cart cleaner required")
	}
	return newFuncJob(JobCartCleanup, schedule, "@every 1h", func(ctx context.Context) error {
		result, err := cleaner.Run(ctx)
		if err != nil {
			return fmt.Errorf("cart cleanup: %w", err)
		}
		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"expired":   result.Expired,
				"abandoned": result.Abandoned,
				"deleted":   result.Deleted,
			}), "cart cleanup complete")
		}
		return nil
	}), nil
}

// NewCartCacheCleanupJob drops expired entries from the in-process cart cache.
func NewCartCacheCleanupJob(schedule string, cache cacheSweeper, logg *logger.Logger) (Job, error) {
	if cache == nil {
		return nil, fmt.Errorf("cart cache required")
	}
	return newFuncJob(JobCartCacheCleanup, schedule, "@every 5m", func(ctx context.Context) error {
		removed := cache.Cleanup()
		if logg != nil && removed > 0 {
			logg.Info(logg.WithField(ctx, "removed", removed), "cart cache cleanup complete")
		}
		return nil
	}), nil
}

func NewCartAnalyticsJob(schedule string, analytics analyticsSnapshotter) (Job, error) {
	if analytics == nil {
		return nil, fmt.Errorf("analytics service required")
	}
	return newFuncJob(JobCartAnalytics, schedule, "@every 6h", func(ctx context.Context) error {
		if _, err := analytics.Snapshot(ctx); err != nil {
			return fmt.Errorf("cart analytics snapshot: %w", err)
		}
		return nil
	}), nil
}

// NewErrorAlertsJob evaluates alert rules and trims events past retention.
func NewErrorAlertsJob(schedule string, monitor alertChecker, retention time.Duration) (Job, error) {
	if monitor == nil {
		return nil, fmt.Errorf("error monitor required")
	}
	if retention <= 0 {
		retention = errmonitor.DefaultRetention
	}
	return newFuncJob(JobErrorAlerts, schedule, "@every 1m", func(ctx context.Context) error {
		monitor.CheckAlerts(ctx)
		monitor.ClearOlderThan(ctx, retention)
		return nil
	}), nil
}

func NewShopifyDeltaJob(schedule string, syncer deltaRunner) (Job, error) {
	if syncer == nil {
		return nil, fmt.Errorf("delta syncer required")
	}
	return newFuncJob(JobShopifyDelta, schedule, "@every 1h", func(ctx context.Context) error {
		if _, err := syncer.Run(ctx); err != nil {
			return fmt.Errorf("shopify delta sync: %w", err)
		}
		return nil
	}), nil
}
