package cart

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

const (
	DefaultAbandonedAfter   = 7 * 24 * time.Hour
	DefaultExpiredRetention = 90 * 24 * time.Hour
)

// CleanupResult summarises one cleanup pass.
type CleanupResult struct {
	Expired   int           `json:"expired"`
	Abandoned int           `json:"abandoned"`
	Deleted   int           `json:"deleted"`
	Duration  time.Duration `json:"duration"`
}

// CleanupOptions tunes the thresholds. Zero values fall back to defaults.
type CleanupOptions struct {
	AbandonedAfter   time.Duration
	ExpiredRetention time.Duration
	Logger           *logger.Logger
	Clock            func() time.Time
}

// Cleaner moves stale carts through EXPIRED and ABANDONED and purges old expired rows.
type Cleaner struct {
	repo           CleanupRepository
	cache          Cache
	logg           *logger.Logger
	abandonedAfter time.Duration
	retention      time.Duration
	now            func() time.Time
}

func NewCleaner(repo CleanupRepository, cache Cache, opts CleanupOptions) (*Cleaner, error) {
	if repo == nil {
		return nil, fmt.Errorf("cleanup repository required")
	}
	c := &Cleaner{
		repo:           repo,
		cache:          cache,
		logg:           opts.Logger,
		abandonedAfter: opts.AbandonedAfter,
		retention:      opts.ExpiredRetention,
		now:            opts.Clock,
	}
	if c.abandonedAfter <= 0 {
		c.abandonedAfter = DefaultAbandonedAfter
	}
	if c.retention <= 0 {
		c.retention = DefaultExpiredRetention
	}
	if c.now == nil {
		c.now = time.Now
	}
	clock := c.now
	c.now = func() time.Time { return clock().UTC() }
	return c, nil
}

func (c *Cleaner) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	sessions, err := c.repo.MarkExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("mark expired carts: %w", err)
	}
	c.invalidate(ctx, sessions)
	return len(sessions), nil
}

func (c *Cleaner) MarkAbandoned(ctx context.Context, now time.Time) (int, error) {
	sessions, err := c.repo.MarkAbandoned(ctx, now.Add(-c.abandonedAfter))
	if err != nil {
		return 0, fmt.Errorf("mark abandoned carts: %w", err)
	}
	c.invalidate(ctx, sessions)
	return len(sessions), nil
}

func (c *Cleaner) DeleteOldExpired(ctx context.Context, now time.Time) (int, error) {
	sessions, err := c.repo.DeleteExpiredBefore(ctx, now.Add(-c.retention))
	if err != nil {
		return 0, fmt.Errorf("delete expired carts: %w", err)
	}
	c.invalidate(ctx, sessions)
	return len(sessions), nil
}

// Run executes every step even when an earlier one fails and returns the
// combined error alongside whatever counts succeeded.
func (c *Cleaner) Run(ctx context.Context) (CleanupResult, error) {
	start := c.now()
	var (
		result CleanupResult
		errs   error
		err    error
	)

	result.Expired, err = c.MarkExpired(ctx, start)
	errs = multierr.Append(errs, err)

	result.Abandoned, err = c.MarkAbandoned(ctx, start)
	errs = multierr.Append(errs, err)

	result.Deleted, err = c.DeleteOldExpired(ctx, start)
	errs = multierr.Append(errs, err)

	result.Duration = c.now().Sub(start)

	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"expired":     result.Expired,
			"abandoned":   result.Abandoned,
			"deleted":     result.Deleted,
			"duration_ms": result.Duration.Milliseconds(),
		})
		if errs != nil {
			c.logg.Error(logCtx, "cart cleanup finished with errors", errs)
		} else {
			c.logg.Info(logCtx, "cart cleanup completed")
		}
	}
	return result, errs
}

func (c *Cleaner) invalidate(ctx context.Context, sessions []string) {
	if c.cache == nil {
		return
	}
	for _, session := range sessions {
		_ = c.cache.Invalidate(ctx, session)
	}
}
