package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/watercolor-storefront/internal/analytics"
	"github.com/angelmondragon/watercolor-storefront/internal/cart"
	"github.com/angelmondragon/watercolor-storefront/internal/cron"
	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	"github.com/angelmondragon/watercolor-storefront/internal/shopify"
	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	"github.com/angelmondragon/watercolor-storefront/pkg/db"
	"github.com/angelmondragon/watercolor-storefront/pkg/instance"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
	"github.com/angelmondragon/watercolor-storefront/pkg/metrics"
	"github.com/angelmondragon/watercolor-storefront/pkg/migrate"
	"github.com/angelmondragon/watercolor-storefront/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var locker cron.Locker
	var cartCache cart.Cache
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisLocker, err := cron.NewRedisLocker(redisClient, cfg.Scheduler.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
		locker = redisLocker
		if cfg.FeatureFlags.RedisCartCache {
			cartCache = cart.NewRedisCache(redisClient, cfg.Cart.RedisCacheTTL)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured; jobs run without a distributed lock")
	}

	cartRepo := cart.NewRepository(dbClient.DB())
	cleaner, err := cart.NewCleaner(cartRepo, cartCache, cart.CleanupOptions{
		AbandonedAfter:   cfg.Cart.AbandonedAfter,
		ExpiredRetention: cfg.Cart.ExpiredRetention,
		Logger:           logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart cleaner", err)
		os.Exit(1)
	}
	cleanupJob, err := cron.NewCartCleanupJob(cfg.Scheduler.CartCleanup, cleaner, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart cleanup job", err)
		os.Exit(1)
	}

	analyticsService, err := analytics.NewService(dbClient.DB(), nil, analytics.Options{Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics service", err)
		os.Exit(1)
	}
	analyticsJob, err := cron.NewCartAnalyticsJob(cfg.Scheduler.CartAnalytics, analyticsService)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart analytics job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(cleanupJob, analyticsJob)

	if cfg.Shopify.Configured() {
		client, err := shopify.NewClient(cfg.Shopify, shopify.Options{
			Logger:  logg,
			Metrics: metrics.NewShopifyMetrics(prometheus.DefaultRegisterer),
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create shopify client", err)
			os.Exit(1)
		}
		syncer := shopify.NewDeltaSyncer(client, dbClient, product.NewRepository(dbClient.DB()), shopify.NewStateRepository(dbClient.DB()), shopify.DeltaOptions{
			Overlap:  cfg.Shopify.DeltaOverlap,
			PageSize: cfg.Shopify.DeltaPageSize,
			Logger:   logg,
		})
		deltaJob, err := cron.NewShopifyDeltaJob(cfg.Scheduler.ShopifyDelta, syncer)
		if err != nil {
			logg.Error(context.Background(), "failed to create shopify delta job", err)
			os.Exit(1)
		}
		registry.Register(deltaJob)
	} else {
		logg.Warn(context.Background(), "shopify credentials missing; delta sync job not scheduled")
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
