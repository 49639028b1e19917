package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	admincontrollers "github.com/angelmondragon/watercolor-storefront/api/controllers/admin"
	"github.com/angelmondragon/watercolor-storefront/api/routes"
	"github.com/angelmondragon/watercolor-storefront/internal/analytics"
	"github.com/angelmondragon/watercolor-storefront/internal/cart"
	"github.com/angelmondragon/watercolor-storefront/internal/cron"
	"github.com/angelmondragon/watercolor-storefront/internal/errmonitor"
	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	shopifywebhook "github.com/angelmondragon/watercolor-storefront/internal/webhooks/shopify"
	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	"github.com/angelmondragon/watercolor-storefront/pkg/db"
	"github.com/angelmondragon/watercolor-storefront/pkg/instance"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
	"github.com/angelmondragon/watercolor-storefront/pkg/metrics"
	"github.com/angelmondragon/watercolor-storefront/pkg/migrate"
	"github.com/angelmondragon/watercolor-storefront/pkg/redis"
	"github.com/angelmondragon/watercolor-storefront/pkg/session"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(ctx, "redis not configured; rate limiting and webhook dedupe disabled")
	}

	reg := prometheus.DefaultRegisterer
	recorder := analytics.NewRecorder()
	monitor := errmonitor.New(errmonitor.Options{Operations: recorder, Logger: logg})

	lru := cart.NewLRUCache(cfg.Cart.CacheSize, cfg.Cart.CacheTTL)
	if err := metrics.RegisterCartCache(reg, lru); err != nil {
		logg.Error(ctx, "failed to register cart cache metrics", err)
	}
	var cartCache cart.Cache = lru
	if redisClient != nil && cfg.FeatureFlags.RedisCartCache {
		cartCache = cart.NewTieredCache(lru, cart.NewRedisCache(redisClient, cfg.Cart.RedisCacheTTL), monitor)
	}

	cartRepo := cart.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(cartRepo, dbClient, cart.Options{
		Cache:         cartCache,
		Recorder:      recorder,
		Reporter:      monitor,
		Logger:        logg,
		Expiry:        cfg.Cart.Expiry,
		SlowOperation: cfg.Cart.SlowOperation,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	catalog := product.NewRepository(dbClient.DB())
	productService, err := product.NewService(catalog)
	if err != nil {
		logg.Error(ctx, "failed to create product service", err)
		os.Exit(1)
	}

	analyticsService, err := analytics.NewService(dbClient.DB(), lru, analytics.Options{Recorder: recorder, Logger: logg})
	if err != nil {
		logg.Error(ctx, "failed to create analytics service", err)
		os.Exit(1)
	}

	cartViews, err := cart.NewProductViewInvalidator(cartRepo, cartCache)
	if err != nil {
		logg.Error(ctx, "failed to create cart view invalidator", err)
		os.Exit(1)
	}
	webhookService, err := shopifywebhook.NewService(shopifywebhook.ServiceParams{
		Catalog:           catalog,
		TransactionRunner: dbClient,
		CartViews:         cartViews,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create shopify webhook service", err)
		os.Exit(1)
	}

	cacheJob, err := cron.NewCartCacheCleanupJob(cfg.Scheduler.CartCacheCleanup, lru, logg)
	if err != nil {
		logg.Error(ctx, "failed to create cart cache cleanup job", err)
		os.Exit(1)
	}
	alertsJob, err := cron.NewErrorAlertsJob(cfg.Scheduler.ErrorAlerts, monitor, errmonitor.DefaultRetention)
	if err != nil {
		logg.Error(ctx, "failed to create error alerts job", err)
		os.Exit(1)
	}
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:         logg,
		Registry:       cron.NewRegistry(cacheJob, alertsJob),
		Metrics:        metrics.NewCronJobMetrics(reg),
		SkipInitialRun: true,
	})
	if err != nil {
		logg.Error(ctx, "failed to create in-process scheduler", err)
		os.Exit(1)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := routes.Deps{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Sessions:        session.NewManager(cfg.Session),
		Carts:           cartService,
		Products:        productService,
		ShopifyWebhooks: webhookService,
		Admin: admincontrollers.Deps{
			Analytics: analyticsService,
			Cache:     lru,
			Scheduler: scheduler,
			Errors:    monitor,
		},
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Gatherer:    prometheus.DefaultGatherer,
		APIErrors:   monitor,
		Validation:  monitor,
	}
	if redisClient != nil {
		guard, err := shopifywebhook.NewIdempotencyGuard(redisClient, cfg.Shopify.WebhookDedupeTTL)
		if err != nil {
			logg.Error(ctx, "failed to create webhook idempotency guard", err)
			os.Exit(1)
		}
		deps.Redis = redisClient
		deps.RateLimitStore = redisClient
		deps.WebhookGuard = guard
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	logg.Info(logCtx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(logCtx, "api server shutting down gracefully")
}
