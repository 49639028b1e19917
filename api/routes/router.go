package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/watercolor-storefront/api/controllers"
	admincontrollers "github.com/angelmondragon/watercolor-storefront/api/controllers/admin"
	cartcontrollers "github.com/angelmondragon/watercolor-storefront/api/controllers/cart"
	webhookcontrollers "github.com/angelmondragon/watercolor-storefront/api/controllers/webhooks"
	"github.com/angelmondragon/watercolor-storefront/api/middleware"
	"github.com/angelmondragon/watercolor-storefront/internal/cart"
	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	shopifywebhook "github.com/angelmondragon/watercolor-storefront/internal/webhooks/shopify"
	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
	"github.com/angelmondragon/watercolor-storefront/pkg/metrics"
)

// RateLimitStore is the redis surface used by the cart rate limiter.
type RateLimitStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// WebhookGuard deduplicates Shopify webhook deliveries.
type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Deps collects what the router wires. Interface fields left nil disable the
// feature they back: no Redis means no readiness check for it and no rate
// limiting, no WebhookGuard makes webhooks answer 500.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis controllers.Pinger

	RateLimitStore RateLimitStore
	Sessions       cartcontrollers.Sessions

	Carts           cart.Service
	Products        product.Service
	ShopifyWebhooks shopifywebhook.Service
	WebhookGuard    WebhookGuard

	Admin admincontrollers.Deps

	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	APIErrors   middleware.APIErrorRecorder
	Validation  cartcontrollers.ValidationReporter
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
		middleware.Metrics(deps.HTTPMetrics, deps.APIErrors),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	r.Get("/api/health", controllers.APIHealth(logg, deps.DB))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	cartPolicy := middleware.NewRateLimitPolicy("cart", cfg.RateLimit.CartWindow, cfg.RateLimit.CartLimit)
	carts := cartcontrollers.NewHandlers(deps.Carts, deps.Sessions, logg)
	if deps.Validation != nil {
		carts.WithValidationReporter(deps.Validation)
	}
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(middleware.RateLimit(cartPolicy, deps.RateLimitStore, deps.Sessions, logg))
		r.Get("/", carts.Get)
		r.Post("/", carts.Create)
		r.Put("/", carts.Update)
		r.Delete("/", carts.Delete)
		r.Post("/items", carts.AddItem)
		r.Put("/items/{itemId}", carts.UpdateItem)
		r.Delete("/items/{itemId}", carts.RemoveItem)
		r.Post("/merge", carts.Merge)
		r.Get("/sync", carts.Sync)
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", controllers.ProductList(deps.Products, logg))
		r.Get("/search", controllers.ProductSearch(deps.Products, logg))
		r.Get("/categories", controllers.ProductCategories(deps.Products, logg))
		r.Get("/categories/{handle}", controllers.ProductsByCategory(deps.Products, logg))
		r.Get("/tags", controllers.ProductTags(deps.Products, logg))
		r.Get("/stats", controllers.ProductStats(deps.Products, logg))
		r.Get("/handle/{handle}", controllers.ProductByHandle(deps.Products, logg))
		r.Get("/{id}", controllers.ProductByID(deps.Products, logg))
	})

	r.Route("/api/webhooks/shopify", func(r chi.Router) {
		r.Post("/products", webhookcontrollers.ShopifyProductsWebhook(deps.ShopifyWebhooks, deps.WebhookGuard, cfg.Shopify, logg))
		r.Post("/collections", webhookcontrollers.ShopifyCollectionsWebhook(deps.ShopifyWebhooks, deps.WebhookGuard, cfg.Shopify, logg))
	})

	adminDeps := deps.Admin
	if adminDeps.Logger == nil {
		adminDeps.Logger = logg
	}
	admin := admincontrollers.NewHandlers(adminDeps)
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, logg))
		r.Get("/cart/analytics", admin.CartAnalytics)
		r.Get("/cart/health", admin.CartHealth)
		r.Get("/cart/cache", admin.CacheMetrics)
		r.Post("/cart/cache/reset", admin.ResetCacheStats)
		r.Get("/scheduler", admin.SchedulerStatus)
		r.Post("/scheduler/run", admin.RunScheduler)
		r.Get("/errors", admin.Errors)
		r.Delete("/errors", admin.ClearErrors)
	})

	return r
}
