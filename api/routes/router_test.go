package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	admincontrollers "github.com/angelmondragon/watercolor-storefront/api/controllers/admin"
	"github.com/angelmondragon/watercolor-storefront/internal/analytics"
	"github.com/angelmondragon/watercolor-storefront/internal/cart"
	"github.com/angelmondragon/watercolor-storefront/internal/errmonitor"
	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	shopifywebhook "github.com/angelmondragon/watercolor-storefront/internal/webhooks/shopify"
	pkgauth "github.com/angelmondragon/watercolor-storefront/pkg/auth"
	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/dbtest"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
	"github.com/angelmondragon/watercolor-storefront/pkg/metrics"
	pkgredis "github.com/angelmondragon/watercolor-storefront/pkg/redis"
	"github.com/angelmondragon/watercolor-storefront/pkg/session"
)

const testSession = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

type routerFixture struct {
	handler http.Handler
	cfg     *config.Config
	product models.Product
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Env: "dev", Port: "0"},
		JWT:       config.JWTConfig{Secret: "router-secret", Issuer: "storefront", ExpirationMinutes: 5},
		Session:   config.SessionConfig{CookieName: session.DefaultCookieName, TTL: time.Hour},
		RateLimit: config.RateLimitConfig{CartWindow: time.Minute, CartLimit: 3},
		Shopify:   config.ShopifyConfig{WebhookSecret: "whsec"},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})

	client := dbtest.Client(t)
	mr := miniredis.RunT(t)
	rdb := pkgredis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	monitor := errmonitor.New(errmonitor.Options{Logger: logg})
	cache := cart.NewLRUCache(10, time.Minute)
	carts, err := cart.NewService(cart.NewRepository(client.DB()), client, cart.Options{Cache: cache, Reporter: monitor})
	require.NoError(t, err)
	products, err := product.NewService(product.NewRepository(client.DB()))
	require.NoError(t, err)
	stats, err := analytics.NewService(client.DB(), cache, analytics.Options{})
	require.NoError(t, err)
	hooks, err := shopifywebhook.NewService(shopifywebhook.ServiceParams{Catalog: product.NewRepository(client.DB()), TransactionRunner: client, Logger: logg})
	require.NoError(t, err)
	guard, err := shopifywebhook.NewIdempotencyGuard(rdb, time.Hour)
	require.NoError(t, err)

	seeded := models.Product{
		ShopifyID: "gid://shopify/Product/1",
		Handle:    "harbor-at-dusk",
		Title:     "Harbor at Dusk",
		Status:    enums.ProductStatusActive,
	}
	require.NoError(t, client.DB().Create(&seeded).Error)

	reg := prometheus.NewRegistry()
	handler := NewRouter(Deps{
		Config:          cfg,
		Logger:          logg,
		DB:              client,
		Redis:           rdb,
		RateLimitStore:  rdb,
		Sessions:        session.NewManager(cfg.Session),
		Carts:           carts,
		Products:        products,
		ShopifyWebhooks: hooks,
		WebhookGuard:    guard,
		Admin: admincontrollers.Deps{
			Analytics: stats,
			Cache:     cache,
			Errors:    monitor,
		},
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Gatherer:    reg,
		APIErrors:   monitor,
		Validation:  monitor,
	})
	return &routerFixture{handler: handler, cfg: cfg, product: seeded}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func withSession(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: testSession})
	return req
}

func TestHealthRoutes(t *testing.T) {
	f := newRouterFixture(t)

	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"healthy"`)
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	f := newRouterFixture(t)
	f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/health/live"`)
}

func TestCartRoutesSetCookieAndRateLimit(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/cart", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strconv.Itoa(f.cfg.RateLimit.CartLimit), rec.Header().Get("X-RateLimit-Limit"))

	var body struct {
		Data struct {
			Cart struct {
				SessionID string `json:"sessionId"`
			} `json:"cart"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testSession, body.Data.Cart.SessionID)

	assert.Equal(t, http.StatusOK, f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/cart/sync", nil))).Code)
	assert.Equal(t, http.StatusOK, f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/cart", nil))).Code)

	rec = f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/cart", nil)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestProductRoutesPreferStaticPaths(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/products/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/products/handle/harbor-at-dusk", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Harbor at Dusk")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/products/"+strconv.FormatUint(uint64(f.product.ID), 10), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/products/999999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookRouteRejectsUnsignedDelivery(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/webhooks/shopify/products", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/admin/cart/cache", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := pkgauth.MintAccessToken(f.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{Subject: "ops", Role: pkgauth.RoleAdmin})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/cart/cache", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/scheduler", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusNotFound, f.do(req).Code, "scheduler routes need an in-process scheduler")
}

func TestOptionalDependenciesMayBeAbsent(t *testing.T) {
	cfg := testConfig()
	handler := NewRouter(Deps{Config: cfg, Logger: logger.New(logger.Options{Output: io.Discard}), Gatherer: prometheus.NewRegistry()})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil).WithContext(context.Background()))
	assert.Equal(t, http.StatusOK, rec.Code)
}
