package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/watercolor-storefront/internal/analytics"
	cartsvc "github.com/angelmondragon/watercolor-storefront/internal/cart"
	"github.com/angelmondragon/watercolor-storefront/internal/cron"
	"github.com/angelmondragon/watercolor-storefront/internal/errmonitor"
)

type stubAnalytics struct {
	days int
	err  error
}

func (s *stubAnalytics) Metrics(context.Context) (*analytics.Metrics, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &analytics.Metrics{TotalCarts: 4, ActiveCarts: 3, AverageCartValue: decimal.RequireFromString("42.50")}, nil
}

func (s *stubAnalytics) Trends(_ context.Context, days int) (*analytics.Trends, error) {
	s.days = days
	return &analytics.Trends{
		DailyCarts:  []analytics.DailyCarts{{Date: "2026-10-18", Created: 2}},
		TopProducts: []analytics.TopProduct{{ProductID: 7, ProductTitle: "Ochre Dunes", TimesAdded: 3}},
	}, nil
}

func (s *stubAnalytics) HealthCheck(context.Context) analytics.Health {
	return analytics.Health{Status: analytics.HealthWarning, Issues: []string{"Low cache hit rate: 40.0%"}}
}

type stubCache struct {
	stats cartsvc.CacheStats
	reset bool
}

func (s *stubCache) Stats() cartsvc.CacheStats { return s.stats }
func (s *stubCache) ResetStats()               { s.reset = true }

type stubScheduler struct{ ran bool }

func (s *stubScheduler) Status() cron.Status {
	return cron.Status{Running: true, Jobs: []cron.JobStatus{{Name: "cart-cleanup", Schedule: "@every 1h"}}}
}

func (s *stubScheduler) RunAll(context.Context) []cron.JobResult {
	s.ran = true
	return []cron.JobResult{
		{Name: "cart-cleanup", Outcome: cron.OutcomeCompleted},
		{Name: "shopify-delta", Outcome: cron.OutcomeFailed, Error: "shopify unavailable"},
	}
}

type adminFixture struct {
	router    http.Handler
	analytics *stubAnalytics
	cache     *stubCache
	scheduler *stubScheduler
	monitor   *errmonitor.Monitor
}

func newAdminFixture(t *testing.T, withScheduler bool) *adminFixture {
	t.Helper()
	f := &adminFixture{
		analytics: &stubAnalytics{},
		cache:     &stubCache{stats: cartsvc.CacheStats{Hits: 3, Misses: 1, Evictions: 1, Size: 2, MaxSize: 10}},
		scheduler: &stubScheduler{},
		monitor:   errmonitor.New(errmonitor.Options{}),
	}
	deps := Deps{Analytics: f.analytics, Cache: f.cache, Errors: f.monitor}
	if withScheduler {
		deps.Scheduler = f.scheduler
	}
	h := NewHandlers(deps)
	h.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Get("/cart/analytics", h.CartAnalytics)
	r.Get("/cart/health", h.CartHealth)
	r.Get("/cart/cache", h.CacheMetrics)
	r.Post("/cart/cache/reset", h.ResetCacheStats)
	r.Get("/scheduler", h.SchedulerStatus)
	r.Post("/scheduler/run", h.RunScheduler)
	r.Get("/errors", h.Errors)
	r.Delete("/errors", h.ClearErrors)
	f.router = r
	return f
}

func (f *adminFixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %v", body)
	return d
}

func TestCartAnalytics(t *testing.T) {
	f := newAdminFixture(t, true)

	rec, body := f.do(t, http.MethodGet, "/cart/analytics?days=7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, f.analytics.days)

	d := data(t, body)
	metrics := d["metrics"].(map[string]any)
	assert.EqualValues(t, 4, metrics["totalCarts"])
	assert.Len(t, d["dailyCarts"], 1)
	assert.Len(t, d["topProducts"], 1)
}

func TestCartAnalyticsDefaultsAndValidation(t *testing.T) {
	f := newAdminFixture(t, true)

	rec, _ := f.do(t, http.MethodGet, "/cart/analytics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analytics.DefaultTrendDays, f.analytics.days)

	rec, _ = f.do(t, http.MethodGet, "/cart/analytics?days=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.analytics.err = errors.New("db down")
	rec, _ = f.do(t, http.MethodGet, "/cart/analytics")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCartHealth(t *testing.T) {
	f := newAdminFixture(t, true)

	rec, body := f.do(t, http.MethodGet, "/cart/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "warning", data(t, body)["status"])
}

func TestCacheMetricsReportsPercentages(t *testing.T) {
	f := newAdminFixture(t, true)

	rec, body := f.do(t, http.MethodGet, "/cart/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, body)
	assert.InDelta(t, 75.0, d["hitRate"], 0.001)
	assert.InDelta(t, 25.0, d["missRate"], 0.001)
	assert.InDelta(t, 25.0, d["evictionRate"], 0.001)
	assert.EqualValues(t, 10, d["maxSize"])

	rec, _ = f.do(t, http.MethodPost, "/cart/cache/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.cache.reset)
}

func TestScheduler(t *testing.T) {
	f := newAdminFixture(t, true)

	rec, body := f.do(t, http.MethodGet, "/scheduler")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, data(t, body)["running"])

	rec, body = f.do(t, http.MethodPost, "/scheduler/run")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.scheduler.ran)
	d := data(t, body)
	assert.EqualValues(t, 1, d["failed"])
	assert.Len(t, d["results"], 2)
}

func TestSchedulerAbsent(t *testing.T) {
	f := newAdminFixture(t, false)

	rec, _ := f.do(t, http.MethodGet, "/scheduler")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/scheduler/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorsFiltersAndClear(t *testing.T) {
	f := newAdminFixture(t, true)
	ctx := context.Background()
	f.monitor.RecordCartError(ctx, "add_item", errors.New("variant missing"), "sess")
	f.monitor.RecordCacheError(ctx, "get", errors.New("redis timeout"))

	rec, body := f.do(t, http.MethodGet, "/errors")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := data(t, body)["stats"].(map[string]any)
	assert.EqualValues(t, 2, stats["totalErrors"])
	assert.Nil(t, data(t, body)["events"])

	rec, body = f.do(t, http.MethodGet, "/errors?category=cart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, data(t, body)["events"], 1)

	rec, _ = f.do(t, http.MethodGet, "/errors?category=billing")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/errors?level=fatal")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/errors?olderThan=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodDelete, "/errors?olderThan=1h")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, data(t, body)["removed"])
	assert.Equal(t, "1h0m0s", data(t, body)["olderThan"])
}
