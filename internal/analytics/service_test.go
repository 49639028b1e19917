package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/watercolor-storefront/internal/cart"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/dbtest"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

type staticCache struct{ stats cart.CacheStats }

func (s staticCache) Stats() cart.CacheStats { return s.stats }

type fixture struct {
	db  *gorm.DB
	svc *Service
	now time.Time
}

func newFixture(t *testing.T, hitRate float64) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	now := time.Now().UTC().Truncate(time.Second)
	svc, err := NewService(conn, staticCache{stats: cart.CacheStats{HitRate: hitRate}}, Options{Clock: func() time.Time { return now }})
	require.NoError(t, err)
	return &fixture{db: conn, svc: svc, now: now}
}

func (f *fixture) product(t *testing.T, id uint, title string) models.ProductVariant {
	t.Helper()
	p := models.Product{ID: id, ShopifyID: title, Handle: title, Title: title, Status: enums.ProductStatusActive}
	require.NoError(t, f.db.Create(&p).Error)
	v := models.ProductVariant{ShopifyID: title + "-v", ProductID: p.ID, Title: "Default", CurrencyCode: enums.CurrencyUSD}
	require.NoError(t, f.db.Create(&v).Error)
	return v
}

func (f *fixture) cart(t *testing.T, session string, status enums.CartStatus, created time.Time, lines ...models.CartItem) models.Cart {
	t.Helper()
	c := models.Cart{SessionID: session, Status: status, ExpiresAt: f.now.Add(24 * time.Hour), CreatedAt: created, UpdatedAt: created}
	require.NoError(t, f.db.Create(&c).Error)
	for _, line := range lines {
		line.CartID = c.ID
		require.NoError(t, f.db.Create(&line).Error)
	}
	return c
}

func line(v models.ProductVariant, qty int, price string) models.CartItem {
	return models.CartItem{ProductID: v.ProductID, VariantID: v.ID, Quantity: qty, Price: decimal.RequireFromString(price)}
}

func TestMetricsAggregatesActiveCarts(t *testing.T) {
	f := newFixture(t, 0.8)
	ctx := context.Background()
	a := f.product(t, 1, "Harbor")
	b := f.product(t, 2, "Orchard")

	f.cart(t, "s1", enums.CartStatusActive, f.now, line(a, 1, "10"))
	f.cart(t, "s2", enums.CartStatusActive, f.now, line(a, 2, "10"), line(b, 1, "30"))
	f.cart(t, "s3", enums.CartStatusActive, f.now.Add(-48*time.Hour))
	f.cart(t, "s4", enums.CartStatusAbandoned, f.now, line(b, 5, "30"))
	f.cart(t, "s5", enums.CartStatusConverted, f.now.Add(-72*time.Hour))

	f.svc.RecordOperation(200*time.Millisecond, true)
	f.svc.RecordOperation(400*time.Millisecond, false)

	m, err := f.svc.Metrics(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 5, m.TotalCarts)
	assert.EqualValues(t, 3, m.ActiveCarts)
	assert.EqualValues(t, 1, m.AbandonedCarts)
	assert.EqualValues(t, 1, m.ConvertedCarts)
	assert.True(t, m.TotalCartValue.Equal(decimal.NewFromInt(60)), "total %s", m.TotalCartValue)
	assert.True(t, m.AverageCartValue.Equal(decimal.NewFromInt(20)), "avg %s", m.AverageCartValue)
	assert.True(t, m.MedianCartValue.Equal(decimal.NewFromInt(10)), "median %s", m.MedianCartValue)
	assert.EqualValues(t, 3, m.TotalItemsInCarts)
	assert.InDelta(t, 1.0, m.AverageItemsPerCart, 0.0001)
	assert.EqualValues(t, 3, m.CartsCreatedToday)
	assert.EqualValues(t, 1, m.CartsAbandonedToday)
	assert.EqualValues(t, 0, m.CartsConvertedToday)
	assert.Equal(t, 0.8, m.CacheHitRate)
	assert.InDelta(t, 300, m.AverageResponseTime, 0.001)
	assert.Equal(t, 0.5, m.ErrorRate)
}

func TestMedianUsesUpperMiddle(t *testing.T) {
	_, _, median := summarizeValues([]decimal.Decimal{
		decimal.NewFromInt(40), decimal.NewFromInt(10), decimal.NewFromInt(30), decimal.NewFromInt(20),
	})
	assert.True(t, median.Equal(decimal.NewFromInt(30)))

	total, avg, median := summarizeValues(nil)
	assert.True(t, total.IsZero() && avg.IsZero() && median.IsZero())
}

func TestTopProductsRanksByLineCount(t *testing.T) {
	f := newFixture(t, 1)
	a := f.product(t, 1, "Harbor")
	b := f.product(t, 2, "Orchard")

	f.cart(t, "s1", enums.CartStatusActive, f.now, line(a, 1, "10"), line(b, 4, "5"))
	f.cart(t, "s2", enums.CartStatusActive, f.now, line(a, 3, "10"))
	f.cart(t, "s3", enums.CartStatusAbandoned, f.now, line(b, 1, "5"))
	require.NoError(t, f.db.Exec("PRAGMA foreign_keys = OFF").Error)
	f.cart(t, "s4", enums.CartStatusActive, f.now, models.CartItem{ProductID: 99, VariantID: 99, Quantity: 1, Price: decimal.NewFromInt(1)})

	top, err := f.svc.TopProducts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, TopProduct{ProductID: 1, ProductTitle: "Harbor", TimesAdded: 2, TotalQuantity: 4}, top[0])
	assert.Equal(t, uint(2), top[1].ProductID)
	assert.EqualValues(t, 1, top[1].TimesAdded)
	assert.Equal(t, "Unknown Product", top[2].ProductTitle)
	assert.Zero(t, top[2].ConversionRate)
}

func TestValueDistributionBuckets(t *testing.T) {
	buckets := distribute([]decimal.Decimal{
		decimal.NewFromInt(0),
		decimal.RequireFromString("24.99"),
		decimal.NewFromInt(25),
		decimal.NewFromInt(99),
		decimal.NewFromInt(200),
	})
	require.Len(t, buckets, 5)
	labels := []string{"$0-$25", "$25-$50", "$50-$100", "$100-$200", "$200+"}
	counts := []int{2, 1, 1, 0, 1}
	for i := range buckets {
		assert.Equal(t, labels[i], buckets[i].Range)
		assert.Equal(t, counts[i], buckets[i].Count, buckets[i].Range)
	}
	assert.InDelta(t, 40.0, buckets[0].Percentage, 0.0001)

	empty := distribute(nil)
	for _, b := range empty {
		assert.Zero(t, b.Percentage)
	}
}

func TestDailyAndHourlyTrends(t *testing.T) {
	f := newFixture(t, 1)
	f.cart(t, "today", enums.CartStatusActive, f.now)
	f.cart(t, "yesterday", enums.CartStatusActive, f.now.AddDate(0, 0, -1))
	f.cart(t, "old", enums.CartStatusActive, f.now.AddDate(0, 0, -40))

	daily, err := f.svc.DailyCarts(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, daily, 7)
	assert.Equal(t, f.now.Format("2006-01-02"), daily[6].Date)
	assert.EqualValues(t, 1, daily[6].Created)
	assert.EqualValues(t, 1, daily[5].Created)

	hourly, err := f.svc.HourlyActivity(context.Background())
	require.NoError(t, err)
	require.Len(t, hourly, 24)
	var total int64
	for _, h := range hourly {
		total += h.CartOperations
	}
	assert.EqualValues(t, 2, total)
	assert.GreaterOrEqual(t, hourly[f.now.Hour()].CartOperations, int64(1))
}

func TestSnapshotPersistsMetrics(t *testing.T) {
	f := newFixture(t, 1)
	f.cart(t, "s1", enums.CartStatusActive, f.now)

	snap, err := f.svc.Snapshot(context.Background())
	require.NoError(t, err)

	var stored models.AnalyticsSnapshot
	require.NoError(t, f.db.First(&stored, snap.ID).Error)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(stored.Payload), &decoded))
	assert.EqualValues(t, 1, decoded["activeCarts"])
}

func TestEvaluateHealth(t *testing.T) {
	healthy := evaluateHealth(0, 100, 0.9, 1)
	assert.Equal(t, HealthHealthy, healthy.Status)
	assert.Empty(t, healthy.Issues)

	warning := evaluateHealth(0.06, 100, 0.9, 1)
	assert.Equal(t, HealthWarning, warning.Status)

	lowCache := evaluateHealth(0, 100, 0.4, 1)
	assert.Equal(t, HealthWarning, lowCache.Status)
	assert.Len(t, lowCache.Issues, 1)

	critical := evaluateHealth(0.15, 1500, 0.2, 1)
	assert.Equal(t, HealthCritical, critical.Status)
	assert.Len(t, critical.Issues, 3)

	spike := evaluateHealth(0.25, 10, 0.9, 1)
	assert.Equal(t, HealthCritical, spike.Status)
}

func TestScoreLatency(t *testing.T) {
	assert.Equal(t, 1.0, scoreLatency(50*time.Millisecond))
	assert.Equal(t, 0.8, scoreLatency(100*time.Millisecond))
	assert.Equal(t, 0.6, scoreLatency(700*time.Millisecond))
	assert.Equal(t, 0.3, scoreLatency(2*time.Second))
}

func TestHealthCheckUsesDatabase(t *testing.T) {
	f := newFixture(t, 0.9)
	h := f.svc.HealthCheck(context.Background())
	assert.Equal(t, 1.0, h.Metrics.DatabaseHealth)
	assert.Equal(t, HealthHealthy, h.Status)
}
