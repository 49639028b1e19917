// Package analytics aggregates cart metrics, trends and health from the
// database, the cart cache and recorded operation timings.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/watercolor-storefront/internal/cart"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

const (
	DefaultTrendDays       = 30
	DefaultTopProductLimit = 10
	unknownProductTitle    = "Unknown Product"
)

// CacheStatsSource reports cart cache counters.
type CacheStatsSource interface {
	Stats() cart.CacheStats
}

// Metrics is the point-in-time cart overview.
type Metrics struct {
	TotalCarts          int64           `json:"totalCarts"`
	ActiveCarts         int64           `json:"activeCarts"`
	AbandonedCarts      int64           `json:"abandonedCarts"`
	ExpiredCarts        int64           `json:"expiredCarts"`
	ConvertedCarts      int64           `json:"convertedCarts"`
	AverageCartValue    decimal.Decimal `json:"averageCartValue"`
	MedianCartValue     decimal.Decimal `json:"medianCartValue"`
	TotalCartValue      decimal.Decimal `json:"totalCartValue"`
	AverageItemsPerCart float64         `json:"averageItemsPerCart"`
	TotalItemsInCarts   int64           `json:"totalItemsInCarts"`
	CacheHitRate        float64         `json:"cacheHitRate"`
	AverageResponseTime float64         `json:"averageResponseTime"`
	ErrorRate           float64         `json:"errorRate"`
	CartsCreatedToday   int64           `json:"cartsCreatedToday"`
	CartsAbandonedToday int64           `json:"cartsAbandonedToday"`
	CartsConvertedToday int64           `json:"cartsConvertedToday"`
}

type DailyCarts struct {
	Date      string `json:"date"`
	Created   int64  `json:"created"`
	Abandoned int64  `json:"abandoned"`
	Converted int64  `json:"converted"`
}

type HourlyActivity struct {
	Hour           int   `json:"hour"`
	CartOperations int64 `json:"cartOperations"`
}

type TopProduct struct {
	ProductID      uint    `json:"productId"`
	ProductTitle   string  `json:"productTitle"`
	TimesAdded     int64   `json:"timesAdded"`
	TotalQuantity  int64   `json:"totalQuantity"`
	ConversionRate float64 `json:"conversionRate"`
}

type ValueBucket struct {
	Range      string  `json:"range"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Trends groups the time and product breakdowns served to the admin dashboard.
type Trends struct {
	DailyCarts            []DailyCarts     `json:"dailyCarts"`
	HourlyActivity        []HourlyActivity `json:"hourlyActivity"`
	TopProducts           []TopProduct     `json:"topProducts"`
	CartValueDistribution []ValueBucket    `json:"cartValueDistribution"`
}

type Options struct {
	Recorder *Recorder
	Logger   *logger.Logger
	Clock    func() time.Time
}

type Service struct {
	db       *gorm.DB
	cache    CacheStatsSource
	recorder *Recorder
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(db *gorm.DB, cache CacheStatsSource, opts Options) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	s := &Service{
		db:       db,
		cache:    cache,
		recorder: opts.Recorder,
		logg:     opts.Logger,
		now:      opts.Clock,
	}
	if s.recorder == nil {
		s.recorder = NewRecorder()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Recorder exposes the operation recorder shared with the cart service.
func (s *Service) Recorder() *Recorder {
	return s.recorder
}

// RecordOperation forwards to the shared recorder.
func (s *Service) RecordOperation(duration time.Duration, success bool) {
	s.recorder.RecordOperation(duration, success)
}

// Metrics aggregates counts, values, items and today's activity concurrently.
func (s *Service) Metrics(ctx context.Context) (*Metrics, error) {
	var (
		m      Metrics
		values []decimal.Decimal
		today  dayCounts
	)
	now := s.now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.countByStatus(gctx, &m) })
	g.Go(func() error {
		var err error
		values, err = s.activeCartValues(gctx)
		return err
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).
			Model(&models.CartItem{}).
			Joins("JOIN carts ON carts.id = cart_items.cart_id").
			Where("carts.status = ?", enums.CartStatusActive).
			Count(&m.TotalItemsInCarts).Error
	})
	g.Go(func() error {
		var err error
		today, err = s.countDay(gctx, startOfDay(now))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cart metrics: %w", err)
	}

	m.TotalCartValue, m.AverageCartValue, m.MedianCartValue = summarizeValues(values)
	if m.ActiveCarts > 0 {
		m.AverageItemsPerCart = float64(m.TotalItemsInCarts) / float64(m.ActiveCarts)
	}
	m.CartsCreatedToday = today.created
	m.CartsAbandonedToday = today.abandoned
	m.CartsConvertedToday = today.converted
	m.CacheHitRate = s.cacheHitRate()
	m.AverageResponseTime = float64(s.recorder.AverageResponseTime().Microseconds()) / 1000
	m.ErrorRate = s.recorder.ErrorRate()
	return &m, nil
}

// Trends returns daily, hourly, product and value breakdowns.
func (s *Service) Trends(ctx context.Context, days int) (*Trends, error) {
	var t Trends
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		t.DailyCarts, err = s.DailyCarts(gctx, days)
		return err
	})
	g.Go(func() error {
		var err error
		t.HourlyActivity, err = s.HourlyActivity(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		t.TopProducts, err = s.TopProducts(gctx, DefaultTopProductLimit)
		return err
	})
	g.Go(func() error {
		var err error
		t.CartValueDistribution, err = s.ValueDistribution(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cart trends: %w", err)
	}
	return &t, nil
}

// DailyCarts lists created, abandoned and converted counts for each of the last days, oldest first.
func (s *Service) DailyCarts(ctx context.Context, days int) ([]DailyCarts, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}
	today := startOfDay(s.now().UTC())
	out := make([]DailyCarts, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		counts, err := s.countDay(ctx, day)
		if err != nil {
			return nil, err
		}
		out = append(out, DailyCarts{
			Date:      day.Format("2006-01-02"),
			Created:   counts.created,
			Abandoned: counts.abandoned,
			Converted: counts.converted,
		})
	}
	return out, nil
}

// HourlyActivity buckets carts created in the last 24 hours by UTC hour of day.
func (s *Service) HourlyActivity(ctx context.Context) ([]HourlyActivity, error) {
	since := s.now().UTC().Add(-24 * time.Hour)
	var created []time.Time
	if err := s.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("created_at >= ?", since).
		Pluck("created_at", &created).Error; err != nil {
		return nil, fmt.Errorf("hourly activity: %w", err)
	}
	out := make([]HourlyActivity, 24)
	for hour := range out {
		out[hour].Hour = hour
	}
	for _, ts := range created {
		out[ts.UTC().Hour()].CartOperations++
	}
	return out, nil
}

// TopProducts ranks products by the number of active cart lines holding them.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = DefaultTopProductLimit
	}
	type row struct {
		ProductID     uint
		TimesAdded    int64
		TotalQuantity int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("cart_items").
		Select("cart_items.product_id AS product_id, COUNT(cart_items.id) AS times_added, COALESCE(SUM(cart_items.quantity), 0) AS total_quantity").
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.status = ?", enums.CartStatusActive).
		Group("cart_items.product_id").
		Order("times_added DESC, cart_items.product_id ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	if len(rows) == 0 {
		return []TopProduct{}, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProductID)
	}
	var products []models.Product
	if err := s.db.WithContext(ctx).Select("id", "title").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("top product titles: %w", err)
	}
	titles := make(map[uint]string, len(products))
	for _, p := range products {
		titles[p.ID] = p.Title
	}

	out := make([]TopProduct, 0, len(rows))
	for _, r := range rows {
		title, ok := titles[r.ProductID]
		if !ok || title == "" {
			title = unknownProductTitle
		}
		out = append(out, TopProduct{
			ProductID:     r.ProductID,
			ProductTitle:  title,
			TimesAdded:    r.TimesAdded,
			TotalQuantity: r.TotalQuantity,
		})
	}
	return out, nil
}

var valueBuckets = []struct {
	label string
	min   decimal.Decimal
	max   *decimal.Decimal
}{
	{"$0-$25", decimal.NewFromInt(0), ptr(decimal.NewFromInt(25))},
	{"$25-$50", decimal.NewFromInt(25), ptr(decimal.NewFromInt(50))},
	{"$50-$100", decimal.NewFromInt(50), ptr(decimal.NewFromInt(100))},
	{"$100-$200", decimal.NewFromInt(100), ptr(decimal.NewFromInt(200))},
	{"$200+", decimal.NewFromInt(200), nil},
}

// ValueDistribution buckets active cart values into half-open price ranges.
func (s *Service) ValueDistribution(ctx context.Context) ([]ValueBucket, error) {
	values, err := s.activeCartValues(ctx)
	if err != nil {
		return nil, err
	}
	return distribute(values), nil
}

// Snapshot persists the current metrics so history survives restarts.
func (s *Service) Snapshot(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	metrics, err := s.Metrics(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	snapshot := &models.AnalyticsSnapshot{CapturedAt: s.now().UTC(), Payload: string(payload)}
	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, fmt.Errorf("store analytics snapshot: %w", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"active_carts": metrics.ActiveCarts,
			"total_value":  metrics.TotalCartValue.String(),
		}), "cart analytics snapshot stored")
	}
	return snapshot, nil
}

func (s *Service) countByStatus(ctx context.Context, m *Metrics) error {
	type row struct {
		Status enums.CartStatus
		Total  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Model(&models.Cart{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		m.TotalCarts += r.Total
		switch r.Status {
		case enums.CartStatusActive:
			m.ActiveCarts = r.Total
		case enums.CartStatusAbandoned:
			m.AbandonedCarts = r.Total
		case enums.CartStatusExpired:
			m.ExpiredCarts = r.Total
		case enums.CartStatusConverted:
			m.ConvertedCarts = r.Total
		}
	}
	return nil
}

// activeCartValues returns one value per active cart, zero for empty carts.
func (s *Service) activeCartValues(ctx context.Context) ([]decimal.Decimal, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("status = ?", enums.CartStatusActive).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("active carts: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.CartItem
	if err := s.db.WithContext(ctx).
		Select("cart_id", "price", "quantity").
		Where("cart_id IN ?", ids).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("active cart items: %w", err)
	}
	totals := make(map[uuid.UUID]decimal.Decimal, len(ids))
	for _, id := range ids {
		totals[id] = decimal.Zero
	}
	for _, item := range items {
		totals[item.CartID] = totals[item.CartID].Add(item.LineTotal())
	}
	values := make([]decimal.Decimal, 0, len(totals))
	for _, v := range totals {
		values = append(values, v)
	}
	return values, nil
}

type dayCounts struct {
	created, abandoned, converted int64
}

func (s *Service) countDay(ctx context.Context, day time.Time) (dayCounts, error) {
	next := day.AddDate(0, 0, 1)
	var out dayCounts
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Cart{}).
		Where("created_at >= ? AND created_at < ?", day, next).
		Count(&out.created).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Cart{}).
		Where("status = ? AND updated_at >= ? AND updated_at < ?", enums.CartStatusAbandoned, day, next).
		Count(&out.abandoned).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Cart{}).
		Where("status = ? AND updated_at >= ? AND updated_at < ?", enums.CartStatusConverted, day, next).
		Count(&out.converted).Error; err != nil {
		return out, err
	}
	return out, nil
}

func (s *Service) cacheHitRate() float64 {
	if s.cache == nil {
		return 0
	}
	return s.cache.Stats().HitRate
}

// summarizeValues returns total, mean and median. The median is sorted[len/2].
func summarizeValues(values []decimal.Decimal) (total, avg, median decimal.Decimal) {
	total, avg, median = decimal.Zero, decimal.Zero, decimal.Zero
	if len(values) == 0 {
		return
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	for _, v := range sorted {
		total = total.Add(v)
	}
	avg = total.Div(decimal.NewFromInt(int64(len(sorted)))).Round(2)
	median = sorted[len(sorted)/2]
	return
}

func distribute(values []decimal.Decimal) []ValueBucket {
	out := make([]ValueBucket, len(valueBuckets))
	for i, b := range valueBuckets {
		out[i].Range = b.label
		for _, v := range values {
			if v.LessThan(b.min) {
				continue
			}
			if b.max != nil && !v.LessThan(*b.max) {
				continue
			}
			out[i].Count++
		}
		if len(values) > 0 {
			out[i].Percentage = float64(out[i].Count) / float64(len(values)) * 100
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func ptr[T any](v T) *T {
	return &v
}
