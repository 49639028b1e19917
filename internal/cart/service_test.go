package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/dbtest"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
)

const testSession = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type recordingOps struct {
	mu       sync.Mutex
	total    int
	failures int
	cartErrs []string
	dbErrs   []string
}

func (r *recordingOps) RecordOperation(_ time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if !success {
		r.failures++
	}
}

func (r *recordingOps) RecordCartError(_ context.Context, op string, _ error, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cartErrs = append(r.cartErrs, op)
}

func (r *recordingOps) RecordDatabaseError(_ context.Context, op string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dbErrs = append(r.dbErrs, op)
}

func (r *recordingOps) RecordCacheError(context.Context, string, error) {}

func (r *recordingOps) RecordPerformanceWarning(context.Context, string, time.Duration, time.Duration) {
}

type serviceFixture struct {
	svc   Service
	db    *gorm.DB
	cache *LRUCache
	clock *fakeClock
	ops   *recordingOps
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	client := dbtest.Client(t)
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewLRUCache(100, time.Minute)
	cache.now = clock.Now
	ops := &recordingOps{}
	svc, err := NewService(NewRepository(client.DB()), client, Options{
		Cache:    cache,
		Recorder: ops,
		Reporter: ops,
		Clock:    clock.Now,
	})
	require.NoError(t, err)
	return &serviceFixture{svc: svc, db: client.DB(), cache: cache, clock: clock, ops: ops}
}

func seedProduct(t *testing.T, conn *gorm.DB, handle string, price string) (models.Product, models.ProductVariant) {
	t.Helper()
	product := models.Product{
		ShopifyID: "gid://shopify/Product/" + handle,
		Handle:    handle,
		Title:     "Print " + handle,
		Status:    enums.ProductStatusActive,
		Media:     []models.ProductMedia{{URL: "https://cdn.example/" + handle + ".jpg", MediaType: enums.MediaTypeImage}},
	}
	require.NoError(t, conn.Create(&product).Error)

	variant := models.ProductVariant{
		ShopifyID:        "gid://shopify/ProductVariant/" + handle,
		ProductID:        product.ID,
		Title:            "A4",
		CurrencyCode:     enums.CurrencyUSD,
		AvailableForSale: true,
	}
	if price != "" {
		amount := decimal.RequireFromString(price)
		variant.PriceAmount = &amount
	}
	require.NoError(t, conn.Create(&variant).Error)
	return product, variant
}

func codeOf(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return ""
}

func TestCreateCartSetsExpiry(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	view, err := f.svc.CreateCart(ctx, testSession, nil)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, enums.CartStatusActive, view.Status)
	assert.WithinDuration(t, f.clock.t.Add(30*24*time.Hour), view.ExpiresAt, time.Second)
	assert.Empty(t, view.Items)

	again, err := f.svc.CreateCart(ctx, testSession, nil)
	require.NoError(t, err)
	assert.Equal(t, view.ID, again.ID, "existing cart is returned")
}

func TestGetCartMissingReturnsNil(t *testing.T) {
	f := newServiceFixture(t)
	view, err := f.svc.GetCart(context.Background(), testSession)
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestAddItemTwiceIncrementsQuantity(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	product, variant := seedProduct(t, f.db, "sunset", "12.50")

	item, view, err := f.svc.AddItem(ctx, testSession, AddItemInput{ProductID: product.ID, VariantID: variant.ID, Quantity: 1})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 1, item.Quantity)
	assert.True(t, item.Price.Equal(decimal.RequireFromString("12.50")))
	require.NotNil(t, item.Product)
	assert.Equal(t, "sunset", item.Product.Handle)
	require.NotNil(t, item.Product.Image)

	item2, view2, err := f.svc.AddItem(ctx, testSession, AddItemInput{ProductID: product.ID, VariantID: variant.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, item.ID, item2.ID)
	assert.Equal(t, 3, item2.Quantity)
	require.Len(t, view2.Items, 1)
	assert.Equal(t, view.ID, view2.ID)
	assert.Equal(t, 3, view2.TotalQuantity)
	assert.True(t, view2.TotalAmount.Equal(decimal.RequireFromString("37.50")))

	var count int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAddItemNullPriceIsZero(t *testing.T) {
	f := newServiceFixture(t)
	product, variant := seedProduct(t, f.db, "unpriced", "")

	item, _, err := f.svc.AddItem(context.Background(), testSession, AddItemInput{ProductID: product.ID, VariantID: variant.ID, Quantity: 1})
	require.NoError(t, err)
	assert.True(t, item.Price.IsZero())
}

func TestAddItemRejectsUnknownProductAndVariant(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	product, variant := seedProduct(t, f.db, "river", "10")
	other, otherVariant := seedProduct(t, f.db, "lake", "10")
	_ = other

	_, _, err := f.svc.AddItem(ctx, testSession, AddItemInput{ProductID: 9999, VariantID: variant.ID, Quantity: 1})
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
	assert.Equal(t, "Product not found", pkgerrors.As(err).Message())

	_, _, err = f.svc.AddItem(ctx, testSession, AddItemInput{ProductID: product.ID, VariantID: otherVariant.ID, Quantity: 1})
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
	assert.Equal(t, "Variant not found", pkgerrors.As(err).Message())

	_, _, err = f.svc.AddItem(ctx, testSession, AddItemInput{ProductID: product.ID, VariantID: variant.ID, Quantity: 0})
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))

	view, err := f.svc.GetCart(ctx, testSession)
	require.NoError(t, err)
	assert.Nil(t, view, "failed adds roll back the implicit cart")
	assert.Empty(t, f.ops.cartErrs, "client errors are not reported as cart errors")
	assert.Equal(t, 3, f.ops.failures)
}

func TestAddItemRejectsDeletedProduct(t *testing.T) {
	f := newServiceFixture(t)
	product, variant := seedProduct(t, f.db, "gone", "10")
	now := time.Now()
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", product.ID).Update("deleted_at", now).Error)

	_, _, err := f.svc.AddItem(context.Background(), testSession, AddItemInput{ProductID: product.ID, VariantID: variant.ID, Quantity: 1})
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
}

func TestUpdateItemQuantityAndRemove(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	product, variant := seedProduct(t, f.db, "meadow", "5")
	item, _, err := f.svc.AddItem(ctx, testSession, AddItemInput{ProductID: product.ID, VariantID: variant.ID, Quantity: 1})
	require.NoError(t, err)

	view, err := f.svc.UpdateItemQuantity(ctx, testSession, item.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, view.TotalQuantity)

	view, err = f.svc.UpdateItemQuantity(ctx, testSession, item.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = f.svc.RemoveItem(ctx, testSession, item.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
	assert.Equal(t, "Cart item not found", pkgerrors.As(err).Message())

	_, err = f.svc.UpdateItemQuantity(ctx, testSession, uuid.New(), 2)
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
}

func TestMutationsWithoutCart(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.ClearCart(ctx, testSession)
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(f.svc.DeleteCart(ctx, testSession)))
	_, err = f.svc.GetCart(ctx, "")
	assert.Equal(t, pkgerrors.CodeUnauthorized, codeOf(err))
}

func TestExpiredCartIsHiddenAndMarked(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateCart(ctx, testSession, nil)
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)
	view, err := f.svc.GetCart(ctx, testSession)
	require.NoError(t, err)
	assert.Nil(t, view)

	var row models.Cart
	require.NoError(t, f.db.First(&row, "id = ?", created.ID).Error)
	assert.Equal(t, enums.CartStatusExpired, row.Status)

	fresh, err := f.svc.GetOrCreateCart(ctx, testSession, nil)
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, fresh.ID)
	assert.Equal(t, enums.CartStatusActive, fresh.Status)
}

func TestGetCartUsesCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateCart(ctx, testSession, nil)
	require.NoError(t, err)
	f.cache.ResetStats()

	_, err = f.svc.GetCart(ctx, testSession)
	require.NoError(t, err)
	_, err = f.svc.GetCart(ctx, testSession)
	require.NoError(t, err)

	stats := f.cache.Stats()
	assert.EqualValues(t, 2, stats.Hits)
}

func TestClearAndDeleteCart(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	product, variant := seedProduct(t, f.db, "forest", "8")
	_, _, err := f.svc.AddItem(ctx, testSession, AddItemInput{ProductID: product.ID, VariantID: variant.ID, Quantity: 2})
	require.NoError(t, err)

	view, err := f.svc.ClearCart(ctx, testSession)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.TotalAmount.IsZero())

	require.NoError(t, f.svc.DeleteCart(ctx, testSession))
	view, err = f.svc.GetCart(ctx, testSession)
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestUpdateCartStatusAndOwner(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateCart(ctx, testSession, nil)
	require.NoError(t, err)

	owner := "user-42"
	view, err := f.svc.UpdateCart(ctx, testSession, UpdateInput{UserID: &owner})
	require.NoError(t, err)
	require.NotNil(t, view.UserID)
	assert.Equal(t, owner, *view.UserID)

	bad := "SHIPPED"
	_, err = f.svc.UpdateCart(ctx, testSession, UpdateInput{Status: &bad})
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))

	view, err = f.svc.ConvertCart(ctx, testSession)
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusConverted, view.Status)
}

func TestMergeCartsAddsQuantitiesAndKeepsLocalPrice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p1, v1 := seedProduct(t, f.db, "dawn", "10")
	p2, v2 := seedProduct(t, f.db, "dusk", "20")
	_, _, err := f.svc.AddItem(ctx, testSession, AddItemInput{ProductID: p1.ID, VariantID: v1.ID, Quantity: 1})
	require.NoError(t, err)

	view, result, err := f.svc.MergeCarts(ctx, testSession, []MergeLine{
		{ProductID: p1.ID, VariantID: v1.ID, Quantity: 2, Price: decimal.RequireFromString("9")},
		{ProductID: p2.ID, VariantID: v2.ID, Quantity: 1, Price: decimal.RequireFromString("18")},
		{ProductID: 777, VariantID: 888, Quantity: 1, Price: decimal.Zero},
	})
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Merged: 2, Skipped: 1}, result)
	require.Len(t, view.Items, 2)

	line1, ok := view.ItemFor(p1.ID, v1.ID)
	require.True(t, ok)
	assert.Equal(t, 3, line1.Quantity)
	assert.True(t, line1.Price.Equal(decimal.RequireFromString("10")), "existing line keeps its price")

	line2, ok := view.ItemFor(p2.ID, v2.ID)
	require.True(t, ok)
	assert.True(t, line2.Price.Equal(decimal.RequireFromString("18")), "new line takes the local price")
}

func TestConcurrentGetCartIsConsistent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateCart(ctx, testSession, nil)
	require.NoError(t, err)
	f.cache.Clear()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := f.svc.GetCart(ctx, testSession)
			if err == nil && view == nil {
				err = fmt.Errorf("expected cart")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

// gatedRepo pauses the first armed FindBySession after it has read the row.
type gatedRepo struct {
	CartRepository
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (g *gatedRepo) FindBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	cart, err := g.CartRepository.FindBySession(ctx, sessionID)
	if g.armed.CompareAndSwap(true, false) {
		close(g.read)
		<-g.release
	}
	return cart, err
}

func TestMutationIsVisibleDespiteInFlightRead(t *testing.T) {
	client := dbtest.Client(t)
	ctx := context.Background()
	repo := &gatedRepo{
		CartRepository: NewRepository(client.DB()),
		read:           make(chan struct{}),
		release:        make(chan struct{}),
	}
	cache := NewLRUCache(100, time.Minute)
	svc, err := NewService(repo, client, Options{Cache: cache})
	require.NoError(t, err)

	product, variant := seedProduct(t, client.DB(), "tide", "15")
	_, err = svc.CreateCart(ctx, testSession, nil)
	require.NoError(t, err)
	cache.Clear()

	repo.armed.Store(true)
	staleDone := make(chan *View, 1)
	go func() {
		view, _ := svc.GetCart(ctx, testSession)
		staleDone <- view
	}()
	<-repo.read

	item, view, err := svc.AddItem(ctx, testSession, AddItemInput{ProductID: product.ID, VariantID: variant.ID, Quantity: 1})
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Len(t, view.Items, 1)

	close(repo.release)
	stale := <-staleDone
	require.NotNil(t, stale)
	assert.Empty(t, stale.Items, "the in-flight read saw the cart before the commit")

	after, err := svc.GetCart(ctx, testSession)
	require.NoError(t, err)
	require.Len(t, after.Items, 1, "a pre-commit read must not repopulate the cache")
	assert.Equal(t, item.ID, after.Items[0].ID)
}

func TestCachedViewPastExpiryIsNotServed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateCart(ctx, testSession, nil)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Cart{}).
		Where("session_id = ?", testSession).
		Update("expires_at", f.clock.t.Add(30*time.Second)).Error)
	f.cache.Clear()
	view, err := f.svc.GetCart(ctx, testSession)
	require.NoError(t, err)
	require.NotNil(t, view)
	_, err = f.cache.Get(ctx, testSession)
	require.NoError(t, err, "view should be cached")

	f.clock.Advance(31 * time.Second)
	view, err = f.svc.GetCart(ctx, testSession)
	require.NoError(t, err)
	assert.Nil(t, view)

	var row models.Cart
	require.NoError(t, f.db.First(&row, "session_id = ?", testSession).Error)
	assert.Equal(t, enums.CartStatusExpired, row.Status)
}

type brokenRepo struct{ CartRepository }

func (brokenRepo) FindBySession(context.Context, string) (*models.Cart, error) {
	return nil, errors.New("connection reset by peer")
}

func TestDatabaseFailuresAreReportedAsDatabaseErrors(t *testing.T) {
	client := dbtest.Client(t)
	ops := &recordingOps{}
	svc, err := NewService(brokenRepo{NewRepository(client.DB())}, client, Options{Reporter: ops, Recorder: ops})
	require.NoError(t, err)

	_, err = svc.GetCart(context.Background(), testSession)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, codeOf(err))
	assert.Equal(t, []string{"cart.get"}, ops.dbErrs)
	assert.Empty(t, ops.cartErrs)
	assert.Equal(t, 1, ops.failures)
}
