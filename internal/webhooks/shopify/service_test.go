package shopifywebhook

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/watercolor-storefront/internal/cart"
	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/dbtest"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
	pkgredis "github.com/angelmondragon/watercolor-storefront/pkg/redis"
)

const productCreateBody = `{
  "id": 632910392,
  "title": "Morning Fog",
  "handle": "morning-fog",
  "body_html": "<p>Loose wash</p>",
  "vendor": "Studio",
  "product_type": "Original",
  "status": "active",
  "tags": "landscape, grey ,",
  "options": [{"name": "Size", "position": 1, "values": ["Small", "Large"]}],
  "variants": [
    {"id": 808950810, "title": "Small", "price": "120.00", "sku": "MF-S", "position": 1, "inventory_item_id": 39072856, "option1": "Small"},
    {"id": 808950811, "title": "Large", "price": "220.00", "compare_at_price": "250.00", "position": 2, "option1": "Large"}
  ],
  "images": [{"id": 850703190, "src": "https://cdn.example/fog.jpg", "alt": "Fog", "position": 1, "width": 800, "height": 600}]
}`

type fixture struct {
	svc     Service
	catalog *product.Repository
	now     time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Client(t)
	catalog := product.NewRepository(client.DB())
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		Catalog:           catalog,
		TransactionRunner: client,
		Clock:             func() time.Time { return now },
	})
	require.NoError(t, err)
	return fixture{svc: svc, catalog: catalog, now: now}
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestProductCreateWritesRelations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsCreate, []byte(productCreateBody)))

	got, err := f.catalog.FindByHandle(ctx, "morning-fog")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Product/632910392", got.ShopifyID)
	assert.Equal(t, enums.ProductStatusActive, got.Status)
	require.Len(t, got.Variants, 2)
	assert.Equal(t, "gid://shopify/ProductVariant/808950810", got.Variants[0].ShopifyID)
	assert.Equal(t, "120", got.Variants[0].Price().String())
	require.NotNil(t, got.Variants[0].InventoryItemID)
	assert.Equal(t, "gid://shopify/InventoryItem/39072856", *got.Variants[0].InventoryItemID)
	assert.Equal(t, []models.SelectedOption{{Name: "Size", Value: "Small"}}, got.Variants[0].SelectedOptions)
	require.NotNil(t, got.Variants[1].CompareAtPriceAmount)
	assert.Equal(t, enums.CurrencyUSD, got.Variants[1].CurrencyCode)
	require.Len(t, got.Media, 1)
	assert.Equal(t, "https://cdn.example/fog.jpg", got.Media[0].URL)
	require.Len(t, got.Options, 1)
	require.Len(t, got.Tags, 2)
}

func TestProductUpdatePrunesVariantsAndReplacesTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsCreate, []byte(productCreateBody)))

	update := `{"id": 632910392, "title": "Morning Fog II", "handle": "morning-fog", "status": "draft", "tags": "",
	  "variants": [{"id": 808950811, "title": "Large", "price": "199.00", "position": 1}]}`
	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsUpdate, []byte(update)))

	got, err := f.catalog.FindByShopifyID(ctx, "gid://shopify/Product/632910392")
	require.NoError(t, err)
	assert.Equal(t, "Morning Fog II", got.Title)
	assert.Equal(t, enums.ProductStatusDraft, got.Status)

	full, err := f.catalog.FindByID(ctx, got.ID)
	require.NoError(t, err)
	require.Len(t, full.Variants, 1)
	assert.Equal(t, "199", full.Variants[0].Price().String())
	assert.Empty(t, full.Tags)
	assert.Len(t, full.Media, 1, "images untouched when the payload omits them")
}

func TestProductUpdateCreatesMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := `{"admin_graphql_api_id": "gid://shopify/Product/77", "id": 77, "title": "Late Tide", "handle": "late-tide"}`
	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsUpdate, []byte(body)))

	got, err := f.catalog.FindByHandle(ctx, "late-tide")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Product/77", got.ShopifyID)
}

func TestProductDeleteSoftDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsCreate, []byte(productCreateBody)))

	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsDelete, []byte(`{"id": 632910392}`)))

	_, err := f.catalog.FindByHandle(ctx, "morning-fog")
	require.Error(t, err)
	got, err := f.catalog.FindByShopifyID(ctx, "gid://shopify/Product/632910392")
	require.NoError(t, err)
	assert.Equal(t, enums.ProductStatusDeleted, got.Status)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.DeletedAt.Equal(f.now))

	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsDelete, []byte(`{"id": 1}`)))
}

func TestProductEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.HandleProductEvent(ctx, TopicProductsCreate, []byte(`{`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = f.svc.HandleProductEvent(ctx, TopicProductsCreate, []byte(`{"title": "no id"}`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = f.svc.HandleProductEvent(ctx, TopicProductsCreate, []byte(`{"id": 5}`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.NoError(t, f.svc.HandleProductEvent(ctx, "products/paid", []byte(`{"id": 5}`)))
}

func TestCollectionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	create := `{"id": 482865238, "handle": "seascapes", "title": "Seascapes", "body_html": "<p>Sea</p>", "sort_order": "manual", "updated_at": "2025-05-01T10:00:00-04:00"}`
	require.NoError(t, f.svc.HandleCollectionEvent(ctx, TopicCollectionsCreate, []byte(create)))

	got, err := f.catalog.FindCollectionByHandle(ctx, "seascapes")
	require.NoError(t, err)
	assert.Equal(t, "Seascapes", got.Title)
	require.NotNil(t, got.SortOrder)
	assert.Equal(t, "manual", *got.SortOrder)

	update := `{"id": 482865238, "handle": "seascapes", "title": "Sea & Shore"}`
	require.NoError(t, f.svc.HandleCollectionEvent(ctx, TopicCollectionsUpdate, []byte(update)))
	got, err = f.catalog.FindCollectionByHandle(ctx, "seascapes")
	require.NoError(t, err)
	assert.Equal(t, "Sea & Shore", got.Title)

	require.NoError(t, f.svc.HandleCollectionEvent(ctx, TopicCollectionsDelete, []byte(`{"id": 482865238}`)))
	_, err = f.catalog.FindCollectionByHandle(ctx, "seascapes")
	require.Error(t, err)
}

func TestSignature(t *testing.T) {
	body := []byte(`{"id":1}`)
	sig := Sign(body, "whsec")

	assert.True(t, VerifySignature(body, sig, "whsec"))
	assert.False(t, VerifySignature(body, sig, "other"))
	assert.False(t, VerifySignature([]byte(`{"id":2}`), sig, "whsec"))
	assert.False(t, VerifySignature(body, "not base64!", "whsec"))
	assert.False(t, VerifySignature(body, "", "whsec"))
}

func TestIdempotencyGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	guard, err := NewIdempotencyGuard(pkgredis.NewFromRaw(raw), 0)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, DefaultDedupeTTL, mr.TTL(pkgredis.NewFromRaw(raw).IdempotencyKey(dedupeScope, "evt-1")))

	seen, err = guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Release(ctx, "evt-1"))
	seen, err = guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "")
	require.Error(t, err)
	_, err = NewIdempotencyGuard(nil, time.Hour)
	require.Error(t, err)
}

const cartSession = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"

type cartFixture struct {
	svc     Service
	carts   cart.Service
	catalog *product.Repository
}

func newCartFixture(t *testing.T) cartFixture {
	t.Helper()
	client := dbtest.Client(t)
	catalog := product.NewRepository(client.DB())
	cartRepo := cart.NewRepository(client.DB())
	cache := cart.NewLRUCache(10, time.Hour)

	views, err := cart.NewProductViewInvalidator(cartRepo, cache)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Catalog: catalog, TransactionRunner: client, CartViews: views})
	require.NoError(t, err)
	carts, err := cart.NewService(cartRepo, client, cart.Options{Cache: cache})
	require.NoError(t, err)
	return cartFixture{svc: svc, carts: carts, catalog: catalog}
}

// cartSmallPrint creates the product from productCreateBody and puts its
// "Small" variant in the cart.
func (f cartFixture) cartSmallPrint(t *testing.T, ctx context.Context) *cart.View {
	t.Helper()
	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsCreate, []byte(productCreateBody)))
	saved, err := f.catalog.FindByShopifyID(ctx, "gid://shopify/Product/632910392")
	require.NoError(t, err)
	full, err := f.catalog.FindByID(ctx, saved.ID)
	require.NoError(t, err)

	var small *models.ProductVariant
	for i := range full.Variants {
		if full.Variants[i].ShopifyID == "gid://shopify/ProductVariant/808950810" {
			small = &full.Variants[i]
		}
	}
	require.NotNil(t, small)

	_, view, err := f.carts.AddItem(ctx, cartSession, cart.AddItemInput{ProductID: saved.ID, VariantID: small.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	return view
}

func TestProductUpdateDropsVariantHeldInCart(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	f.cartSmallPrint(t, ctx)

	update := `{"id": 632910392, "title": "Morning Fog II", "handle": "morning-fog",
	  "variants": [{"id": 808950811, "title": "Large", "price": "220.00", "position": 1}]}`
	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsUpdate, []byte(update)))

	got, err := f.catalog.FindByShopifyID(ctx, "gid://shopify/Product/632910392")
	require.NoError(t, err)
	assert.Equal(t, "Morning Fog II", got.Title)

	view, err := f.carts.GetCart(ctx, cartSession)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Empty(t, view.Items, "lines for a removed variant go with it")
}

func TestProductUpdateRefreshesCachedCartViews(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	before := f.cartSmallPrint(t, ctx)
	require.NotNil(t, before.Items[0].Product)
	assert.Equal(t, "Morning Fog", before.Items[0].Product.Title)

	update := `{"id": 632910392, "title": "Morning Fog (Framed)", "handle": "morning-fog"}`
	require.NoError(t, f.svc.HandleProductEvent(ctx, TopicProductsUpdate, []byte(update)))

	view, err := f.carts.GetCart(ctx, cartSession)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	require.NotNil(t, view.Items[0].Product)
	assert.Equal(t, "Morning Fog (Framed)", view.Items[0].Product.Title)
}
