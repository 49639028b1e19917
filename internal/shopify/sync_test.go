package shopify

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	"github.com/angelmondragon/watercolor-storefront/pkg/db"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/dbtest"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
)

const sampleNDJSON = `{"__typename":"Product","id":"gid://shopify/Product/1","handle":"blue-heron","title":"Blue Heron","descriptionHtml":"<p>Wading</p>","vendor":"Studio","productType":"Print","status":"ACTIVE","publishedAt":"2024-01-01T00:00:00Z","tags":["birds","blue"],"updatedAt":"2024-02-01T00:00:00Z","options":[{"name":"Size","position":1,"values":["8x10","11x14"]}]}
{"__typename":"ProductVariant","id":"gid://shopify/ProductVariant/11","title":"8x10","sku":"BH-810","price":"25.00","compareAtPrice":null,"position":1,"inventoryItem":{"id":"gid://shopify/InventoryItem/1"},"__parentId":"gid://shopify/Product/1"}
{"__typename":"ProductVariant","id":"gid://shopify/ProductVariant/12","title":"11x14","price":"40.00","compareAtPrice":"45.00","position":2,"__parentId":"gid://shopify/Product/1"}
{"__typename":"MediaImage","mediaContentType":"IMAGE","id":"gid://shopify/MediaImage/5","image":{"url":"https://cdn.example/heron.jpg","altText":"Heron","width":800,"height":600},"__parentId":"gid://shopify/Product/1"}
{"__typename":"MediaImage","mediaContentType":"IMAGE","id":"gid://shopify/MediaImage/6","image":{},"__parentId":"gid://shopify/Product/1"}
{"__typename":"Product","id":"gid://shopify/Product/2","handle":"harbor","title":"Harbor","status":"DRAFT","tags":[]}
{"__typename":"ProductOption","name":"Frame","position":1,"values":["None","Oak"],"__parentId":"gid://shopify/Product/2"}
{"__typename":"ProductVariant","id":"gid://shopify/ProductVariant/99","title":"Orphan","price":"1.00","__parentId":"gid://shopify/Product/404"}
not json
`

func writeNDJSON(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bulk.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newCatalog(t *testing.T) (*db.Client, *product.Repository) {
	t.Helper()
	client := dbtest.Client(t)
	return client, product.NewRepository(client.DB())
}

func TestImporterThreePasses(t *testing.T) {
	client, catalog := newCatalog(t)
	ctx := context.Background()

	result, err := NewImporter(client, catalog, nil).Import(ctx, writeNDJSON(t, sampleNDJSON))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Products: 2, Variants: 2, Options: 2, Media: 1, Skipped: 3}, result)

	heron, err := catalog.FindByHandle(ctx, "blue-heron")
	require.NoError(t, err)
	assert.Equal(t, "Blue Heron", heron.Title)
	assert.Equal(t, enums.ProductStatusActive, heron.Status)
	require.Len(t, heron.Variants, 2)
	assert.Equal(t, "25", heron.Variants[0].Price().String())
	require.NotNil(t, heron.Variants[1].CompareAtPriceAmount)
	assert.Equal(t, "45", heron.Variants[1].CompareAtPriceAmount.String())
	require.Len(t, heron.Media, 1)
	assert.Equal(t, "https://cdn.example/heron.jpg", heron.Media[0].URL)
	require.Len(t, heron.Options, 1)
	assert.Equal(t, []string{"8x10", "11x14"}, heron.Options[0].Values)
	require.Len(t, heron.Tags, 2)

	harbor, err := catalog.FindByHandle(ctx, "harbor")
	require.NoError(t, err)
	assert.Equal(t, enums.ProductStatusDraft, harbor.Status)
	require.Len(t, harbor.Options, 1)
	assert.Equal(t, "Frame", harbor.Options[0].Name)

	again, err := NewImporter(client, catalog, nil).Import(ctx, writeNDJSON(t, sampleNDJSON))
	require.NoError(t, err)
	assert.Equal(t, result, again)
	var products int64
	require.NoError(t, client.DB().Model(&models.Product{}).Count(&products).Error)
	assert.EqualValues(t, 2, products)
}

func TestPollBulkWaitsForCompletion(t *testing.T) {
	shop, srv := newFakeShop(t)
	shop.on("currentBulkOperation", func(_ gqlCall, n int) (int, any) {
		status, url := "RUNNING", any(nil)
		if n == 2 {
			status, url = "COMPLETED", "https://storage.example/result.jsonl"
		}
		return http.StatusOK, data(map[string]any{"currentBulkOperation": map[string]any{
			"id": "gid://shopify/BulkOperation/1", "status": status, "objectCount": fmt.Sprint(n * 10), "url": url,
		}})
	})
	client, rec := newTestClient(t, srv)

	url, err := client.PollBulk(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example/result.jsonl", url)
	assert.Equal(t, []time.Duration{DefaultBulkPollInterval, DefaultBulkPollInterval}, rec.sleeps)
}

func TestPollBulkFailure(t *testing.T) {
	shop, srv := newFakeShop(t)
	shop.on("currentBulkOperation", func(gqlCall, int) (int, any) {
		return http.StatusOK, data(map[string]any{"currentBulkOperation": map[string]any{
			"id": "gid://shopify/BulkOperation/1", "status": "FAILED", "errorCode": "ACCESS_DENIED", "objectCount": "0",
		}})
	})
	client, _ := newTestClient(t, srv)

	_, err := client.PollBulk(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_DENIED")
}

func TestStartBulkUserErrors(t *testing.T) {
	shop, srv := newFakeShop(t)
	shop.on("bulkOperationRunQuery", func(call gqlCall, _ int) (int, any) {
		assert.Contains(t, call.Variables["query"], "products")
		return http.StatusOK, data(map[string]any{"bulkOperationRunQuery": map[string]any{
			"bulkOperation": nil,
			"userErrors":    []any{map[string]any{"field": []string{"query"}, "message": "A bulk query operation is already in progress"}},
		}})
	})
	client, _ := newTestClient(t, srv)

	_, err := client.StartBulk(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestBackfillEndToEnd(t *testing.T) {
	shop, srv := newFakeShop(t)
	shop.extra["/bulk/result.jsonl"] = func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(headerAccessToken))
		_, _ = w.Write([]byte(sampleNDJSON))
	}
	shop.on("bulkOperationRunQuery", func(gqlCall, int) (int, any) {
		return http.StatusOK, data(map[string]any{"bulkOperationRunQuery": map[string]any{
			"bulkOperation": map[string]any{"id": "gid://shopify/BulkOperation/9", "status": "CREATED"},
			"userErrors":    []any{},
		}})
	})
	shop.on("currentBulkOperation", func(gqlCall, int) (int, any) {
		return http.StatusOK, data(map[string]any{"currentBulkOperation": map[string]any{
			"id": "gid://shopify/BulkOperation/9", "status": "COMPLETED", "objectCount": "9", "url": srv.URL + "/bulk/result.jsonl",
		}})
	})
	client, _ := newTestClient(t, srv)
	dbClient, catalog := newCatalog(t)
	state := NewStateRepository(dbClient.DB())
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	tmp := t.TempDir()

	result, err := NewBackfiller(client, NewImporter(dbClient, catalog, nil), state, BackfillOptions{
		TmpDir: tmp,
		Clock:  func() time.Time { return now },
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Products)

	saved, err := state.Get(context.Background(), "products")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.True(t, saved.LastSyncTime.Equal(now))

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdatedSince(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	window := now.Add(-5 * time.Minute)

	assert.Equal(t, window, UpdatedSince(nil, now, 5*time.Minute))
	old := now.Add(-2 * time.Hour)
	assert.Equal(t, old, UpdatedSince(&old, now, 5*time.Minute))
	recent := now.Add(-time.Minute)
	assert.Equal(t, window, UpdatedSince(&recent, now, 5*time.Minute))
}

func deltaNode(id, handle, title string, price string) map[string]any {
	return map[string]any{
		"id": "gid://shopify/Product/" + id, "handle": handle, "title": title, "status": "ACTIVE",
		"tags":    []string{"fresh"},
		"options": []any{map[string]any{"name": "Size", "values": []string{"A4"}}},
		"variants": map[string]any{"edges": []any{
			map[string]any{"node": map[string]any{"id": "gid://shopify/ProductVariant/" + id, "title": "A4", "price": price}},
		}},
		"media": map[string]any{"edges": []any{
			map[string]any{"node": map[string]any{"mediaContentType": "VIDEO", "id": "gid://shopify/Video/" + id}},
			map[string]any{"node": map[string]any{"mediaContentType": "IMAGE", "id": "gid://shopify/MediaImage/" + id,
				"image": map[string]any{"url": "https://cdn.example/" + handle + ".jpg"}}},
		}},
	}
}

func TestDeltaSyncPagesAndSavesCursor(t *testing.T) {
	shop, srv := newFakeShop(t)
	var searches []string
	shop.on("DeltaProducts", func(call gqlCall, n int) (int, any) {
		searches = append(searches, fmt.Sprint(call.Variables["query"]))
		if n == 0 {
			assert.Nil(t, call.Variables["after"])
			return http.StatusOK, map[string]any{
				"data": map[string]any{"products": map[string]any{
					"edges": []any{
						map[string]any{"cursor": "c1", "node": deltaNode("1", "iris", "Iris", "30.00")},
						map[string]any{"cursor": "c2", "node": deltaNode("2", "lily", "Lily", "32.00")},
					},
					"pageInfo": map[string]any{"hasNextPage": true, "endCursor": "c2"},
				}},
				"extensions": map[string]any{"cost": map[string]any{
					"throttleStatus": map[string]any{"maximumAvailable": 1000, "currentlyAvailable": 20, "restoreRate": 50},
				}},
			}
		}
		assert.Equal(t, "c2", call.Variables["after"])
		return http.StatusOK, data(map[string]any{"products": map[string]any{
			"edges":    []any{map[string]any{"cursor": "c3", "node": deltaNode("3", "rose", "Rose", "28.00")}},
			"pageInfo": map[string]any{"hasNextPage": false, "endCursor": "c3"},
		}})
	})
	client, rec := newTestClient(t, srv)
	dbClient, catalog := newCatalog(t)
	state := NewStateRepository(dbClient.DB())
	ctx := context.Background()

	lastSync := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, state.Save(ctx, "products", nil, lastSync))
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	syncer := NewDeltaSyncer(client, dbClient, catalog, state, DeltaOptions{Clock: func() time.Time { return now }})
	result, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 3, result.Products)
	assert.Equal(t, 3, result.Variants)
	assert.True(t, result.Since.Equal(lastSync))

	require.Len(t, searches, 2)
	assert.Equal(t, "updated_at:>='2025-04-30T00:00:00Z'", searches[0])
	assert.Equal(t, []time.Duration{10 * time.Second, deltaPageDelay}, rec.sleeps)

	iris, err := catalog.FindByHandle(ctx, "iris")
	require.NoError(t, err)
	require.Len(t, iris.Variants, 1)
	assert.Equal(t, enums.CurrencyUSD, iris.Variants[0].CurrencyCode)
	require.Len(t, iris.Media, 1)
	assert.Equal(t, 0, iris.Media[0].Position)
	require.Len(t, iris.Options, 1)
	assert.Equal(t, 0, iris.Options[0].Position)

	saved, err := state.Get(ctx, "products")
	require.NoError(t, err)
	require.NotNil(t, saved.LastCursor)
	assert.Equal(t, "c3", *saved.LastCursor)
	assert.True(t, saved.LastSyncTime.Equal(now))
}

func TestDeltaSyncPropagatesQueryErrors(t *testing.T) {
	shop, srv := newFakeShop(t)
	shop.on("DeltaProducts", func(gqlCall, int) (int, any) {
		return http.StatusOK, map[string]any{"errors": []any{map[string]any{"message": "Throttled"}}}
	})
	client, _ := newTestClient(t, srv)
	dbClient, catalog := newCatalog(t)
	state := NewStateRepository(dbClient.DB())

	_, err := NewDeltaSyncer(client, dbClient, catalog, state, DeltaOptions{}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.ErrorIs(t, err, ErrGraphQL)

	saved, err := state.Get(context.Background(), "products")
	require.NoError(t, err)
	assert.Nil(t, saved)
}
