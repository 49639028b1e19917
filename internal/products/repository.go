package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
	"github.com/angelmondragon/watercolor-storefront/pkg/pagination"
)

const (
	categoryExistsClause = `EXISTS (SELECT 1 FROM product_collections pc JOIN collections c ON c.id = pc.collection_id
WHERE pc.product_id = products.id AND c.handle = ? AND c.deleted_at IS NULL)`
	tagsExistClause = `EXISTS (SELECT 1 FROM product_tags pt JOIN tags t ON t.id = pt.tag_id
WHERE pt.product_id = products.id AND t.name IN ?)`
	tagLikeClause = `EXISTS (SELECT 1 FROM product_tags pt JOIN tags t ON t.id = pt.tag_id
WHERE pt.product_id = products.id AND LOWER(t.name) LIKE ?)`
)

var productUpsertColumns = []string{
	"handle", "title", "body_html", "vendor", "product_type", "status",
	"published_at", "shopify_updated_at", "deleted_at", "updated_at",
}

var variantUpsertColumns = []string{
	"product_id", "title", "sku", "price_amount", "compare_at_price_amount", "currency_code",
	"available_for_sale", "inventory_item_id", "selected_options", "position", "updated_at",
}

var collectionUpsertColumns = []string{
	"handle", "title", "body_html", "sort_order", "shopify_updated_at", "deleted_at", "updated_at",
}

// ErrInvalidCursor reports a cursor that does not decode for the requested sort.
var ErrInvalidCursor = errors.New("invalid cursor")

// Repository reads the catalog for the API and writes it for sync and webhooks.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) withRelations(q *gorm.DB) *gorm.DB {
	byPosition := func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }
	return q.
		Preload("Variants", byPosition).
		Preload("Options", byPosition).
		Preload("Media", byPosition).
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Preload("Collections", func(db *gorm.DB) *gorm.DB { return db.Where("deleted_at IS NULL").Order("title ASC") })
}

func (r *Repository) live(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Product{}).Where("products.deleted_at IS NULL")
}

func applyFilters(q *gorm.DB, f Filters) *gorm.DB {
	if f.Status != nil {
		q = q.Where("products.status = ?", *f.Status)
	}
	if f.PublishedOnly {
		q = q.Where("products.status = ? AND products.published_at IS NOT NULL", enums.ProductStatusActive)
	}
	if v := strings.TrimSpace(f.Vendor); v != "" {
		q = q.Where("products.vendor = ?", v)
	}
	if t := strings.TrimSpace(f.ProductType); t != "" {
		q = q.Where("products.product_type = ?", t)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		q = q.Where(categoryExistsClause, c)
	}
	if len(f.Tags) > 0 {
		q = q.Where(tagsExistClause, f.Tags)
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		cond := "v.product_id = products.id AND v.price_amount IS NOT NULL"
		var args []any
		if f.MinPrice != nil {
			cond += " AND v.price_amount >= ?"
			args = append(args, *f.MinPrice)
		}
		if f.MaxPrice != nil {
			cond += " AND v.price_amount <= ?"
			args = append(args, *f.MaxPrice)
		}
		q = q.Where("EXISTS (SELECT 1 FROM product_variants v WHERE "+cond+")", args...)
	}
	return q
}

// List returns one keyset page and the cursor for the next one (empty when exhausted).
func (r *Repository) List(ctx context.Context, params ListParams) ([]models.Product, string, error) {
	params = params.normalized()
	col := "products." + params.SortBy.column()
	cmp, dir := "<", "DESC"
	if params.SortOrder == SortAsc {
		cmp, dir = ">", "ASC"
	}

	q := applyFilters(r.live(ctx), params.Filters)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if cursor != nil {
		var value any = cursor.Value
		if params.SortBy != SortByTitle {
			ts, err := cursor.TimeValue()
			if err != nil {
				return nil, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
			}
			value = ts
		}
		q = q.Where(
			fmt.Sprintf("(%s %s ?) OR (%s = ? AND products.id %s ?)", col, cmp, col, cmp),
			value, value, cursor.ID,
		)
	}

	var rows []models.Product
	err = r.withRelations(q).
		Order(col + " " + dir).
		Order("products.id " + dir).
		Limit(params.Limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > params.Limit {
		rows = rows[:params.Limit]
		last := rows[len(rows)-1]
		switch params.SortBy {
		case SortByTitle:
			next = pagination.EncodeCursor(pagination.Cursor{Value: last.Title, ID: last.ID})
		case SortByCreatedAt:
			next = pagination.EncodeCursor(pagination.TimeCursor(last.CreatedAt, last.ID))
		default:
			next = pagination.EncodeCursor(pagination.TimeCursor(last.UpdatedAt, last.ID))
		}
	}
	return rows, next, nil
}

func (r *Repository) Count(ctx context.Context, filters Filters) (int64, error) {
	var total int64
	err := applyFilters(r.live(ctx), filters).Count(&total).Error
	return total, err
}

func (r *Repository) FindByID(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.withRelations(r.live(ctx)).Where("products.id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) FindByHandle(ctx context.Context, handle string) (*models.Product, error) {
	var product models.Product
	if err := r.withRelations(r.live(ctx)).Where("products.handle = ?", handle).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByShopifyID ignores the soft-delete marker.
func (r *Repository) FindByShopifyID(ctx context.Context, shopifyID string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("shopify_id = ?", shopifyID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Search matches q case-insensitively against text columns and tag names.
func (r *Repository) Search(ctx context.Context, q string, limit int) ([]models.Product, int64, error) {
	pattern := "%" + strings.ToLower(q) + "%"
	match := func() *gorm.DB {
		return r.live(ctx).Where(
			r.db.Where("LOWER(products.title) LIKE ?", pattern).
				Or("LOWER(COALESCE(products.body_html, '')) LIKE ?", pattern).
				Or("LOWER(products.handle) LIKE ?", pattern).
				Or("LOWER(COALESCE(products.vendor, '')) LIKE ?", pattern).
				Or("LOWER(COALESCE(products.product_type, '')) LIKE ?", pattern).
				Or(tagLikeClause, pattern),
		)
	}

	var total int64
	if err := match().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Product
	err := r.withRelations(match()).
		Order("products.title ASC").
		Order("products.updated_at DESC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *Repository) FindCollectionByHandle(ctx context.Context, handle string) (*models.Collection, error) {
	var collection models.Collection
	err := r.db.WithContext(ctx).
		Where("handle = ? AND deleted_at IS NULL", handle).
		First(&collection).Error
	if err != nil {
		return nil, err
	}
	return &collection, nil
}

func (r *Repository) Categories(ctx context.Context) ([]CategoryCount, error) {
	var rows []CategoryCount
	err := r.db.WithContext(ctx).
		Table("collections c").
		Select("c.id, c.handle, c.title, c.body_html, COUNT(p.id) AS product_count").
		Joins("LEFT JOIN product_collections pc ON pc.collection_id = c.id").
		Joins("LEFT JOIN products p ON p.id = pc.product_id AND p.deleted_at IS NULL").
		Where("c.deleted_at IS NULL").
		Group("c.id, c.handle, c.title, c.body_html").
		Order("c.title ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *Repository) Tags(ctx context.Context) ([]TagCount, error) {
	var rows []TagCount
	err := r.db.WithContext(ctx).
		Table("tags t").
		Select("t.id, t.name, COUNT(p.id) AS product_count").
		Joins("LEFT JOIN product_tags pt ON pt.tag_id = t.id").
		Joins("LEFT JOIN products p ON p.id = pt.product_id AND p.deleted_at IS NULL").
		Group("t.id, t.name").
		Order("t.name ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	type statusCount struct {
		Status enums.ProductStatus
		Total  int64
	}
	var (
		stats  Stats
		counts []statusCount
	)
	if err := r.live(ctx).Select("status, COUNT(*) AS total").Group("status").Scan(&counts).Error; err != nil {
		return stats, err
	}
	for _, c := range counts {
		stats.Total += c.Total
		switch c.Status {
		case enums.ProductStatusActive:
			stats.Active = c.Total
		case enums.ProductStatusDraft:
			stats.Draft = c.Total
		case enums.ProductStatusArchived:
			stats.Archived = c.Total
		}
	}
	liveIDs := r.live(ctx).Select("products.id")
	if err := r.db.WithContext(ctx).Model(&models.ProductVariant{}).
		Where("product_id IN (?)", liveIDs).
		Count(&stats.TotalVariants).Error; err != nil {
		return stats, err
	}
	if err := r.db.WithContext(ctx).Model(&models.ProductMedia{}).
		Where("product_id IN (?)", liveIDs).
		Count(&stats.TotalMedia).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// UpsertProduct inserts or updates by shopify_id and fills product.ID.
func (r *Repository) UpsertProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if product.Status == "" {
		product.Status = enums.ProductStatusActive
	}
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shopify_id"}},
			DoUpdates: clause.AssignmentColumns(productUpsertColumns),
		}).
		Create(product).Error
	if err != nil {
		return nil, err
	}
	return product, r.resolveID(ctx, &models.Product{}, product.ShopifyID, &product.ID)
}

// UpsertVariant inserts or updates by shopify_id.
func (r *Repository) UpsertVariant(ctx context.Context, variant *models.ProductVariant) (*models.ProductVariant, error) {
	if variant.CurrencyCode == "" {
		variant.CurrencyCode = enums.CurrencyUSD
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shopify_id"}},
			DoUpdates: clause.AssignmentColumns(variantUpsertColumns),
		}).
		Create(variant).Error
	if err != nil {
		return nil, err
	}
	return variant, r.resolveID(ctx, &models.ProductVariant{}, variant.ShopifyID, &variant.ID)
}

// PruneVariants deletes the product's variants whose shopify ids are not in keep.
func (r *Repository) PruneVariants(ctx context.Context, productID uint, keep []string) (int64, error) {
	q := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if len(keep) > 0 {
		q = q.Where("shopify_id NOT IN ?", keep)
	}
	res := q.Delete(&models.ProductVariant{})
	return res.RowsAffected, res.Error
}

func (r *Repository) ReplaceOptions(ctx context.Context, productID uint, options []models.ProductOption) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", productID).Delete(&models.ProductOption{}).Error; err != nil {
		return err
	}
	if len(options) == 0 {
		return nil
	}
	for i := range options {
		options[i].ID = 0
		options[i].ProductID = productID
	}
	return tx.Create(&options).Error
}

func (r *Repository) ReplaceMedia(ctx context.Context, productID uint, media []models.ProductMedia) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", productID).Delete(&models.ProductMedia{}).Error; err != nil {
		return err
	}
	if len(media) == 0 {
		return nil
	}
	for i := range media {
		media[i].ID = 0
		media[i].ProductID = productID
		if media[i].MediaType == "" {
			media[i].MediaType = enums.MediaTypeImage
		}
	}
	return tx.Create(&media).Error
}

// ReplaceTags makes names the product's complete tag set, creating missing tags.
func (r *Repository) ReplaceTags(ctx context.Context, productID uint, names []string) error {
	tx := r.db.WithContext(ctx)
	tags := make([]models.Tag, 0, len(names))
	seen := map[string]struct{}{}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tag := models.Tag{Name: name}
		if err := tx.Where(models.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			return err
		}
		tags = append(tags, tag)
	}
	product := models.Product{ID: productID}
	if len(tags) == 0 {
		return tx.Model(&product).Association("Tags").Clear()
	}
	return tx.Model(&product).Association("Tags").Replace(tags)
}

// SoftDeleteProduct marks the product deleted and reports whether a row matched.
func (r *Repository) SoftDeleteProduct(ctx context.Context, shopifyID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("shopify_id = ?", shopifyID).
		Updates(map[string]any{
			"deleted_at": now,
			"status":     enums.ProductStatusDeleted,
			"updated_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) UpsertCollection(ctx context.Context, collection *models.Collection) (*models.Collection, error) {
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shopify_id"}},
			DoUpdates: clause.AssignmentColumns(collectionUpsertColumns),
		}).
		Create(collection).Error
	if err != nil {
		return nil, err
	}
	return collection, r.resolveID(ctx, &models.Collection{}, collection.ShopifyID, &collection.ID)
}

func (r *Repository) SoftDeleteCollection(ctx context.Context, shopifyID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Collection{}).
		Where("shopify_id = ?", shopifyID).
		Updates(map[string]any{"deleted_at": now, "updated_at": now})
	return res.RowsAffected > 0, res.Error
}

// resolveID re-reads the primary key after an upsert; drivers disagree on what
// an ON CONFLICT UPDATE reports back.
func (r *Repository) resolveID(ctx context.Context, model any, shopifyID string, dest *uint) error {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(model).
		Where("shopify_id = ?", shopifyID).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return gorm.ErrRecordNotFound
	}
	*dest = ids[0]
	return nil
}
