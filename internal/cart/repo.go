package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindBySession loads the cart for a session with items, products, first media and variants.
func (r *Repository) FindBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Items.Product").
		Preload("Items.Product.Media", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Items.Variant").
		Where("session_id = ?", sessionID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts a new cart.
func (r *Repository) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if cart.Status == "" {
		cart.Status = enums.CartStatusActive
	}
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

// UpdateFields applies a partial update and bumps updated_at.
func (r *Repository) UpdateFields(ctx context.Context, cartID uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(fields).Error
}

// Touch bumps the cart's updated_at.
func (r *Repository) Touch(ctx context.Context, cartID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		UpdateColumn("updated_at", now.UTC()).Error
}

// Delete removes a cart and its lines.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	if err := r.DeleteItems(ctx, cartID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", cartID).Delete(&models.Cart{}).Error
}

// FindProduct returns a non-deleted product.
func (r *Repository) FindProduct(ctx context.Context, productID uint) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariant returns the variant only when it belongs to the product.
func (r *Repository) FindVariant(ctx context.Context, productID, variantID uint) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// FindItem returns a line restricted to the cart.
func (r *Repository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindLine returns the line for a (product, variant) pair.
func (r *Repository) FindLine(ctx context.Context, cartID uuid.UUID, productID, variantID uint) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND variant_id = ?", cartID, productID, variantID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", itemID).Delete(&models.CartItem{}).Error
}

func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
}

// MarkExpired flips active carts past expires_at to EXPIRED and returns their sessions.
func (r *Repository) MarkExpired(ctx context.Context, now time.Time) ([]string, error) {
	scope := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("status = ? AND expires_at < ?", enums.CartStatusActive, now.UTC())
	return r.flipStatus(ctx, scope, enums.CartStatusExpired)
}

// MarkAbandoned flips active carts with items, untouched since cutoff, to ABANDONED.
func (r *Repository) MarkAbandoned(ctx context.Context, cutoff time.Time) ([]string, error) {
	scope := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("status = ? AND updated_at < ?", enums.CartStatusActive, cutoff.UTC()).
		Where("EXISTS (SELECT 1 FROM cart_items WHERE cart_items.cart_id = carts.id)")
	return r.flipStatus(ctx, scope, enums.CartStatusAbandoned)
}

// DeleteExpiredBefore removes EXPIRED carts last updated before cutoff.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var rows []models.Cart
	if err := r.db.WithContext(ctx).
		Select("id", "session_id").
		Where("status = ? AND updated_at < ?", enums.CartStatusExpired, cutoff.UTC()).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	sessions := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		sessions = append(sessions, row.SessionID)
	}
	if err := r.db.WithContext(ctx).Where("cart_id IN ?", ids).Delete(&models.CartItem{}).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Cart{}).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// SessionsWithProduct lists the sessions whose carts hold a line for the
// product with the given Shopify id.
func (r *Repository) SessionsWithProduct(ctx context.Context, productShopifyID string) ([]string, error) {
	var sessions []string
	err := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Distinct("carts.session_id").
		Joins("JOIN cart_items ON cart_items.cart_id = carts.id").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("products.shopify_id = ?", productShopifyID).
		Pluck("carts.session_id", &sessions).Error
	return sessions, err
}

func (r *Repository) flipStatus(ctx context.Context, scope *gorm.DB, status enums.CartStatus) ([]string, error) {
	var rows []models.Cart
	if err := scope.Session(&gorm.Session{}).Select("id", "session_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	sessions := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		sessions = append(sessions, row.SessionID)
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id IN ?", ids).
		Update("status", status).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
