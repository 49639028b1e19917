package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

// View is the cart shape returned to clients and held in the caches.
type View struct {
	ID            uuid.UUID        `json:"id"`
	SessionID     string           `json:"sessionId"`
	UserID        *string          `json:"userId,omitempty"`
	Status        enums.CartStatus `json:"status"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	Items         []ItemView       `json:"items"`
	TotalQuantity int              `json:"totalQuantity"`
	TotalAmount   decimal.Decimal  `json:"totalAmount"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

type ItemView struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uint            `json:"productId"`
	VariantID uint            `json:"variantId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	Product   *ProductSummary `json:"product,omitempty"`
	Variant   *VariantSummary `json:"variant,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type ProductSummary struct {
	ID     uint    `json:"id"`
	Title  string  `json:"title"`
	Handle string  `json:"handle"`
	Image  *string `json:"image,omitempty"`
}

type VariantSummary struct {
	ID               uint    `json:"id"`
	Title            string  `json:"title"`
	SKU              *string `json:"sku,omitempty"`
	AvailableForSale bool    `json:"availableForSale"`
}

// NewView projects a cart row with preloaded items into a View.
func NewView(c *models.Cart) *View {
	if c == nil {
		return nil
	}
	v := &View{
		ID:          c.ID,
		SessionID:   c.SessionID,
		UserID:      c.UserID,
		Status:      c.Status,
		ExpiresAt:   c.ExpiresAt,
		Items:       make([]ItemView, 0, len(c.Items)),
		TotalAmount: decimal.Zero,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	for _, item := range c.Items {
		iv := ItemView{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			LineTotal: item.LineTotal(),
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
		}
		if item.Product != nil {
			iv.Product = &ProductSummary{
				ID:     item.Product.ID,
				Title:  item.Product.Title,
				Handle: item.Product.Handle,
				Image:  item.Product.FirstImage(),
			}
		}
		if item.Variant != nil {
			iv.Variant = &VariantSummary{
				ID:               item.Variant.ID,
				Title:            item.Variant.Title,
				SKU:              item.Variant.SKU,
				AvailableForSale: item.Variant.AvailableForSale,
			}
		}
		v.Items = append(v.Items, iv)
		v.TotalQuantity += item.Quantity
		v.TotalAmount = v.TotalAmount.Add(iv.LineTotal)
	}
	return v
}

// Item returns the line with the given id.
func (v *View) Item(id uuid.UUID) (ItemView, bool) {
	if v == nil {
		return ItemView{}, false
	}
	for _, item := range v.Items {
		if item.ID == id {
			return item, true
		}
	}
	return ItemView{}, false
}

// ItemFor returns the line for a (product, variant) pair.
func (v *View) ItemFor(productID, variantID uint) (ItemView, bool) {
	if v == nil {
		return ItemView{}, false
	}
	for _, item := range v.Items {
		if item.ProductID == productID && item.VariantID == variantID {
			return item, true
		}
	}
	return ItemView{}, false
}

// Expired reports whether the cart is past its expiry at now.
func (v *View) Expired(now time.Time) bool {
	return v != nil && v.ExpiresAt.Before(now)
}
