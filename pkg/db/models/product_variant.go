package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

// SelectedOption is a single name/value pair chosen for a variant.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProductVariant stores a purchasable variant of a product.
type ProductVariant struct {
	ID                   uint             `gorm:"column:id;primaryKey;autoIncrement"`
	ShopifyID            string           `gorm:"column:shopify_id;uniqueIndex;not null"`
	ProductID            uint             `gorm:"column:product_id;not null;index"`
	Title                string           `gorm:"column:title;not null"`
	SKU                  *string          `gorm:"column:sku"`
	PriceAmount          *decimal.Decimal `gorm:"column:price_amount;type:decimal(12,2)"`
	CompareAtPriceAmount *decimal.Decimal `gorm:"column:compare_at_price_amount;type:decimal(12,2)"`
	CurrencyCode         enums.Currency   `gorm:"column:currency_code;not null;default:'USD'"`
	AvailableForSale     bool             `gorm:"column:available_for_sale;not null"`
	InventoryItemID      *string          `gorm:"column:inventory_item_id"`
	SelectedOptions      []SelectedOption `gorm:"column:selected_options;type:text;serializer:json"`
	Position             int              `gorm:"column:position;not null;default:0"`
	CreatedAt            time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// Price returns the variant price, treating a missing amount as zero.
func (v *ProductVariant) Price() decimal.Decimal {
	if v == nil || v.PriceAmount == nil {
		return decimal.Zero
	}
	return *v.PriceAmount
}
