package models

import (
	"time"

	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

// ProductMedia stores ordered media entries for products.
type ProductMedia struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID uint            `gorm:"column:product_id;not null;index"`
	ShopifyID *string         `gorm:"column:shopify_id"`
	MediaType enums.MediaType `gorm:"column:media_type;not null;default:'IMAGE'"`
	URL       string          `gorm:"column:url;not null"`
	AltText   *string         `gorm:"column:alt_text"`
	Width     *int            `gorm:"column:width"`
	Height    *int            `gorm:"column:height"`
	Position  int             `gorm:"column:position;not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (ProductMedia) TableName() string {
	return "product_media"
}
