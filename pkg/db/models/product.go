package models

import (
	"time"

	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

// Product is the local mirror of a Shopify product.
type Product struct {
	ID               uint                `gorm:"column:id;primaryKey;autoIncrement"`
	ShopifyID        string              `gorm:"column:shopify_id;uniqueIndex;not null"`
	Handle           string              `gorm:"column:handle;uniqueIndex;not null"`
	Title            string              `gorm:"column:title;not null"`
	BodyHTML         *string             `gorm:"column:body_html"`
	Vendor           *string             `gorm:"column:vendor;index"`
	ProductType      *string             `gorm:"column:product_type;index"`
	Status           enums.ProductStatus `gorm:"column:status;not null;default:'ACTIVE';index"`
	PublishedAt      *time.Time          `gorm:"column:published_at"`
	ShopifyUpdatedAt *time.Time          `gorm:"column:shopify_updated_at"`
	DeletedAt        *time.Time          `gorm:"column:deleted_at;index"`
	Variants         []ProductVariant    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Options          []ProductOption     `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Media            []ProductMedia      `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Collections      []Collection        `gorm:"many2many:product_collections;"`
	Tags             []Tag               `gorm:"many2many:product_tags;"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// FirstImage returns the lowest-positioned media URL, if any.
func (p *Product) FirstImage() *string {
	if p == nil || len(p.Media) == 0 {
		return nil
	}
	best := p.Media[0]
	for _, m := range p.Media[1:] {
		if m.Position < best.Position {
			best = m
		}
	}
	url := best.URL
	return &url
}
