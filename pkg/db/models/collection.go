package models

import "time"

// Collection mirrors a Shopify collection; the storefront exposes it as a category.
type Collection struct {
	ID               uint       `gorm:"column:id;primaryKey;autoIncrement"`
	ShopifyID        string     `gorm:"column:shopify_id;uniqueIndex;not null"`
	Handle           string     `gorm:"column:handle;uniqueIndex;not null"`
	Title            string     `gorm:"column:title;not null"`
	BodyHTML         *string    `gorm:"column:body_html"`
	SortOrder        *string    `gorm:"column:sort_order"`
	ShopifyUpdatedAt *time.Time `gorm:"column:shopify_updated_at"`
	DeletedAt        *time.Time `gorm:"column:deleted_at;index"`
	Products         []Product  `gorm:"many2many:product_collections;"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Tag is a free-form product label.
type Tag struct {
	ID   uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;uniqueIndex;not null"`
}
