package models

import "time"

// SyncState remembers how far an incremental Shopify sync progressed per resource.
type SyncState struct {
	ID           uint       `gorm:"column:id;primaryKey;autoIncrement"`
	ResourceType string     `gorm:"column:resource_type;uniqueIndex;not null"`
	LastCursor   *string    `gorm:"column:last_cursor"`
	LastSyncTime *time.Time `gorm:"column:last_sync_time"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// AnalyticsSnapshot persists a JSON rendering of cart metrics.
type AnalyticsSnapshot struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	CapturedAt time.Time `gorm:"column:captured_at;not null;index"`
	Payload    string    `gorm:"column:payload;type:text;not null"`
}

// All lists every model in migration order; tests AutoMigrate it against sqlite.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&ProductOption{},
		&ProductMedia{},
		&Collection{},
		&Tag{},
		&Cart{},
		&CartItem{},
		&SyncState{},
		&AnalyticsSnapshot{},
	}
}
