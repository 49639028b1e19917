package shopify

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
)

const resourceProducts = "products"

// StateRepository persists per-resource sync progress.
type StateRepository struct {
	db *gorm.DB
}

func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get returns nil when the resource has never been synced.
func (r *StateRepository) Get(ctx context.Context, resourceType string) (*models.SyncState, error) {
	var state models.SyncState
	err := r.db.WithContext(ctx).Where("resource_type = ?", resourceType).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *StateRepository) Save(ctx context.Context, resourceType string, cursor *string, syncedAt time.Time) error {
	state := models.SyncState{
		ResourceType: resourceType,
		LastCursor:   cursor,
		LastSyncTime: &syncedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resource_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_cursor", "last_sync_time", "updated_at"}),
		}).
		Create(&state).Error
}
