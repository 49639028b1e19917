package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

// Cart is a session-scoped shopping cart.
type Cart struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	SessionID string           `gorm:"column:session_id;uniqueIndex;not null"`
	UserID    *string          `gorm:"column:user_id;index"`
	Status    enums.CartStatus `gorm:"column:status;not null;default:'ACTIVE';index"`
	ExpiresAt time.Time        `gorm:"column:expires_at;not null;index"`
	Items     []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime;index"`
}

// BeforeCreate assigns an id so sqlite and postgres behave the same.
func (c *Cart) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
