package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindBySession(ctx context.Context, sessionID string) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) (*models.Cart, error)
	UpdateFields(ctx context.Context, cartID uuid.UUID, fields map[string]any) error
	Touch(ctx context.Context, cartID uuid.UUID, now time.Time) error
	Delete(ctx context.Context, cartID uuid.UUID) error
	FindProduct(ctx context.Context, productID uint) (*models.Product, error)
	FindVariant(ctx context.Context, productID, variantID uint) (*models.ProductVariant, error)
	FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error)
	FindLine(ctx context.Context, cartID uuid.UUID, productID, variantID uint) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
}

// CleanupRepository is the bulk status surface used by the cleaner.
type CleanupRepository interface {
	MarkExpired(ctx context.Context, now time.Time) ([]string, error)
	MarkAbandoned(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OperationRecorder receives the duration and outcome of every cart operation.
type OperationRecorder interface {
	RecordOperation(duration time.Duration, success bool)
}

// ErrorReporter receives failures worth surfacing in the error monitor.
type ErrorReporter interface {
	RecordCartError(ctx context.Context, operation string, err error, sessionID string)
	RecordDatabaseError(ctx context.Context, operation string, err error)
	RecordCacheError(ctx context.Context, operation string, err error)
	RecordPerformanceWarning(ctx context.Context, operation string, took, threshold time.Duration)
}
