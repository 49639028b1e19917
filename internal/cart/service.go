package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/angelmondragon/watercolor-storefront/pkg/db"
	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

const (
	DefaultExpiry        = 30 * 24 * time.Hour
	DefaultSlowOperation = time.Second
)

const generationStripes = 256

const (
	msgCartNotFound     = "Cart not found"
	msgProductNotFound  = "Product not found"
	msgVariantNotFound  = "Variant not found"
	msgCartItemNotFound = "Cart item not found"
)

// Service exposes the session-scoped cart operations.
type Service interface {
	CreateCart(ctx context.Context, sessionID string, userID *string) (*View, error)
	GetCart(ctx context.Context, sessionID string) (*View, error)
	GetOrCreateCart(ctx context.Context, sessionID string, userID *string) (*View, error)
	AddItem(ctx context.Context, sessionID string, input AddItemInput) (*ItemView, *View, error)
	UpdateItemQuantity(ctx context.Context, sessionID string, itemID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, sessionID string, itemID uuid.UUID) (*View, error)
	ClearCart(ctx context.Context, sessionID string) (*View, error)
	DeleteCart(ctx context.Context, sessionID string) error
	UpdateCart(ctx context.Context, sessionID string, input UpdateInput) (*View, error)
	MergeCarts(ctx context.Context, sessionID string, lines []MergeLine) (*View, MergeResult, error)
	ConvertCart(ctx context.Context, sessionID string) (*View, error)
}

// AddItemInput identifies the line to add. Quantity must be positive.
type AddItemInput struct {
	ProductID uint
	VariantID uint
	Quantity  int
}

// UpdateInput carries optional owner and status changes.
type UpdateInput struct {
	UserID *string
	Status *string
}

// MergeLine is a validated line coming from a browser-stored cart.
type MergeLine struct {
	ProductID uint
	VariantID uint
	Quantity  int
	Price     decimal.Decimal
}

type MergeResult struct {
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
}

// Options configures optional collaborators. Zero values fall back to defaults.
type Options struct {
	Cache         Cache
	Recorder      OperationRecorder
	Reporter      ErrorReporter
	Logger        *logger.Logger
	Expiry        time.Duration
	SlowOperation time.Duration
	Clock         func() time.Time
}

type service struct {
	repo     CartRepository
	tx       txRunner
	cache    Cache
	recorder OperationRecorder
	reporter ErrorReporter
	logg     *logger.Logger
	expiry   time.Duration
	slow     time.Duration
	now      func() time.Time
	loads    singleflight.Group
	// gens counts invalidations per session stripe. A read only caches its
	// view when no invalidation happened while it was in flight.
	gens [generationStripes]atomic.Uint64
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	svc := &service{
		repo:     repo,
		tx:       tx,
		cache:    opts.Cache,
		recorder: opts.Recorder,
		reporter: opts.Reporter,
		logg:     opts.Logger,
		expiry:   opts.Expiry,
		slow:     opts.SlowOperation,
		now:      opts.Clock,
	}
	if svc.cache == nil {
		svc.cache = NewLRUCache(DefaultCacheSize, DefaultCacheTTL)
	}
	if svc.expiry <= 0 {
		svc.expiry = DefaultExpiry
	}
	if svc.slow <= 0 {
		svc.slow = DefaultSlowOperation
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	clock := svc.now
	svc.now = func() time.Time { return clock().UTC() }
	return svc, nil
}

func (s *service) CreateCart(ctx context.Context, sessionID string, userID *string) (*View, error) {
	var view *View
	err := s.track(ctx, "cart.create", sessionID, func() error {
		if err := requireSession(sessionID); err != nil {
			return err
		}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := s.ensureCart(ctx, s.repo.WithTx(tx), sessionID, userID)
			return err
		})
		if err != nil {
			return err
		}
		s.invalidate(ctx, sessionID)
		view, err = s.reload(ctx, sessionID)
		return err
	})
	return view, err
}

// GetCart returns nil without error when the session has no live cart.
func (s *service) GetCart(ctx context.Context, sessionID string) (*View, error) {
	var view *View
	err := s.track(ctx, "cart.get", sessionID, func() error {
		if err := requireSession(sessionID); err != nil {
			return err
		}
		var err error
		view, err = s.load(ctx, sessionID)
		return err
	})
	return view, err
}

func (s *service) GetOrCreateCart(ctx context.Context, sessionID string, userID *string) (*View, error) {
	view, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if view != nil {
		return view, nil
	}
	return s.CreateCart(ctx, sessionID, userID)
}

func (s *service) AddItem(ctx context.Context, sessionID string, input AddItemInput) (*ItemView, *View, error) {
	var (
		view   *View
		itemID uuid.UUID
	)
	err := s.track(ctx, "cart.add_item", sessionID, func() error {
		if err := requireSession(sessionID); err != nil {
			return err
		}
		if input.ProductID == 0 || input.VariantID == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "productId and variantId are required")
		}
		if input.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than 0")
		}

		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			cart, err := s.ensureCart(ctx, repo, sessionID, nil)
			if err != nil {
				return err
			}
			if _, err := repo.FindProduct(ctx, input.ProductID); err != nil {
				return notFoundOr(err, msgProductNotFound, "load product")
			}
			variant, err := repo.FindVariant(ctx, input.ProductID, input.VariantID)
			if err != nil {
				return notFoundOr(err, msgVariantNotFound, "load variant")
			}

			line, err := repo.FindLine(ctx, cart.ID, input.ProductID, input.VariantID)
			switch {
			case err == nil:
				if err := repo.UpdateItemQuantity(ctx, line.ID, line.Quantity+input.Quantity); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
				}
				itemID = line.ID
			case db.IsNotFound(err):
				item := &models.CartItem{
					CartID:    cart.ID,
					ProductID: input.ProductID,
					VariantID: input.VariantID,
					Quantity:  input.Quantity,
					Price:     variant.Price(),
				}
				if err := repo.CreateItem(ctx, item); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
				}
				itemID = item.ID
			default:
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
			}
			return touch(ctx, repo, cart.ID, s.now())
		})
		if err != nil {
			return err
		}
		s.invalidate(ctx, sessionID)
		view, err = s.reload(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	item, ok := view.Item(itemID)
	if !ok {
		return nil, view, nil
	}
	return &item, view, nil
}

// UpdateItemQuantity sets a line's quantity. Zero or less removes the line.
func (s *service) UpdateItemQuantity(ctx context.Context, sessionID string, itemID uuid.UUID, quantity int) (*View, error) {
	var view *View
	err := s.track(ctx, "cart.update_item", sessionID, func() error {
		err := s.mutateItem(ctx, sessionID, itemID, func(repo CartRepository, item *models.CartItem) error {
			if quantity <= 0 {
				return repo.DeleteItem(ctx, item.ID)
			}
			return repo.UpdateItemQuantity(ctx, item.ID, quantity)
		})
		if err != nil {
			return err
		}
		view, err = s.reload(ctx, sessionID)
		return err
	})
	return view, err
}

func (s *service) RemoveItem(ctx context.Context, sessionID string, itemID uuid.UUID) (*View, error) {
	var view *View
	err := s.track(ctx, "cart.remove_item", sessionID, func() error {
		err := s.mutateItem(ctx, sessionID, itemID, func(repo CartRepository, item *models.CartItem) error {
			return repo.DeleteItem(ctx, item.ID)
		})
		if err != nil {
			return err
		}
		view, err = s.reload(ctx, sessionID)
		return err
	})
	return view, err
}

func (s *service) ClearCart(ctx context.Context, sessionID string) (*View, error) {
	var view *View
	err := s.track(ctx, "cart.clear", sessionID, func() error {
		err := s.mutateCart(ctx, sessionID, func(repo CartRepository, cart *models.Cart) error {
			if err := repo.DeleteItems(ctx, cart.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart items")
			}
			return touch(ctx, repo, cart.ID, s.now())
		})
		if err != nil {
			return err
		}
		view, err = s.reload(ctx, sessionID)
		return err
	})
	return view, err
}

func (s *service) DeleteCart(ctx context.Context, sessionID string) error {
	return s.track(ctx, "cart.delete", sessionID, func() error {
		return s.mutateCart(ctx, sessionID, func(repo CartRepository, cart *models.Cart) error {
			if err := repo.Delete(ctx, cart.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
			}
			return nil
		})
	})
}

func (s *service) UpdateCart(ctx context.Context, sessionID string, input UpdateInput) (*View, error) {
	var view *View
	err := s.track(ctx, "cart.update", sessionID, func() error {
		fields := map[string]any{}
		if input.UserID != nil {
			if trimmed := strings.TrimSpace(*input.UserID); trimmed != "" {
				fields["user_id"] = trimmed
			} else {
				fields["user_id"] = nil
			}
		}
		if input.Status != nil {
			status, err := enums.ParseCartStatus(strings.ToUpper(strings.TrimSpace(*input.Status)))
			if err != nil {
				return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
			}
			fields["status"] = status
		}
		err := s.mutateCart(ctx, sessionID, func(repo CartRepository, cart *models.Cart) error {
			if len(fields) == 0 {
				return nil
			}
			if err := repo.UpdateFields(ctx, cart.ID, fields); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart")
			}
			return nil
		})
		if err != nil {
			return err
		}
		view, err = s.reload(ctx, sessionID)
		return err
	})
	return view, err
}

// MergeCarts folds browser-stored lines into the session cart in one transaction.
// Existing lines gain the local quantity; new lines keep the local price. Lines
// whose product or variant no longer exists are skipped.
func (s *service) MergeCarts(ctx context.Context, sessionID string, lines []MergeLine) (*View, MergeResult, error) {
	var (
		view   *View
		result MergeResult
	)
	err := s.track(ctx, "cart.merge", sessionID, func() error {
		if err := requireSession(sessionID); err != nil {
			return err
		}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			result = MergeResult{}
			repo := s.repo.WithTx(tx)
			cart, err := s.ensureCart(ctx, repo, sessionID, nil)
			if err != nil {
				return err
			}
			for _, line := range lines {
				if _, err := repo.FindVariant(ctx, line.ProductID, line.VariantID); err != nil {
					if db.IsNotFound(err) {
						result.Skipped++
						continue
					}
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
				}
				existing, err := repo.FindLine(ctx, cart.ID, line.ProductID, line.VariantID)
				switch {
				case err == nil:
					err = repo.UpdateItemQuantity(ctx, existing.ID, existing.Quantity+line.Quantity)
				case db.IsNotFound(err):
					err = repo.CreateItem(ctx, &models.CartItem{
						CartID:    cart.ID,
						ProductID: line.ProductID,
						VariantID: line.VariantID,
						Quantity:  line.Quantity,
						Price:     line.Price,
					})
				}
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart line")
				}
				result.Merged++
			}
			return touch(ctx, repo, cart.ID, s.now())
		})
		if err != nil {
			return err
		}
		s.invalidate(ctx, sessionID)
		view, err = s.reload(ctx, sessionID)
		return err
	})
	return view, result, err
}

func (s *service) ConvertCart(ctx context.Context, sessionID string) (*View, error) {
	converted := string(enums.CartStatusConverted)
	return s.UpdateCart(ctx, sessionID, UpdateInput{Status: &converted})
}

// load serves from cache, falling back to a collapsed DB read. Expired carts
// are marked EXPIRED and reported as absent.
func (s *service) load(ctx context.Context, sessionID string) (*View, error) {
	if cached, err := s.cache.Get(ctx, sessionID); err == nil {
		if !cached.Expired(s.now()) {
			return cached, nil
		}
		s.invalidate(ctx, sessionID)
	} else if !errors.Is(err, ErrCacheMiss) && s.reporter != nil {
		s.reporter.RecordCacheError(ctx, "cart.cache_get", err)
	}

	v, err, _ := s.loads.Do(sessionID, func() (any, error) {
		return s.read(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*View), nil
}

// reload returns the committed cart after a mutation. It never joins a load
// that started before the commit.
func (s *service) reload(ctx context.Context, sessionID string) (*View, error) {
	s.loads.Forget(sessionID)
	return s.read(ctx, sessionID)
}

func (s *service) read(ctx context.Context, sessionID string) (*View, error) {
	gen := s.generation(sessionID)
	seen := gen.Load()
	now := s.now()

	cart, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart.ExpiresAt.Before(now) {
		if cart.Status == enums.CartStatusActive {
			if err := s.repo.UpdateFields(ctx, cart.ID, map[string]any{"status": enums.CartStatusExpired}); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire cart")
			}
		}
		return nil, nil
	}

	view := NewView(cart)
	if gen.Load() != seen {
		return view, nil
	}
	if err := s.cache.Set(ctx, sessionID, view); err != nil && s.reporter != nil {
		s.reporter.RecordCacheError(ctx, "cart.cache_set", err)
	}
	// An invalidation that raced the Set above must win.
	if gen.Load() != seen {
		_ = s.cache.Invalidate(ctx, sessionID)
	}
	return view, nil
}

func (s *service) generation(sessionID string) *atomic.Uint64 {
	return &s.gens[xxhash.Sum64String(sessionID)%generationStripes]
}

// ensureCart returns the live cart for the session, replacing an expired row.
func (s *service) ensureCart(ctx context.Context, repo CartRepository, sessionID string, userID *string) (*models.Cart, error) {
	now := s.now()
	existing, err := repo.FindBySession(ctx, sessionID)
	switch {
	case err == nil:
		if !existing.ExpiresAt.Before(now) {
			return existing, nil
		}
		if err := repo.Delete(ctx, existing.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace expired cart")
		}
	case !db.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	cart, err := repo.Create(ctx, &models.Cart{
		SessionID: sessionID,
		UserID:    userID,
		Status:    enums.CartStatusActive,
		ExpiresAt: now.Add(s.expiry),
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart already exists for session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return cart, nil
}

func (s *service) mutateCart(ctx context.Context, sessionID string, fn func(repo CartRepository, cart *models.Cart) error) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindBySession(ctx, sessionID)
		if err != nil {
			return notFoundOr(err, msgCartNotFound, "load cart")
		}
		if cart.ExpiresAt.Before(s.now()) {
			return pkgerrors.New(pkgerrors.CodeNotFound, msgCartNotFound)
		}
		return fn(repo, cart)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, sessionID)
	return nil
}

func (s *service) mutateItem(ctx context.Context, sessionID string, itemID uuid.UUID, fn func(repo CartRepository, item *models.CartItem) error) error {
	return s.mutateCart(ctx, sessionID, func(repo CartRepository, cart *models.Cart) error {
		item, err := repo.FindItem(ctx, cart.ID, itemID)
		if err != nil {
			return notFoundOr(err, msgCartItemNotFound, "load cart item")
		}
		if err := fn(repo, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		return touch(ctx, repo, cart.ID, s.now())
	})
}

func (s *service) invalidate(ctx context.Context, sessionID string) {
	s.generation(sessionID).Add(1)
	s.loads.Forget(sessionID)
	if err := s.cache.Invalidate(ctx, sessionID); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart cache invalidate failed")
	}
}

// track records the operation outcome and duration, and reports server-side failures.
func (s *service) track(ctx context.Context, op, sessionID string, fn func() error) error {
	start := s.now()
	err := fn()
	took := s.now().Sub(start)

	if s.recorder != nil {
		s.recorder.RecordOperation(took, err == nil)
	}
	if s.reporter != nil {
		switch {
		case err == nil:
		case pkgerrors.IsCode(err, pkgerrors.CodeDependency):
			s.reporter.RecordDatabaseError(ctx, op, err)
		case isServerError(err):
			s.reporter.RecordCartError(ctx, op, err, sessionID)
		}
		if took > s.slow {
			s.reporter.RecordPerformanceWarning(ctx, op, took, s.slow)
		}
	}
	return err
}

func touch(ctx context.Context, repo CartRepository, cartID uuid.UUID, now time.Time) error {
	if err := repo.Touch(ctx, cartID, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch cart")
	}
	return nil
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "No session found")
	}
	return nil
}

func notFoundOr(err error, notFoundMsg, action string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func isServerError(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	return pkgerrors.MetadataFor(typed.Code()).HTTPStatus >= 500
}
