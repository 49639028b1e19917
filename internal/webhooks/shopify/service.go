package shopifywebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CartViews finds and drops cached cart views that show a product.
type CartViews interface {
	SessionsWithProduct(ctx context.Context, productShopifyID string) ([]string, error)
	Invalidate(ctx context.Context, sessions []string) error
}

// Service applies Shopify product and collection webhooks to the local catalog.
type Service interface {
	HandleProductEvent(ctx context.Context, topic string, body []byte) error
	HandleCollectionEvent(ctx context.Context, topic string, body []byte) error
}

type ServiceParams struct {
	Catalog           *product.Repository
	TransactionRunner txRunner
	CartViews         CartViews
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	catalog  *product.Repository
	txRunner txRunner
	carts    CartViews
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		catalog:  params.Catalog,
		txRunner: params.TransactionRunner,
		carts:    params.CartViews,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) HandleProductEvent(ctx context.Context, topic string, body []byte) error {
	var payload productPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product payload")
	}
	shopifyID := globalID("Product", payload.ID, payload.AdminGraphQLAPIID)
	if shopifyID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	ctx = s.withFields(ctx, topic, shopifyID)

	switch topic {
	case TopicProductsCreate, TopicProductsUpdate:
		if payload.Handle == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "product handle is required")
		}
		// Pruned variants cascade to cart lines, so sessions are collected first.
		sessions := s.cartSessions(ctx, shopifyID)
		if err := s.upsertProduct(ctx, payload); err != nil {
			return err
		}
		s.invalidateCarts(ctx, shopifyID, sessions)
		return nil
	case TopicProductsDelete:
		found, err := s.catalog.SoftDeleteProduct(ctx, shopifyID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "soft delete product")
		}
		if !found {
			s.info(ctx, "shopify product already deleted or unknown")
			return nil
		}
		s.invalidateCarts(ctx, shopifyID, nil)
		return nil
	default:
		s.warn(ctx, "unhandled shopify product topic")
		return nil
	}
}

func (s *service) upsertProduct(ctx context.Context, payload productPayload) error {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.catalog.WithTx(tx)
		saved, err := repo.UpsertProduct(ctx, payload.toModel())
		if err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}

		if payload.Variants != nil {
			keep := make([]string, 0, len(payload.Variants))
			for i, v := range payload.Variants {
				variant := v.toModel(saved.ID, i, payload.Options)
				if variant.ShopifyID == "" {
					continue
				}
				if _, err := repo.UpsertVariant(ctx, variant); err != nil {
					return fmt.Errorf("upsert variant %s: %w", idString(v.ID), err)
				}
				keep = append(keep, variant.ShopifyID)
			}
			if _, err := repo.PruneVariants(ctx, saved.ID, keep); err != nil {
				return fmt.Errorf("prune variants: %w", err)
			}
		}
		if payload.Options != nil {
			if err := repo.ReplaceOptions(ctx, saved.ID, optionModels(payload.Options)); err != nil {
				return fmt.Errorf("replace options: %w", err)
			}
		}
		if payload.Images != nil {
			if err := repo.ReplaceMedia(ctx, saved.ID, mediaModels(payload.Images)); err != nil {
				return fmt.Errorf("replace media: %w", err)
			}
		}
		if err := repo.ReplaceTags(ctx, saved.ID, splitTags(payload.Tags)); err != nil {
			return fmt.Errorf("replace tags: %w", err)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply product webhook")
	}
	s.info(ctx, "shopify product synced from webhook")
	return nil
}

func (s *service) cartSessions(ctx context.Context, shopifyID string) []string {
	if s.carts == nil {
		return nil
	}
	sessions, err := s.carts.SessionsWithProduct(ctx, shopifyID)
	if err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "list carts holding product failed")
	}
	return sessions
}

// invalidateCarts drops cached views for the given sessions plus every cart
// that still holds the product. Failures leave views to expire with the TTL.
func (s *service) invalidateCarts(ctx context.Context, shopifyID string, sessions []string) {
	if s.carts == nil {
		return
	}
	seen := make(map[string]struct{}, len(sessions))
	all := make([]string, 0, len(sessions))
	for _, session := range append(sessions, s.cartSessions(ctx, shopifyID)...) {
		if _, dup := seen[session]; dup {
			continue
		}
		seen[session] = struct{}{}
		all = append(all, session)
	}
	if len(all) == 0 {
		return
	}
	if err := s.carts.Invalidate(ctx, all); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart view invalidation failed")
	}
}

func (s *service) HandleCollectionEvent(ctx context.Context, topic string, body []byte) error {
	var payload collectionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid collection payload")
	}
	shopifyID := globalID("Collection", payload.ID, payload.AdminGraphQLAPIID)
	if shopifyID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "collection id is required")
	}
	ctx = s.withFields(ctx, topic, shopifyID)

	switch topic {
	case TopicCollectionsCreate, TopicCollectionsUpdate:
		if payload.Handle == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "collection handle is required")
		}
		if _, err := s.catalog.UpsertCollection(ctx, payload.toModel()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert collection")
		}
		s.info(ctx, "shopify collection synced from webhook")
		return nil
	case TopicCollectionsDelete:
		found, err := s.catalog.SoftDeleteCollection(ctx, shopifyID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "soft delete collection")
		}
		if !found {
			s.info(ctx, "shopify collection already deleted or unknown")
		}
		return nil
	default:
		s.warn(ctx, "unhandled shopify collection topic")
		return nil
	}
}

func (s *service) withFields(ctx context.Context, topic, shopifyID string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithWebhook(ctx, topic, shopifyID)
}

func (s *service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}
