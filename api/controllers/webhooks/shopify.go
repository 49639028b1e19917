package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/watercolor-storefront/api/responses"
	"github.com/angelmondragon/watercolor-storefront/api/validators"
	shopifywebhook "github.com/angelmondragon/watercolor-storefront/internal/webhooks/shopify"
	"github.com/angelmondragon/watercolor-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

const (
	headerHMAC       = "X-Shopify-Hmac-Sha256"
	headerTopic      = "X-Shopify-Topic"
	headerEventID    = "X-Shopify-Event-Id"
	headerWebhookID  = "X-Shopify-Webhook-Id"
	headerAPIVersion = "X-Shopify-Api-Version"
	headerShopDomain = "X-Shopify-Shop-Domain"

	maxWebhookBody = 5 << 20
)

type shopifyWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type webhookAck struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type dispatchFunc func(ctx context.Context, topic string, body []byte) error

// ShopifyProductsWebhook handles products/create, products/update and products/delete.
func ShopifyProductsWebhook(svc shopifywebhook.Service, guard shopifyWebhookGuard, cfg config.ShopifyConfig, logg *logger.Logger) http.HandlerFunc {
	var dispatch dispatchFunc
	if svc != nil {
		dispatch = svc.HandleProductEvent
	}
	return shopifyWebhook("products", dispatch, guard, cfg, logg)
}

// ShopifyCollectionsWebhook handles collections/create, collections/update and collections/delete.
func ShopifyCollectionsWebhook(svc shopifywebhook.Service, guard shopifyWebhookGuard, cfg config.ShopifyConfig, logg *logger.Logger) http.HandlerFunc {
	var dispatch dispatchFunc
	if svc != nil {
		dispatch = svc.HandleCollectionEvent
	}
	return shopifyWebhook("collections", dispatch, guard, cfg, logg)
}

func shopifyWebhook(resource string, dispatch dispatchFunc, guard shopifyWebhookGuard, cfg config.ShopifyConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if dispatch == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}
		secret := strings.TrimSpace(cfg.WebhookSecret)
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeMisconfigured, "shopify webhook secret not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(headerHMAC))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Missing HMAC signature"))
			return
		}
		if !shopifywebhook.VerifySignature(payload, signature, secret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "Invalid HMAC signature"))
			return
		}

		eventID := validators.SanitizeString(r.Header.Get(headerEventID), 255)
		if eventID == "" {
			eventID = validators.SanitizeString(r.Header.Get(headerWebhookID), 255)
		}
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Missing webhook event id"))
			return
		}

		topic := strings.TrimSpace(r.Header.Get(headerTopic))
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"webhook_resource": resource,
				"webhook_topic":    topic,
				"webhook_event_id": eventID,
				"shop_domain":      r.Header.Get(headerShopDomain),
			})
		}
		if version := strings.TrimSpace(r.Header.Get(headerAPIVersion)); version != "" && cfg.APIVersion != "" && version != cfg.APIVersion && logg != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{
				"webhook_api_version":    version,
				"configured_api_version": cfg.APIVersion,
			}), "shopify webhook api version drift")
		}

		if !json.Valid(payload) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Invalid JSON payload"))
			return
		}

		seen, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			if logg != nil {
				logg.Info(ctx, "shopify webhook duplicate ignored")
			}
			responses.WriteSuccess(w, webhookAck{Success: true, Message: "Event already processed", Timestamp: time.Now().UTC()})
			return
		}

		if err := dispatch(ctx, topic, payload); err != nil {
			if releaseErr := guard.Release(context.WithoutCancel(ctx), eventID); releaseErr != nil && logg != nil {
				logg.Error(ctx, "release webhook idempotency key", releaseErr)
			}
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "process webhook")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "shopify webhook processed")
		}
		responses.WriteSuccess(w, webhookAck{Success: true, Message: "Webhook processed successfully", Timestamp: time.Now().UTC()})
	}
}
