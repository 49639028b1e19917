package cart

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/watercolor-storefront/api/responses"
	"github.com/angelmondragon/watercolor-storefront/api/validators"
	cartsvc "github.com/angelmondragon/watercolor-storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

const (
	msgSessionRequired  = "Session required"
	msgInvalidRequest   = "Invalid request data"
	msgInvalidLocalCart = "Invalid localStorage cart data"
	msgInvalidQuantity  = "Invalid quantity"
)

// Sessions resolves and persists the cart session cookie.
type Sessions interface {
	FromRequest(r *http.Request) string
	GetOrCreate(w http.ResponseWriter, r *http.Request) (string, bool, error)
	SetCookie(w http.ResponseWriter, id string)
	ClearCookie(w http.ResponseWriter)
}

// ValidationReporter receives rejected request fields.
type ValidationReporter interface {
	RecordValidationError(ctx context.Context, field string, value any, rule string)
}

// Handlers serves the /api/cart routes.
type Handlers struct {
	svc        cartsvc.Service
	sessions   Sessions
	validation ValidationReporter
	logg       *logger.Logger
	now        func() time.Time
}

func NewHandlers(svc cartsvc.Service, sessions Sessions, logg *logger.Logger) *Handlers {
	return &Handlers{svc: svc, sessions: sessions, logg: logg, now: time.Now}
}

// WithValidationReporter reports every rejected body field to rep.
func (h *Handlers) WithValidationReporter(rep ValidationReporter) *Handlers {
	h.validation = rep
	return h
}

func (h *Handlers) rejectBody(ctx context.Context, w http.ResponseWriter, err error) {
	if h.validation != nil {
		for _, f := range validators.Failures(err) {
			h.validation.RecordValidationError(ctx, f.Field, f.Value, f.Rule)
		}
	}
	responses.WriteError(ctx, h.logg, w, err)
}

func (h *Handlers) rejectField(ctx context.Context, w http.ResponseWriter, field string, value any, rule, msg string) {
	if h.validation != nil {
		h.validation.RecordValidationError(ctx, field, value, rule)
	}
	responses.WriteError(ctx, h.logg, w, pkgerrors.New(pkgerrors.CodeValidation, msg))
}

// Get returns the session cart, creating the session and the cart when absent.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.ensureSession(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetOrCreateCart(ctx, sessionID, nil)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	h.sessions.SetCookie(w, sessionID)
	responses.WriteSuccess(w, cartResponse{Cart: view})
}

// Create returns the existing session cart or creates one.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload createCartRequest
	if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
		h.rejectBody(ctx, w, err)
		return
	}

	sessionID, ok := h.ensureSession(w, r)
	if !ok {
		return
	}

	var userID *string
	if payload.UserID != nil {
		trimmed := validators.SanitizeString(*payload.UserID, 255)
		if trimmed != "" {
			userID = &trimmed
		}
	}

	view, err := h.svc.CreateCart(ctx, sessionID, userID)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	h.sessions.SetCookie(w, sessionID)
	responses.WriteSuccessStatus(w, http.StatusCreated, cartResponse{Cart: view})
}

// Update changes the cart owner or status.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var payload updateCartRequest
	if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
		h.rejectBody(ctx, w, err)
		return
	}

	input := cartsvc.UpdateInput{Status: payload.Status}
	if payload.UserID != nil {
		trimmed := validators.SanitizeString(*payload.UserID, 255)
		input.UserID = &trimmed
	}

	view, err := h.svc.UpdateCart(ctx, sessionID, input)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, cartResponse{Cart: view})
}

// Delete removes the cart and clears the session cookie.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteCart(ctx, sessionID); err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	h.sessions.ClearCookie(w)
	responses.WriteSuccess(w, messageResponse{Message: "Cart cleared successfully"})
}

// AddItem adds a product variant, merging with an existing line.
func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var payload addItemRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		h.rejectBody(ctx, w, err)
		return
	}
	quantity := 1
	if payload.Quantity != nil {
		quantity = *payload.Quantity
	}
	switch {
	case payload.ProductID == 0:
		h.rejectField(ctx, w, "productId", payload.ProductID, "required", msgInvalidRequest)
		return
	case payload.VariantID == 0:
		h.rejectField(ctx, w, "variantId", payload.VariantID, "required", msgInvalidRequest)
		return
	case quantity <= 0:
		h.rejectField(ctx, w, "quantity", quantity, "gt", msgInvalidRequest)
		return
	}

	item, view, err := h.svc.AddItem(ctx, sessionID, cartsvc.AddItemInput{
		ProductID: payload.ProductID,
		VariantID: payload.VariantID,
		Quantity:  quantity,
	})
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	h.sessions.SetCookie(w, sessionID)
	responses.WriteSuccessStatus(w, http.StatusCreated, addItemResponse{CartItem: item, Cart: view})
}

// UpdateItem sets a line quantity. Zero removes the line.
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}

	var payload updateItemRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		h.rejectBody(ctx, w, err)
		return
	}
	if payload.Quantity == nil {
		h.rejectField(ctx, w, "quantity", nil, "required", msgInvalidQuantity)
		return
	}
	if *payload.Quantity < 0 {
		h.rejectField(ctx, w, "quantity", *payload.Quantity, "gte", msgInvalidQuantity)
		return
	}

	view, err := h.svc.UpdateItemQuantity(ctx, sessionID, itemID, *payload.Quantity)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, cartResponse{Cart: view})
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}

	view, err := h.svc.RemoveItem(ctx, sessionID, itemID)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, messageResponse{Message: "Item removed successfully", Cart: view})
}

// Merge folds a browser-stored cart into the session cart.
func (h *Handlers) Merge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var payload mergeRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		h.rejectBody(ctx, w, err)
		return
	}
	items, undecodable, ok := decodeLocalItems(payload.LocalStorageCart)
	if !ok {
		h.rejectField(ctx, w, "localStorageCart", string(payload.LocalStorageCart), "array", msgInvalidLocalCart)
		return
	}

	lines, summary := cartsvc.PrepareMigration(items)
	summary.Total += len(undecodable)
	summary.Invalid += len(undecodable)
	summary.Errors = append(summary.Errors, undecodable...)

	view, result, err := h.svc.MergeCarts(ctx, sessionID, lines)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	summary.Skipped = result.Skipped

	if h.logg != nil && (summary.Invalid > 0 || summary.Skipped > 0) {
		logCtx := h.logg.WithFields(ctx, map[string]any{
			"total":   summary.Total,
			"invalid": summary.Invalid,
			"skipped": summary.Skipped,
		})
		h.logg.Warn(logCtx, "cart.merge.partial")
	}

	h.sessions.SetCookie(w, sessionID)
	responses.WriteSuccess(w, mergeResponse{
		Cart:      view,
		Migration: summary,
		Merged:    result.Merged,
		Message:   "Carts merged successfully",
	})
}

// Sync returns the authoritative cart with the server time it was read at.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetOrCreateCart(ctx, sessionID, nil)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	h.sessions.SetCookie(w, sessionID)
	responses.WriteSuccess(w, syncResponse{Cart: view, SyncedAt: h.now().UTC()})
}

func (h *Handlers) ensureSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID, created, err := h.sessions.GetOrCreate(w, r)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create session"))
		return "", false
	}
	if created && h.logg != nil {
		h.logg.Debug(h.logg.WithSessionID(r.Context(), sessionID), "cart.session.created")
	}
	return sessionID, true
}

func (h *Handlers) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := h.sessions.FromRequest(r)
	if sessionID == "" {
		responses.WriteError(r.Context(), h.logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, msgSessionRequired))
		return "", false
	}
	return sessionID, true
}

func (h *Handlers) itemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "itemId")))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid item id"))
		return uuid.Nil, false
	}
	return id, true
}
