package cart

import (
	"encoding/json"
	"fmt"

	cartsvc "github.com/angelmondragon/watercolor-storefront/internal/cart"
)

type createCartRequest struct {
	UserID *string `json:"userId" validate:"omitempty,max=255"`
}

type updateCartRequest struct {
	UserID *string `json:"userId" validate:"omitempty,max=255"`
	Status *string `json:"status" validate:"omitempty,oneof=ACTIVE ABANDONED CONVERTED EXPIRED active abandoned converted expired"`
}

type addItemRequest struct {
	ProductID uint `json:"productId"`
	VariantID uint `json:"variantId"`
	Quantity  *int `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

type mergeRequest struct {
	LocalStorageCart json.RawMessage `json:"localStorageCart"`
}

// decodeLocalItems reads the browser cart array. Entries that do not decode are
// reported back instead of failing the whole merge.
func decodeLocalItems(raw json.RawMessage) ([]cartsvc.LocalItem, []string, bool) {
	var entries []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &entries) != nil || entries == nil {
		return nil, nil, false
	}
	items := make([]cartsvc.LocalItem, 0, len(entries))
	var bad []string
	for i, entry := range entries {
		var item cartsvc.LocalItem
		if err := json.Unmarshal(entry, &item); err != nil {
			bad = append(bad, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		items = append(items, item)
	}
	return items, bad, true
}
