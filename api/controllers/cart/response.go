package cart

import (
	"time"

	cartsvc "github.com/angelmondragon/watercolor-storefront/internal/cart"
)

type cartResponse struct {
	Cart *cartsvc.View `json:"cart"`
}

type addItemResponse struct {
	CartItem *cartsvc.ItemView `json:"cartItem"`
	Cart     *cartsvc.View     `json:"cart"`
}

type messageResponse struct {
	Message string        `json:"message"`
	Cart    *cartsvc.View `json:"cart,omitempty"`
}

type mergeResponse struct {
	Cart      *cartsvc.View            `json:"cart"`
	Migration cartsvc.MigrationSummary `json:"migration"`
	Merged    int                      `json:"merged"`
	Message   string                   `json:"message"`
}

type syncResponse struct {
	Cart     *cartsvc.View `json:"cart"`
	SyncedAt time.Time     `json:"syncedAt"`
}
