package shopifywebhook

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

// Topics delivered to the products and collections endpoints.
const (
	TopicProductsCreate    = "products/create"
	TopicProductsUpdate    = "products/update"
	TopicProductsDelete    = "products/delete"
	TopicCollectionsCreate = "collections/create"
	TopicCollectionsUpdate = "collections/update"
	TopicCollectionsDelete = "collections/delete"
)

type productPayload struct {
	ID                int64            `json:"id"`
	AdminGraphQLAPIID string           `json:"admin_graphql_api_id"`
	Title             string           `json:"title"`
	Handle            string           `json:"handle"`
	BodyHTML          string           `json:"body_html"`
	Vendor            string           `json:"vendor"`
	ProductType       string           `json:"product_type"`
	Status            string           `json:"status"`
	PublishedAt       *time.Time       `json:"published_at"`
	UpdatedAt         *time.Time       `json:"updated_at"`
	Tags              string           `json:"tags"`
	Variants          []variantPayload `json:"variants"`
	Options           []optionPayload  `json:"options"`
	Images            []imagePayload   `json:"images"`
}

type variantPayload struct {
	ID                int64               `json:"id"`
	AdminGraphQLAPIID string              `json:"admin_graphql_api_id"`
	Title             string              `json:"title"`
	SKU               string              `json:"sku"`
	Price             decimal.NullDecimal `json:"price"`
	CompareAtPrice    decimal.NullDecimal `json:"compare_at_price"`
	Position          *int                `json:"position"`
	InventoryItemID   *int64              `json:"inventory_item_id"`
	Option1           *string             `json:"option1"`
	Option2           *string             `json:"option2"`
	Option3           *string             `json:"option3"`
}

type optionPayload struct {
	Name     string   `json:"name"`
	Position *int     `json:"position"`
	Values   []string `json:"values"`
}

type imagePayload struct {
	ID                int64   `json:"id"`
	AdminGraphQLAPIID string  `json:"admin_graphql_api_id"`
	Src               string  `json:"src"`
	Alt               *string `json:"alt"`
	Width             *int    `json:"width"`
	Height            *int    `json:"height"`
	Position          *int    `json:"position"`
}

type collectionPayload struct {
	ID                int64      `json:"id"`
	AdminGraphQLAPIID string     `json:"admin_graphql_api_id"`
	Handle            string     `json:"handle"`
	Title             string     `json:"title"`
	BodyHTML          string     `json:"body_html"`
	SortOrder         string     `json:"sort_order"`
	UpdatedAt         *time.Time `json:"updated_at"`
}

// globalID keeps webhook rows keyed like bulk and delta imports.
func globalID(kind string, id int64, gid string) string {
	if gid = strings.TrimSpace(gid); gid != "" {
		return gid
	}
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("gid://shopify/%s/%d", kind, id)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func nullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// splitTags parses the REST comma separated tag list.
func splitTags(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (p productPayload) toModel() *models.Product {
	status, err := enums.ParseProductStatus(p.Status)
	if err != nil || status == enums.ProductStatusDeleted {
		status = enums.ProductStatusActive
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = p.Handle
	}
	return &models.Product{
		ShopifyID:        globalID("Product", p.ID, p.AdminGraphQLAPIID),
		Handle:           strings.TrimSpace(p.Handle),
		Title:            title,
		BodyHTML:         optional(p.BodyHTML),
		Vendor:           optional(p.Vendor),
		ProductType:      optional(p.ProductType),
		Status:           status,
		PublishedAt:      p.PublishedAt,
		ShopifyUpdatedAt: p.UpdatedAt,
	}
}

func (v variantPayload) toModel(productID uint, index int, options []optionPayload) *models.ProductVariant {
	position := index + 1
	if v.Position != nil {
		position = *v.Position
	}
	title := strings.TrimSpace(v.Title)
	if title == "" {
		title = "Default Title"
	}
	variant := &models.ProductVariant{
		ShopifyID:            globalID("ProductVariant", v.ID, v.AdminGraphQLAPIID),
		ProductID:            productID,
		Title:                title,
		SKU:                  optional(v.SKU),
		PriceAmount:          nullDecimal(v.Price),
		CompareAtPriceAmount: nullDecimal(v.CompareAtPrice),
		CurrencyCode:         enums.CurrencyUSD,
		AvailableForSale:     true,
		SelectedOptions:      v.selectedOptions(options),
		Position:             position,
	}
	if v.InventoryItemID != nil {
		id := globalID("InventoryItem", *v.InventoryItemID, "")
		variant.InventoryItemID = &id
	}
	return variant
}

// selectedOptions pairs option1..3 with the product's option names.
func (v variantPayload) selectedOptions(options []optionPayload) []models.SelectedOption {
	values := []*string{v.Option1, v.Option2, v.Option3}
	var out []models.SelectedOption
	for i, value := range values {
		if value == nil || i >= len(options) {
			continue
		}
		out = append(out, models.SelectedOption{Name: options[i].Name, Value: *value})
	}
	return out
}

func optionModels(options []optionPayload) []models.ProductOption {
	out := make([]models.ProductOption, 0, len(options))
	for i, o := range options {
		if strings.TrimSpace(o.Name) == "" {
			continue
		}
		position := i
		if o.Position != nil {
			position = *o.Position
		}
		out = append(out, models.ProductOption{Name: o.Name, Position: position, Values: o.Values})
	}
	return out
}

func mediaModels(images []imagePayload) []models.ProductMedia {
	out := make([]models.ProductMedia, 0, len(images))
	for i, img := range images {
		if strings.TrimSpace(img.Src) == "" {
			continue
		}
		position := i
		if img.Position != nil {
			position = *img.Position
		}
		var shopifyID *string
		if id := globalID("ProductImage", img.ID, img.AdminGraphQLAPIID); id != "" {
			shopifyID = &id
		}
		out = append(out, models.ProductMedia{
			ShopifyID: shopifyID,
			MediaType: enums.MediaTypeImage,
			URL:       img.Src,
			AltText:   img.Alt,
			Width:     img.Width,
			Height:    img.Height,
			Position:  position,
		})
	}
	return out
}

func (c collectionPayload) toModel() *models.Collection {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = c.Handle
	}
	return &models.Collection{
		ShopifyID:        globalID("Collection", c.ID, c.AdminGraphQLAPIID),
		Handle:           strings.TrimSpace(c.Handle),
		Title:            title,
		BodyHTML:         optional(c.BodyHTML),
		SortOrder:        optional(c.SortOrder),
		ShopifyUpdatedAt: c.UpdatedAt,
	}
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
