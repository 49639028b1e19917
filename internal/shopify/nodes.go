package shopify

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

type connection[T any] struct {
	Edges []struct {
		Cursor string `json:"cursor"`
		Node   T      `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pageInfo"`
}

// money accepts "12.50", 12.5 or {"amount":"12.50"}.
type money struct {
	value *decimal.Decimal
}

func (m *money) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var text string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
	case '{':
		var obj struct {
			Amount json.RawMessage `json:"amount"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return err
		}
		return m.UnmarshalJSON(obj.Amount)
	default:
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return err
	}
	m.value = &d
	return nil
}

type optionNode struct {
	Typename string   `json:"__typename"`
	ParentID string   `json:"__parentId"`
	Name     string   `json:"name"`
	Position *int     `json:"position"`
	Values   []string `json:"values"`
}

type imageNode struct {
	URL         string  `json:"url"`
	OriginalSrc string  `json:"originalSrc"`
	AltText     *string `json:"altText"`
	Width       *int    `json:"width"`
	Height      *int    `json:"height"`
}

type mediaNode struct {
	Typename         string     `json:"__typename"`
	ParentID         string     `json:"__parentId"`
	ID               string     `json:"id"`
	MediaContentType string     `json:"mediaContentType"`
	Image            *imageNode `json:"image"`
}

func (m mediaNode) url() string {
	if m.Image == nil {
		return ""
	}
	if m.Image.URL != "" {
		return m.Image.URL
	}
	return m.Image.OriginalSrc
}

type variantNode struct {
	Typename         string                  `json:"__typename"`
	ParentID         string                  `json:"__parentId"`
	ID               string                  `json:"id"`
	Title            string                  `json:"title"`
	SKU              string                  `json:"sku"`
	Price            money                   `json:"price"`
	CompareAtPrice   money                   `json:"compareAtPrice"`
	Position         *int                    `json:"position"`
	AvailableForSale *bool                   `json:"availableForSale"`
	SelectedOptions  []models.SelectedOption `json:"selectedOptions"`
	InventoryItem    *struct {
		ID string `json:"id"`
	} `json:"inventoryItem"`
}

type productNode struct {
	Typename        string                  `json:"__typename"`
	ID              string                  `json:"id"`
	Handle          string                  `json:"handle"`
	Title           string                  `json:"title"`
	DescriptionHTML string                  `json:"descriptionHtml"`
	Vendor          string                  `json:"vendor"`
	ProductType     string                  `json:"productType"`
	Status          string                  `json:"status"`
	PublishedAt     *time.Time              `json:"publishedAt"`
	UpdatedAt       *time.Time              `json:"updatedAt"`
	Tags            []string                `json:"tags"`
	Options         []optionNode            `json:"options"`
	Variants        connection[variantNode] `json:"variants"`
	Media           connection[mediaNode]   `json:"media"`
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (p productNode) toModel() *models.Product {
	status, err := enums.ParseProductStatus(p.Status)
	if err != nil {
		status = enums.ProductStatusActive
	}
	title := p.Title
	if strings.TrimSpace(title) == "" {
		title = p.Handle
	}
	return &models.Product{
		ShopifyID:        p.ID,
		Handle:           p.Handle,
		Title:            title,
		BodyHTML:         optionalString(p.DescriptionHTML),
		Vendor:           optionalString(p.Vendor),
		ProductType:      optionalString(p.ProductType),
		Status:           status,
		PublishedAt:      p.PublishedAt,
		ShopifyUpdatedAt: p.UpdatedAt,
	}
}

func (v variantNode) toModel(productID uint, fallbackPosition int) *models.ProductVariant {
	position := fallbackPosition
	if v.Position != nil {
		position = *v.Position
	}
	available := true
	if v.AvailableForSale != nil {
		available = *v.AvailableForSale
	}
	title := v.Title
	if title == "" {
		title = "Default Title"
	}
	variant := &models.ProductVariant{
		ShopifyID:            v.ID,
		ProductID:            productID,
		Title:                title,
		SKU:                  optionalString(v.SKU),
		PriceAmount:          v.Price.value,
		CompareAtPriceAmount: v.CompareAtPrice.value,
		CurrencyCode:         enums.CurrencyUSD,
		AvailableForSale:     available,
		SelectedOptions:      v.SelectedOptions,
		Position:             position,
	}
	if v.InventoryItem != nil {
		variant.InventoryItemID = optionalString(v.InventoryItem.ID)
	}
	return variant
}

func optionModels(nodes []optionNode) []models.ProductOption {
	out := make([]models.ProductOption, 0, len(nodes))
	for i, o := range nodes {
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

// imageModels keeps IMAGE media with a url; position follows input order.
func imageModels(nodes []mediaNode) []models.ProductMedia {
	out := make([]models.ProductMedia, 0, len(nodes))
	for _, m := range nodes {
		if m.MediaContentType != "" && m.MediaContentType != string(enums.MediaTypeImage) {
			continue
		}
		url := m.url()
		if url == "" {
			continue
		}
		out = append(out, models.ProductMedia{
			ShopifyID: optionalString(m.ID),
			MediaType: enums.MediaTypeImage,
			URL:       url,
			AltText:   m.Image.AltText,
			Width:     m.Image.Width,
			Height:    m.Image.Height,
			Position:  len(out),
		})
	}
	return out
}
