package product

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
)

// ProductView is the API rendering of a product and its relations.
type ProductView struct {
	ID          uint                `json:"id"`
	ShopifyID   string              `json:"shopifyId"`
	Handle      string              `json:"handle"`
	Title       string              `json:"title"`
	BodyHTML    *string             `json:"bodyHtml,omitempty"`
	Vendor      *string             `json:"vendor,omitempty"`
	ProductType *string             `json:"productType,omitempty"`
	Status      enums.ProductStatus `json:"status"`
	PublishedAt *time.Time          `json:"publishedAt,omitempty"`
	Tags        []string            `json:"tags"`
	PriceRange  *PriceRange         `json:"priceRange,omitempty"`
	Variants    []VariantView       `json:"variants"`
	Options     []OptionView        `json:"options"`
	Media       []MediaView         `json:"media"`
	Collections []CollectionRef     `json:"collections"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

type VariantView struct {
	ID               uint                    `json:"id"`
	ShopifyID        string                  `json:"shopifyId"`
	Title            string                  `json:"title"`
	SKU              *string                 `json:"sku,omitempty"`
	Price            *decimal.Decimal        `json:"price,omitempty"`
	CompareAtPrice   *decimal.Decimal        `json:"compareAtPrice,omitempty"`
	CurrencyCode     enums.Currency          `json:"currencyCode"`
	AvailableForSale bool                    `json:"availableForSale"`
	SelectedOptions  []models.SelectedOption `json:"selectedOptions"`
	Position         int                     `json:"position"`
}

type OptionView struct {
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Values   []string `json:"values"`
}

type MediaView struct {
	ID        uint            `json:"id"`
	MediaType enums.MediaType `json:"mediaType"`
	URL       string          `json:"url"`
	AltText   *string         `json:"altText,omitempty"`
	Width     *int            `json:"width,omitempty"`
	Height    *int            `json:"height,omitempty"`
	Position  int             `json:"position"`
}

type CollectionRef struct {
	ID     uint   `json:"id"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

// PageInfo describes the keyset page that was returned.
type PageInfo struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type ListResult struct {
	Products   []ProductView `json:"products"`
	Pagination PageInfo      `json:"pagination"`
}

type SearchResult struct {
	Products     []ProductView `json:"products"`
	TotalResults int64         `json:"totalResults"`
	SearchTime   int64         `json:"searchTime"`
	Query        string        `json:"query"`
}

// CategoryCount is a collection with the number of live products in it.
type CategoryCount struct {
	ID           uint    `json:"id"`
	Handle       string  `json:"handle"`
	Title        string  `json:"title"`
	BodyHTML     *string `json:"bodyHtml,omitempty"`
	ProductCount int64   `json:"productCount"`
}

type TagCount struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	ProductCount int64  `json:"productCount"`
}

type CategoryResult struct {
	Category   CollectionRef `json:"category"`
	Products   []ProductView `json:"products"`
	Pagination PageInfo      `json:"pagination"`
}

type Stats struct {
	Total         int64 `json:"totalProducts"`
	Active        int64 `json:"activeProducts"`
	Draft         int64 `json:"draftProducts"`
	Archived      int64 `json:"archivedProducts"`
	TotalVariants int64 `json:"totalVariants"`
	TotalMedia    int64 `json:"totalMedia"`
}

// NewProductView maps a loaded product. Relations that were not preloaded render empty.
func NewProductView(p *models.Product) ProductView {
	view := ProductView{
		ID:          p.ID,
		ShopifyID:   p.ShopifyID,
		Handle:      p.Handle,
		Title:       p.Title,
		BodyHTML:    p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Status:      p.Status,
		PublishedAt: p.PublishedAt,
		Tags:        make([]string, 0, len(p.Tags)),
		Variants:    make([]VariantView, 0, len(p.Variants)),
		Options:     make([]OptionView, 0, len(p.Options)),
		Media:       make([]MediaView, 0, len(p.Media)),
		Collections: make([]CollectionRef, 0, len(p.Collections)),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for _, t := range p.Tags {
		view.Tags = append(view.Tags, t.Name)
	}
	for _, v := range p.Variants {
		view.Variants = append(view.Variants, VariantView{
			ID:               v.ID,
			ShopifyID:        v.ShopifyID,
			Title:            v.Title,
			SKU:              v.SKU,
			Price:            v.PriceAmount,
			CompareAtPrice:   v.CompareAtPriceAmount,
			CurrencyCode:     v.CurrencyCode,
			AvailableForSale: v.AvailableForSale,
			SelectedOptions:  v.SelectedOptions,
			Position:         v.Position,
		})
		if v.PriceAmount == nil {
			continue
		}
		if view.PriceRange == nil {
			view.PriceRange = &PriceRange{Min: *v.PriceAmount, Max: *v.PriceAmount}
			continue
		}
		view.PriceRange.Min = decimal.Min(view.PriceRange.Min, *v.PriceAmount)
		view.PriceRange.Max = decimal.Max(view.PriceRange.Max, *v.PriceAmount)
	}
	for _, o := range p.Options {
		view.Options = append(view.Options, OptionView{Name: o.Name, Position: o.Position, Values: o.Values})
	}
	for _, m := range p.Media {
		view.Media = append(view.Media, MediaView{
			ID:        m.ID,
			MediaType: m.MediaType,
			URL:       m.URL,
			AltText:   m.AltText,
			Width:     m.Width,
			Height:    m.Height,
			Position:  m.Position,
		})
	}
	for _, c := range p.Collections {
		if c.DeletedAt != nil {
			continue
		}
		view.Collections = append(view.Collections, CollectionRef{ID: c.ID, Handle: c.Handle, Title: c.Title})
	}
	return view
}

func newProductViews(rows []models.Product) []ProductView {
	out := make([]ProductView, 0, len(rows))
	for i := range rows {
		out = append(out, NewProductView(&rows[i]))
	}
	return out
}
