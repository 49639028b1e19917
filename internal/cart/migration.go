package cart

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// LocalItem is a line as stored by the browser before carts moved server-side.
type LocalItem struct {
	ID        string          `json:"id"`
	Product   LocalProduct    `json:"product"`
	VariantID json.Number     `json:"variantId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type LocalProduct struct {
	ID    json.Number `json:"id"`
	Title string      `json:"title,omitempty"`
}

// MigrationSummary reports how many browser lines were usable.
type MigrationSummary struct {
	Total   int      `json:"total"`
	Valid   int      `json:"valid"`
	Invalid int      `json:"invalid"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// ValidateLocalItem checks the fields required to merge a browser line.
func ValidateLocalItem(item LocalItem) error {
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("item id is required")
	}
	if strings.TrimSpace(item.Product.ID.String()) == "" {
		return fmt.Errorf("item %s: product id is required", item.ID)
	}
	if strings.TrimSpace(item.VariantID.String()) == "" {
		return fmt.Errorf("item %s: variant id is required", item.ID)
	}
	if item.Quantity <= 0 {
		return fmt.Errorf("item %s: quantity must be greater than 0", item.ID)
	}
	if item.Price.IsNegative() {
		return fmt.Errorf("item %s: price must not be negative", item.ID)
	}
	return nil
}

// PrepareMigration converts valid browser lines to merge lines and summarises the rest.
func PrepareMigration(items []LocalItem) ([]MergeLine, MigrationSummary) {
	summary := MigrationSummary{Total: len(items), Errors: []string{}}
	lines := make([]MergeLine, 0, len(items))
	for _, item := range items {
		if err := ValidateLocalItem(item); err != nil {
			summary.Invalid++
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		productID, err := parseLocalID(item.Product.ID)
		if err != nil {
			summary.Invalid++
			summary.Errors = append(summary.Errors, fmt.Sprintf("item %s: product id: %v", item.ID, err))
			continue
		}
		variantID, err := parseLocalID(item.VariantID)
		if err != nil {
			summary.Invalid++
			summary.Errors = append(summary.Errors, fmt.Sprintf("item %s: variant id: %v", item.ID, err))
			continue
		}
		summary.Valid++
		lines = append(lines, MergeLine{
			ProductID: productID,
			VariantID: variantID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return lines, summary
}

func parseLocalID(raw json.Number) (uint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw.String()), 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid id %q", raw.String())
	}
	return uint(v), nil
}
