package enums

import (
	"fmt"
	"strings"
)

// ProductStatus mirrors the Shopify product lifecycle plus a local soft-delete marker.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusArchived ProductStatus = "ARCHIVED"
	ProductStatusDeleted  ProductStatus = "deleted"
)

var validProductStatuses = []ProductStatus{
	ProductStatusActive,
	ProductStatusDraft,
	ProductStatusArchived,
	ProductStatusDeleted,
}

// String implements fmt.Stringer.
func (p ProductStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductStatus.
func (p ProductStatus) IsValid() bool {
	for _, candidate := range validProductStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProductStatus accepts GraphQL (ACTIVE) and REST (active) spellings.
func ParseProductStatus(value string) (ProductStatus, error) {
	trimmed := strings.TrimSpace(value)
	if strings.EqualFold(trimmed, string(ProductStatusDeleted)) {
		return ProductStatusDeleted, nil
	}
	upper := ProductStatus(strings.ToUpper(trimmed))
	for _, candidate := range validProductStatuses {
		if candidate == upper {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product status %q", value)
}
