package product

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
	"github.com/angelmondragon/watercolor-storefront/pkg/pagination"
)

const (
	maxHandleLength = 100
	maxQueryLength  = 200
)

var handlePattern = regexp.MustCompile(`(?i)^[a-z0-9\-_]+$`)

// SortBy names a sortable product column.
type SortBy string

const (
	SortByTitle     SortBy = "title"
	SortByCreatedAt SortBy = "createdAt"
	SortByUpdatedAt SortBy = "updatedAt"
)

func (s SortBy) column() string {
	switch s {
	case SortByTitle:
		return "title"
	case SortByCreatedAt:
		return "created_at"
	default:
		return "updated_at"
	}
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Filters narrows product listings. Zero values disable a filter.
type Filters struct {
	Status        *enums.ProductStatus
	PublishedOnly bool
	Vendor        string
	ProductType   string
	Category      string
	Tags          []string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
}

// ListParams combines filters, ordering and a keyset page.
type ListParams struct {
	Filters   Filters
	SortBy    SortBy
	SortOrder SortOrder
	Limit     int
	Cursor    string
}

func (p ListParams) normalized() ListParams {
	if p.SortBy == "" {
		p.SortBy = SortByUpdatedAt
	}
	if p.SortOrder == "" {
		p.SortOrder = SortDesc
	}
	p.Limit = pagination.NormalizeLimit(p.Limit)
	return p
}

// ValidateHandle trims and checks a product or collection handle.
func ValidateHandle(raw string) (string, error) {
	handle := strings.TrimSpace(raw)
	switch {
	case handle == "":
		return "", pkgerrors.New(pkgerrors.CodeValidation, "handle is required")
	case len(handle) > maxHandleLength:
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "handle must be at most %d characters", maxHandleLength)
	case !handlePattern.MatchString(handle):
		return "", pkgerrors.New(pkgerrors.CodeValidation, "handle may only contain letters, numbers, hyphens and underscores")
	}
	return handle, nil
}

// ParseID parses a positive product id.
func ParseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "id must be a positive integer")
	}
	return uint(id), nil
}

// ParseSort validates sortBy and sortOrder, applying defaults for blanks.
func ParseSort(by, order string) (SortBy, SortOrder, error) {
	sortBy := SortBy(strings.TrimSpace(by))
	switch sortBy {
	case "":
		sortBy = SortByUpdatedAt
	case SortByTitle, SortByCreatedAt, SortByUpdatedAt:
	default:
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "sortBy must be one of title, createdAt, updatedAt")
	}
	sortOrder := SortOrder(strings.ToLower(strings.TrimSpace(order)))
	switch sortOrder {
	case "":
		sortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "sortOrder must be asc or desc")
	}
	return sortBy, sortOrder, nil
}

// ParsePriceRange parses optional minPrice/maxPrice bounds.
func ParsePriceRange(minRaw, maxRaw string) (*decimal.Decimal, *decimal.Decimal, error) {
	minPrice, err := parsePrice("minPrice", minRaw)
	if err != nil {
		return nil, nil, err
	}
	maxPrice, err := parsePrice("maxPrice", maxRaw)
	if err != nil {
		return nil, nil, err
	}
	if minPrice != nil && maxPrice != nil && minPrice.GreaterThan(*maxPrice) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "minPrice must be less than or equal to maxPrice")
	}
	return minPrice, maxPrice, nil
}

func parsePrice(field, raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a number", field)
	}
	if value.IsNegative() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be non-negative", field)
	}
	return &value, nil
}

// ValidateSearchQuery trims q and enforces the maximum length. Empty is allowed.
func ValidateSearchQuery(raw string) (string, error) {
	q := strings.TrimSpace(raw)
	if len(q) > maxQueryLength {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "q must be at most %d characters", maxQueryLength)
	}
	return q, nil
}

// ParseTags splits a comma separated tag list, dropping blanks and duplicates.
func ParseTags(raw string) []string {
	seen := map[string]struct{}{}
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(tag)]; ok {
			continue
		}
		seen[strings.ToLower(tag)] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
