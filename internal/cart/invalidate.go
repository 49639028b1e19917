package cart

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// ProductViewInvalidator drops cached views of carts that show a product.
type ProductViewInvalidator struct {
	repo  *Repository
	cache Cache
}

func NewProductViewInvalidator(repo *Repository, cache Cache) (*ProductViewInvalidator, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cart cache required")
	}
	return &ProductViewInvalidator{repo: repo, cache: cache}, nil
}

func (p *ProductViewInvalidator) SessionsWithProduct(ctx context.Context, productShopifyID string) ([]string, error) {
	return p.repo.SessionsWithProduct(ctx, productShopifyID)
}

// Invalidate attempts every session and returns the combined failures.
func (p *ProductViewInvalidator) Invalidate(ctx context.Context, sessions []string) error {
	var errs error
	for _, session := range sessions {
		errs = multierr.Append(errs, p.cache.Invalidate(ctx, session))
	}
	return errs
}
