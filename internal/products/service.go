package product

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/watercolor-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
)

const (
	msgProductNotFound  = "Product not found"
	msgCategoryNotFound = "Category not found"
)

// Service exposes catalog read operations to the API.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	GetByID(ctx context.Context, id uint) (*ProductView, error)
	GetByHandle(ctx context.Context, handle string) (*ProductView, error)
	Search(ctx context.Context, q string, limit int) (*SearchResult, error)
	Categories(ctx context.Context) ([]CategoryCount, error)
	Tags(ctx context.Context) ([]TagCount, error)
	ByCategory(ctx context.Context, handle string, params ListParams) (*CategoryResult, error)
	Stats(ctx context.Context) (*Stats, error)
	Count(ctx context.Context, filters Filters) (int64, error)
}

type catalogReader interface {
	List(ctx context.Context, params ListParams) ([]models.Product, string, error)
	Count(ctx context.Context, filters Filters) (int64, error)
	FindByID(ctx context.Context, id uint) (*models.Product, error)
	FindByHandle(ctx context.Context, handle string) (*models.Product, error)
	Search(ctx context.Context, q string, limit int) ([]models.Product, int64, error)
	FindCollectionByHandle(ctx context.Context, handle string) (*models.Collection, error)
	Categories(ctx context.Context) ([]CategoryCount, error)
	Tags(ctx context.Context) ([]TagCount, error)
	Stats(ctx context.Context) (Stats, error)
}

type service struct {
	repo  catalogReader
	clock func() time.Time
}

// NewService builds the catalog service.
func NewService(repo catalogReader) (Service, error) {
	if repo == nil {
		return nil, errors.New("product repository required")
	}
	return &service{repo: repo, clock: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	params = params.normalized()
	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, listError(err)
	}
	return &ListResult{
		Products: newProductViews(rows),
		Pagination: PageInfo{
			Limit:      params.Limit,
			HasMore:    next != "",
			NextCursor: next,
		},
	}, nil
}

func (s *service) GetByID(ctx context.Context, id uint) (*ProductView, error) {
	if id == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "id must be a positive integer")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, msgProductNotFound, "load product")
	}
	view := NewProductView(product)
	return &view, nil
}

func (s *service) GetByHandle(ctx context.Context, handle string) (*ProductView, error) {
	handle, err := ValidateHandle(handle)
	if err != nil {
		return nil, err
	}
	product, err := s.repo.FindByHandle(ctx, handle)
	if err != nil {
		return nil, notFoundOr(err, msgProductNotFound, "load product")
	}
	view := NewProductView(product)
	return &view, nil
}

// Search returns an empty result for a blank query.
func (s *service) Search(ctx context.Context, q string, limit int) (*SearchResult, error) {
	start := s.clock()
	q, err := ValidateSearchQuery(q)
	if err != nil {
		return nil, err
	}
	result := &SearchResult{Products: []ProductView{}, Query: q}
	if q == "" {
		return result, nil
	}
	rows, total, err := s.repo.Search(ctx, q, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search products")
	}
	result.Products = newProductViews(rows)
	result.TotalResults = total
	result.SearchTime = s.clock().Sub(start).Milliseconds()
	return result, nil
}

func (s *service) Categories(ctx context.Context) ([]CategoryCount, error) {
	rows, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	if rows == nil {
		rows = []CategoryCount{}
	}
	return rows, nil
}

func (s *service) Tags(ctx context.Context) ([]TagCount, error) {
	rows, err := s.repo.Tags(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tags")
	}
	if rows == nil {
		rows = []TagCount{}
	}
	return rows, nil
}

func (s *service) ByCategory(ctx context.Context, handle string, params ListParams) (*CategoryResult, error) {
	handle, err := ValidateHandle(handle)
	if err != nil {
		return nil, err
	}
	collection, err := s.repo.FindCollectionByHandle(ctx, handle)
	if err != nil {
		return nil, notFoundOr(err, msgCategoryNotFound, "load category")
	}
	params.Filters.Category = collection.Handle
	page, err := s.List(ctx, params)
	if err != nil {
		return nil, err
	}
	return &CategoryResult{
		Category:   CollectionRef{ID: collection.ID, Handle: collection.Handle, Title: collection.Title},
		Products:   page.Products,
		Pagination: page.Pagination,
	}, nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "product stats")
	}
	return &stats, nil
}

func (s *service) Count(ctx context.Context, filters Filters) (int64, error) {
	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count products")
	}
	return total, nil
}

func notFoundOr(err error, notFoundMsg, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func listError(err error) error {
	if errors.Is(err, ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
}
