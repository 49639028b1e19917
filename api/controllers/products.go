package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/watercolor-storefront/api/responses"
	"github.com/angelmondragon/watercolor-storefront/api/validators"
	product "github.com/angelmondragon/watercolor-storefront/internal/products"
	"github.com/angelmondragon/watercolor-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/watercolor-storefront/pkg/errors"
	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
	"github.com/angelmondragon/watercolor-storefront/pkg/pagination"
)

type productResponse struct {
	Product *product.ProductView `json:"product"`
}

type categoriesResponse struct {
	Categories []product.CategoryCount `json:"categories"`
	Total      int                     `json:"total"`
}

type tagsResponse struct {
	Tags  []product.TagCount `json:"tags"`
	Total int                `json:"total"`
}

// ProductList serves the filtered, cursor-paginated catalog.
func ProductList(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.List(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ProductSearch serves case-insensitive catalog search. An empty q yields no results.
func ProductSearch(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Search(ctx, r.URL.Query().Get("q"), limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ProductCategories(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := svc.Categories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, categoriesResponse{Categories: categories, Total: len(categories)})
	}
}

func ProductTags(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := svc.Tags(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tagsResponse{Tags: tags, Total: len(tags)})
	}
}

func ProductStats(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// ProductsByCategory lists the products of one collection with the list filters applied.
func ProductsByCategory(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ByCategory(ctx, chi.URLParam(r, "handle"), params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ProductByHandle(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetByHandle(r.Context(), chi.URLParam(r, "handle"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, productResponse{Product: view})
	}
}

func ProductByID(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := product.ParseID(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, productResponse{Product: view})
	}
}

func parseListParams(r *http.Request) (product.ListParams, error) {
	q := r.URL.Query()
	var params product.ListParams

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := enums.ParseProductStatus(raw)
		if err != nil || status == enums.ProductStatusDeleted {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "status must be one of ACTIVE, DRAFT, ARCHIVED")
		}
		params.Filters.Status = &status
	}
	publishedOnly, err := validators.ParseQueryBool(r, "publishedOnly", false)
	if err != nil {
		return params, err
	}
	params.Filters.PublishedOnly = publishedOnly
	params.Filters.Vendor = validators.SanitizeString(q.Get("vendor"), 255)
	params.Filters.ProductType = validators.SanitizeString(q.Get("productType"), 255)
	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		handle, err := product.ValidateHandle(raw)
		if err != nil {
			return params, err
		}
		params.Filters.Category = handle
	}
	params.Filters.Tags = product.ParseTags(q.Get("tags"))

	minPrice, maxPrice, err := product.ParsePriceRange(q.Get("minPrice"), q.Get("maxPrice"))
	if err != nil {
		return params, err
	}
	params.Filters.MinPrice, params.Filters.MaxPrice = minPrice, maxPrice

	sortBy, sortOrder, err := product.ParseSort(q.Get("sortBy"), q.Get("sortOrder"))
	if err != nil {
		return params, err
	}
	params.SortBy, params.SortOrder = sortBy, sortOrder

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return params, err
	}
	params.Limit = limit
	params.Cursor = strings.TrimSpace(q.Get("cursor"))
	return params, nil
}
