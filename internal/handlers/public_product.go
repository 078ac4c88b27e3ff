package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
)

type ProductCatalog interface {
	List(ctx context.Context, f store.ProductFilter, page, limit int64) ([]models.Product, int64, error)
	FindBySlug(ctx context.Context, slug string) (*models.Product, error)
}

var errPriceRange = apperr.BadRequest("minPrice cannot be greater than maxPrice")

type productQuery struct {
	Search   string   `form:"search"`
	Category string   `form:"category"`
	MinPrice *float64 `form:"minPrice" binding:"omitempty,gte=0"`
	MaxPrice *float64 `form:"maxPrice" binding:"omitempty,gte=0"`
}

func bindProductQuery(c *gin.Context) (productQuery, error) {
	var q productQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return productQuery{}, apperr.BadRequest("invalid product filters")
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return productQuery{}, errPriceRange
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Category = strings.ToLower(strings.TrimSpace(q.Category))
	return q, nil
}

func (q productQuery) filter() store.ProductFilter {
	return store.ProductFilter{Search: q.Search, MinPrice: q.MinPrice, MaxPrice: q.MaxPrice}
}

/*
GET /products
- page / limit optional (default 1 / 20)
- search matches the product name, case-insensitive
- category is a category slug
- minPrice / maxPrice bound the price, inclusive
*/
func GetProducts(catalog ProductCatalog, categories CategoryCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products"
		defer handlePanic(c, route)

		pq, err := bindPage(c)
		if err != nil {
			respondError(c, route, err)
			return
		}
		q, err := bindProductQuery(c)
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		filter := q.filter()
		if q.Category != "" {
			category, err := findCategory(ctx, categories, q.Category)
			if err != nil {
				respondError(c, route, err)
				return
			}
			filter.Category = &category.ID
		}

		products, total, err := catalog.List(ctx, filter, pq.Page, pq.Limit)
		if err != nil {
			respondError(c, route, apperr.Internal(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": products, "pagination": pq.meta(total)})
	}
}

func GetProductBySlug(catalog ProductCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products/:slug"
		defer handlePanic(c, route)

		slug := strings.ToLower(strings.TrimSpace(c.Param("slug")))
		if slug == "" {
			respondError(c, route, apperr.BadRequest("Product slug is required"))
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		product, err := catalog.FindBySlug(ctx, slug)
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, route, apperr.NotFound("Product not found"))
			return
		}
		if err != nil {
			respondError(c, route, apperr.Internal(err))
			return
		}
		c.JSON(http.StatusOK, product)
	}
}
