package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
)

type CategoryCatalog interface {
	List(ctx context.Context) ([]models.Category, error)
	FindBySlug(ctx context.Context, slug string) (*models.Category, error)
}

func findCategory(ctx context.Context, categories CategoryCatalog, slug string) (*models.Category, error) {
	category, err := categories.FindBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("Category with slug %s not found", slug))
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return category, nil
}

func GetCategories(categories CategoryCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /categories"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		list, err := categories.List(ctx)
		if err != nil {
			respondError(c, route, apperr.Internal(err))
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

/*
GET /products/category/:slug
- same page / limit / minPrice / maxPrice handling as GET /products
*/
func GetProductsByCategory(catalog ProductCatalog, categories CategoryCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products/category/:slug"
		defer handlePanic(c, route)

		slug := strings.ToLower(strings.TrimSpace(c.Param("slug")))
		if slug == "" {
			respondError(c, route, apperr.BadRequest("Category slug is required"))
			return
		}
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

		category, err := findCategory(ctx, categories, slug)
		if err != nil {
			respondError(c, route, err)
			return
		}

		filter := q.filter()
		filter.Category = &category.ID
		products, total, err := catalog.List(ctx, filter, pq.Page, pq.Limit)
		if err != nil {
			respondError(c, route, apperr.Internal(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"category":   category,
			"data":       products,
			"pagination": pq.meta(total),
		})
	}
}
