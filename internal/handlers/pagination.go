package handlers

import (
	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errInvalidPagination = apperr.BadRequest("invalid pagination params")

type pageQuery struct {
	Page  int64 `form:"page" binding:"omitempty,min=1"`
	Limit int64 `form:"limit" binding:"omitempty,min=1"`
}

// bindPage reads ?page=&limit=, defaulting to 1/20 and capping the limit.
func bindPage(c *gin.Context) (pageQuery, error) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return pageQuery{}, errInvalidPagination
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	return q, nil
}

func (q pageQuery) meta(total int64) gin.H {
	return gin.H{
		"page":       q.Page,
		"limit":      q.Limit,
		"total":      total,
		"totalPages": (total + q.Limit - 1) / q.Limit,
	}
}
