package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func GetOrders(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/orders"
		defer handlePanic(c, route)

		pq, err := bindPage(c)
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		result, err := svc.ListAll(ctx, pq.Page, pq.Limit, strings.TrimSpace(c.Query("status")))
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func GetOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/orders/:id"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		order, err := svc.Get(ctx, c.Param("id"))
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func UpdateOrderStatus(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/orders/:id/status"
		defer handlePanic(c, route)

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		order, err := svc.UpdateStatus(ctx, c.Param("id"), req.Status)
		if err != nil {
			respondError(c, route, err)
			return
		}
		log.WithField("orderId", order.ID.Hex()).WithField("status", order.OrderStatus).Info("order status updated")
		c.JSON(http.StatusOK, order)
	}
}

func DeleteOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/orders/:id"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		if err := svc.Delete(ctx, c.Param("id")); err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
	}
}
