package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/orders"
)

type OrderService interface {
	ListMine(ctx context.Context, userID primitive.ObjectID) ([]models.OrderView, error)
	GetMine(ctx context.Context, userID primitive.ObjectID, orderID string) (*models.OrderView, error)
	ListAll(ctx context.Context, page, limit int64, status string) (*orders.Page, error)
	Get(ctx context.Context, orderID string) (*models.OrderView, error)
	UpdateStatus(ctx context.Context, orderID, status string) (*models.OrderView, error)
	Delete(ctx context.Context, orderID string) error
}

func GetMyOrders(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		list, err := svc.ListMine(ctx, userID)
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func GetMyOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		order, err := svc.GetMine(ctx, userID, c.Param("id"))
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}
