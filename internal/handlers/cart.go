package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/cart"
)

type CartService interface {
	Sync(ctx context.Context, userID primitive.ObjectID, items []cart.SyncItem) (*cart.View, error)
	Get(ctx context.Context, userID primitive.ObjectID) (*cart.View, error)
	UpdateItem(ctx context.Context, userID primitive.ObjectID, productID string, quantity int) (*cart.View, error)
	RemoveItem(ctx context.Context, userID primitive.ObjectID, productID string) (*cart.View, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

type syncCartRequest struct {
	Items json.RawMessage `json:"items"`
}

type updateCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func SyncCart(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /cart/sync"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req syncCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, route, cart.ErrItemsNotArray)
			return
		}
		items, err := cart.DecodeSyncItems(req.Items)
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		view, err := svc.Sync(ctx, userID, items)
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func GetCart(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /cart"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		view, err := svc.Get(ctx, userID)
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func UpdateCartItem(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /cart/item"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req updateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, route, cart.ErrInvalidQuantity)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		view, err := svc.UpdateItem(ctx, userID, req.ProductID, req.Quantity)
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func RemoveCartItem(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /cart/item/:productId"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		view, err := svc.RemoveItem(ctx, userID, c.Param("productId"))
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func ClearCart(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /cart"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		if err := svc.Clear(ctx, userID); err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
	}
}
