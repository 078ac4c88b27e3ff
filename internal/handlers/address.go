package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/address"
	"storefront/internal/models"
)

type AddressService interface {
	List(ctx context.Context, userID primitive.ObjectID) ([]models.Address, error)
	Get(ctx context.Context, userID primitive.ObjectID, addressID string) (*models.Address, error)
	Add(ctx context.Context, userID primitive.ObjectID, in address.Input) ([]models.Address, *models.Address, error)
	Update(ctx context.Context, userID primitive.ObjectID, addressID string, in address.Input) ([]models.Address, error)
	Delete(ctx context.Context, userID primitive.ObjectID, addressID string) ([]models.Address, error)
}

func GetUserAddresses(svc AddressService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /user/addresses"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		addrs, err := svc.List(ctx, userID)
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"addresses": addrs})
	}
}

func GetUserAddress(svc AddressService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /user/addresses/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		addr, err := svc.Get(ctx, userID, c.Param("id"))
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, addr)
	}
}

func CreateUserAddress(svc AddressService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /user/addresses"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req address.Input
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		addrs, created, err := svc.Add(ctx, userID, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"address": created, "addresses": addrs})
	}
}

func UpdateUserAddress(svc AddressService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /user/addresses/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req address.Input
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		addrs, err := svc.Update(ctx, userID, c.Param("id"), req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"addresses": addrs})
	}
}

func DeleteUserAddress(svc AddressService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /user/addresses/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		addrs, err := svc.Delete(ctx, userID, c.Param("id"))
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"addresses": addrs})
	}
}
