package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/checkout"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

// Provider calls plus a transaction can take longer than a plain read.
const checkoutTimeout = 20 * time.Second

// maxWebhookBody matches the payload cap the provider documents.
const maxWebhookBody = 65536

const signatureHeader = "Stripe-Signature"

type CheckoutService interface {
	CreateSession(ctx context.Context, customer checkout.Customer) (*checkout.SessionResult, error)
	Confirm(ctx context.Context, userID primitive.ObjectID, sessionID string) (*models.OrderView, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*checkout.WebhookResult, error)
}

func CreateCheckoutSession(svc CheckoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout/session"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, checkoutTimeout)
		defer cancel()

		result, err := svc.CreateSession(ctx, checkout.Customer{
			ID:    userID,
			Email: c.GetString(middleware.ContextEmail),
		})
		if err != nil {
			respondError(c, route, err)
			return
		}
		log.WithField("sessionId", result.SessionID).Info("checkout session created")
		c.JSON(http.StatusOK, result)
	}
}

func ConfirmCheckout(svc CheckoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /checkout/confirm"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, checkoutTimeout)
		defer cancel()

		order, err := svc.Confirm(ctx, userID, c.Query("session_id"))
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// StripeWebhook must be mounted without any body-parsing middleware: the
// signature covers the exact raw bytes.
func StripeWebhook(svc CheckoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout/webhook"
		defer handlePanic(c, route)

		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
		if err != nil {
			respondError(c, route, apperr.BadRequest("Webhook Error: unreadable body"))
			return
		}
		if len(payload) > maxWebhookBody {
			respondError(c, route, apperr.New(http.StatusRequestEntityTooLarge, "Webhook Error: payload too large"))
			return
		}

		ctx, cancel := requestContext(c, checkoutTimeout)
		defer cancel()

		result, err := svc.HandleWebhook(ctx, payload, c.GetHeader(signatureHeader))
		if err != nil {
			respondError(c, route, err)
			return
		}
		log.WithField("eventType", result.EventType).WithField("handled", result.Handled).Debug("webhook acknowledged")
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
