// Package handlers exposes the services over HTTP with gin.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"storefront/internal/apperr"
	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/validation"
)

const requestTimeout = 5 * time.Second

var log logrus.FieldLogger = logging.Discard()

// SetLogger installs the logger used by every handler.
func SetLogger(logger logrus.FieldLogger) {
	log = logging.Module(logger, "http")
}

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.WithFields(logrus.Fields{"route": route, "panic": r}).Error("panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func ensureDBConnection(ctx context.Context, db *mongo.Database) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return db.Client().Ping(checkCtx, readpref.Primary())
}

// DatabaseGuard answers 503 while the primary is unreachable.
func DatabaseGuard(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondError(c, c.FullPath(), apperr.Unavailable("database unavailable").Wrap(err))
			return
		}
		c.Next()
	}
}

// respondError is the single place errors become HTTP responses.
func respondError(c *gin.Context, route string, err error) {
	ae := apperr.From(err)
	entry := log.WithFields(logrus.Fields{
		"route":     route,
		"status":    ae.Status,
		"requestId": c.GetString(middleware.ContextRequestID),
	})
	if ae.Status >= http.StatusInternalServerError {
		entry.WithError(err).Error(ae.Message)
	} else {
		entry.Info(ae.Message)
	}

	body := gin.H{"error": ae.Message}
	if ae.Details != nil {
		body["details"] = ae.Details
	}
	c.AbortWithStatusJSON(ae.Status, body)
}

func respondValidationError(c *gin.Context, route string, err error) {
	respondError(c, route, apperr.BadRequest("validation failed").WithDetails(validation.ToDetails(err)))
}

// currentUser reads the caller injected by UserAuth, answering 401 if absent.
func currentUser(c *gin.Context, route string) (primitive.ObjectID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		respondError(c, route, apperr.Unauthorized("unauthorized"))
		return primitive.NilObjectID, false
	}
	return id, true
}

func requestContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), timeout)
}
