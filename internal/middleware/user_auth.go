package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ContextUserID    = "userId"
	ContextEmail     = "email"
	ContextRole      = "role"
	ContextRequestID = "requestId"
)

// UserAuth validates user JWT tokens and injects the caller into the context.
func UserAuth(secret string, logger logrus.FieldLogger) gin.HandlerFunc {
	return AuthGuard(secret, logger)
}

// UserID returns the authenticated caller's id set by UserAuth.
func UserID(c *gin.Context) (primitive.ObjectID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := v.(primitive.ObjectID)
	return id, ok && !id.IsZero()
}
