package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/logging"
	"storefront/internal/models"
)

// AccessTokenCookie is the cookie a browser client may carry instead of an
// Authorization header.
const AccessTokenCookie = "accessToken"

// AuthGuard validates the access token and, when roles are given, requires
// the caller to hold one of them. It injects userId, email and role.
func AuthGuard(secret string, logger logrus.FieldLogger, allowedRoles ...string) gin.HandlerFunc {
	log := logging.Module(logger, "auth")
	return func(c *gin.Context) {
		raw, ok := tokenFromRequest(c)
		if !ok {
			log.WithField("path", c.FullPath()).Debug("missing token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorised or invalid token"})
			return
		}

		claims, err := auth.ParseAccessToken(secret, raw)
		if err != nil {
			log.WithError(err).Debug("token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		userID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			log.Warn("invalid userId claim")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		if len(allowedRoles) > 0 && !hasRole(claims.Role, allowedRoles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// AdminAuth is AuthGuard restricted to administrators.
func AdminAuth(secret string, logger logrus.FieldLogger) gin.HandlerFunc {
	return AuthGuard(secret, logger, models.RoleAdmin)
}

// AdminOnly rejects callers without the admin role. It must run after UserAuth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) (string, bool) {
	if raw := strings.TrimSpace(c.GetHeader("Authorization")); raw != "" {
		parts := strings.Fields(raw)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		return parts[1], true
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie), true
	}
	return "", false
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}
