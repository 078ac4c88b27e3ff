package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

const refreshTokenCookie = "refreshToken"

type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Refresh(ctx context.Context, plain string) (*auth.Session, error)
	Logout(ctx context.Context, plain string) error
	Me(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	UpdateProfile(ctx context.Context, userID primitive.ObjectID, in auth.ProfileInput) (*models.User, error)
}

// CookieConfig controls the auth cookies handed to browser clients.
type CookieConfig struct {
	Secure bool
	// MaxAge of the refresh cookie in seconds.
	RefreshMaxAge int
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func Register(svc AuthService, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/register"
		defer handlePanic(c, route)

		var req auth.RegisterInput
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		sess, err := svc.Register(ctx, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		setAuthCookies(c, cookies, sess)
		c.JSON(http.StatusCreated, sess)
	}
}

func Login(svc AuthService, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/login"
		defer handlePanic(c, route)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		sess, err := svc.Login(ctx, req.Email, req.Password)
		if err != nil {
			respondError(c, route, err)
			return
		}
		setAuthCookies(c, cookies, sess)
		c.JSON(http.StatusOK, sess)
	}
}

func Refresh(svc AuthService, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/refresh"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		sess, err := svc.Refresh(ctx, refreshTokenFrom(c))
		if err != nil {
			respondError(c, route, err)
			return
		}
		setAuthCookies(c, cookies, sess)
		c.JSON(http.StatusOK, sess)
	}
}

func Logout(svc AuthService, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/logout"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		if err := svc.Logout(ctx, refreshTokenFrom(c)); err != nil {
			respondError(c, route, err)
			return
		}
		clearAuthCookies(c, cookies)
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

func GetMe(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /user/me"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		user, err := svc.Me(ctx, userID)
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func UpdateProfile(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /user/profile"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req auth.ProfileInput
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, requestTimeout)
		defer cancel()

		user, err := svc.UpdateProfile(ctx, userID, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updatedUser": user, "message": "profile updated successfully"})
	}
}

// refreshTokenFrom prefers the JSON body and falls back to the cookie.
func refreshTokenFrom(c *gin.Context) string {
	var req RefreshRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if token := strings.TrimSpace(req.RefreshToken); token != "" {
		return token
	}
	if cookie, err := c.Cookie(refreshTokenCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

func setAuthCookies(c *gin.Context, cfg CookieConfig, sess *auth.Session) {
	sameSite := http.SameSiteLaxMode
	if cfg.Secure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(middleware.AccessTokenCookie, sess.AccessToken, int(sess.ExpiresIn), "/", "", cfg.Secure, true)
	c.SetCookie(refreshTokenCookie, sess.RefreshToken, cfg.RefreshMaxAge, "/", "", cfg.Secure, true)
}

func clearAuthCookies(c *gin.Context, cfg CookieConfig) {
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", cfg.Secure, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", cfg.Secure, true)
}
