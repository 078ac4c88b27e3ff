package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/validation"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppName, cfg.Env)
	gin.SetMode(cfg.GinMode)

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}

	if err := database.EnsureIndexes(application.DB, logger); err != nil {
		if errors.Is(err, database.ErrRequiredIndex) {
			logger.WithError(err).Fatal("required index missing")
		}
		logger.WithError(err).Warn("index warning")
	}

	validation.Init()
	handlers.SetLogger(logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if cfg.Env == "development" {
		r.Use(gin.Logger())
	}

	handlers.RegisterRoutes(r, application.Services(), handlers.RouteOptions{
		JWTSecret: cfg.JWTSecret,
		Cookies: handlers.CookieConfig{
			Secure:        cfg.Env == "production",
			RefreshMaxAge: int(cfg.RefreshTokenTTL.Seconds()),
		},
		Logger:             logger,
		DB:                 application.DB,
		Redis:              application.Redis,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	application.Close(ctx)
	logger.Info("server exited properly")
}
