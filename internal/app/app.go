// Package app wires configuration, infrastructure and services together for
// the API server and the CLI.
package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/address"
	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/orders"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/store"
)

type App struct {
	Config config.Config
	Logger *logrus.Logger

	Mongo *mongo.Client
	DB    *mongo.Database
	// Redis is nil when not configured or unreachable at start-up.
	Redis  *redis.Client
	rabbit *events.RabbitPublisher

	Products   *store.Products
	Categories *store.Categories

	Auth      *auth.Service
	Cart      *cart.Service
	Checkout  *checkout.Service
	Orders    *orders.Service
	Addresses *address.Service
}

// New connects to Mongo (required), Redis and RabbitMQ (optional) and builds
// every service.
func New(cfg config.Config, logger *logrus.Logger) (*App, error) {
	client, err := database.Connect(cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.DBName)
	logger.WithField("db", db.Name()).Info("MongoDB connected")

	a := &App{Config: cfg, Logger: logger, Mongo: client, DB: db}
	a.Redis = connectRedis(cfg, logger)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.OrderEventsQueue)
		if err != nil {
			logger.WithError(err).Warn("RabbitMQ unavailable, order events disabled")
		} else {
			a.rabbit = rp
			publisher = rp
		}
	}

	products := store.NewProducts(db)
	users := store.NewUsers(db)
	orderStore := store.NewOrders(db)
	a.Products = products
	a.Categories = store.NewCategories(db)

	a.Auth = auth.NewService(users, store.NewRefreshTokens(db), auth.Options{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, logger)
	a.Cart = cart.NewService(store.NewCarts(db), products, logger)
	a.Orders = orders.NewService(orderStore, users, orders.TransitionPolicy{AllowBackward: cfg.AllowBackwardStatus}, logger)
	a.Addresses = address.NewService(users, cfg.RequireOneAddress, logger)

	deps := checkout.Deps{
		Provider: payment.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret),
		Carts:    a.Cart,
		Products: products,
		Orders:   orderStore,
		Views:    a.Orders,
		Events:   publisher,
		Logger:   logger,
	}
	if a.Redis != nil {
		deps.Locker = checkout.NewRedisLocker(a.Redis)
	}
	a.Checkout = checkout.NewService(deps, checkout.Options{
		Currency:                 cfg.Currency,
		ClientURL:                cfg.ClientURL,
		ShippingCountries:        cfg.ShippingCountryList(),
		Rules:                    pricing.NewRules(cfg.TaxRate, cfg.FreeShippingThreshold, cfg.FlatShippingFee),
		AmountTolerance:          cfg.AmountTolerance,
		StrictAmountCheck:        cfg.StrictAmountCheck,
		DecrementOnProviderItems: cfg.DecrementOnProviderItems,
	})
	return a, nil
}

// Services exposes the services to the HTTP layer.
func (a *App) Services() handlers.Services {
	return handlers.Services{
		Auth:       a.Auth,
		Catalog:    a.Products,
		Categories: a.Categories,
		Cart:       a.Cart,
		Checkout:   a.Checkout,
		Orders:     a.Orders,
		Addresses:  a.Addresses,
	}
}

func (a *App) Close(ctx context.Context) {
	a.rabbit.Close()
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if err := a.Mongo.Disconnect(ctx); err != nil {
		a.Logger.WithError(err).Warn("mongo disconnect failed")
	}
}

func connectRedis(cfg config.Config, logger *logrus.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, rate limiting and reconciliation locks disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unreachable, continuing without it")
		_ = rdb.Close()
		return nil
	}
	return rdb
}
