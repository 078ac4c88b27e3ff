package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/middleware"
)

type Services struct {
	Auth       AuthService
	Catalog    ProductCatalog
	Categories CategoryCatalog
	Cart       CartService
	Checkout   CheckoutService
	Orders     OrderService
	Addresses  AddressService
}

type RouteOptions struct {
	JWTSecret string
	Cookies   CookieConfig
	Logger    logrus.FieldLogger
	// DB enables the database guard when set.
	DB *mongo.Database
	// Redis enables rate limiting when set.
	Redis              *redis.Client
	RateLimitPerMinute int
}

// RegisterRoutes mounts the whole API on r.
func RegisterRoutes(r *gin.Engine, s Services, opts RouteOptions) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/")
	if opts.DB != nil {
		api.Use(DatabaseGuard(opts.DB))
	}

	userAuth := middleware.UserAuth(opts.JWTSecret, opts.Logger)
	ipLimit := middleware.RateLimit(opts.Redis, opts.RateLimitPerMinute, time.Minute, middleware.KeyByIP())
	userLimit := middleware.RateLimit(opts.Redis, opts.RateLimitPerMinute, time.Minute, middleware.KeyByUserID())

	authGroup := api.Group("/auth", ipLimit)
	{
		authGroup.POST("/register", Register(s.Auth, opts.Cookies))
		authGroup.POST("/login", Login(s.Auth, opts.Cookies))
		authGroup.POST("/refresh", Refresh(s.Auth, opts.Cookies))
		authGroup.POST("/logout", Logout(s.Auth, opts.Cookies))
	}

	api.GET("/categories", GetCategories(s.Categories))
	api.GET("/products", GetProducts(s.Catalog, s.Categories))
	api.GET("/products/category/:slug", GetProductsByCategory(s.Catalog, s.Categories))
	api.GET("/products/:slug", GetProductBySlug(s.Catalog))

	cartGroup := api.Group("/cart", userAuth)
	{
		cartGroup.POST("/sync", SyncCart(s.Cart))
		cartGroup.GET("", GetCart(s.Cart))
		cartGroup.PUT("/item", UpdateCartItem(s.Cart))
		cartGroup.DELETE("/item/:productId", RemoveCartItem(s.Cart))
		cartGroup.DELETE("", ClearCart(s.Cart))
	}

	api.POST("/checkout/webhook", StripeWebhook(s.Checkout))
	checkoutGroup := api.Group("/checkout", userAuth)
	{
		checkoutGroup.POST("/session", userLimit, CreateCheckoutSession(s.Checkout))
		checkoutGroup.GET("/confirm", ConfirmCheckout(s.Checkout))
	}

	orderGroup := api.Group("/orders", userAuth)
	{
		orderGroup.GET("", GetMyOrders(s.Orders))
		orderGroup.GET("/:id", GetMyOrder(s.Orders))
		orderGroup.PUT("/:id/status", middleware.AdminOnly(), UpdateOrderStatus(s.Orders))
	}

	user := api.Group("/user", userAuth)
	{
		user.GET("/me", GetMe(s.Auth))
		user.PUT("/profile", UpdateProfile(s.Auth))
		user.GET("/addresses", GetUserAddresses(s.Addresses))
		user.GET("/addresses/:id", GetUserAddress(s.Addresses))
		user.POST("/addresses", CreateUserAddress(s.Addresses))
		user.PUT("/addresses/:id", UpdateUserAddress(s.Addresses))
		user.DELETE("/addresses/:id", DeleteUserAddress(s.Addresses))
	}

	admin := api.Group("/admin", middleware.AdminAuth(opts.JWTSecret, opts.Logger))
	{
		admin.GET("/orders", GetOrders(s.Orders))
		admin.GET("/orders/:id", GetOrder(s.Orders))
		admin.PUT("/orders/:id/status", UpdateOrderStatus(s.Orders))
		admin.DELETE("/orders/:id", DeleteOrder(s.Orders))
	}
}
