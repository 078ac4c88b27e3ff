package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName            string
	Env                string
	Port               string
	GinMode            string
	CORSAllowedOrigins string

	MongoURI string
	DBName   string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	ClientURL           string
	Currency            string
	ShippingCountries   string

	TaxRate               float64
	FreeShippingThreshold float64
	FlatShippingFee       float64

	// DecrementOnProviderItems also adjusts stock when an order is built from the
	// provider's own line items instead of the cart.
	DecrementOnProviderItems bool
	StrictAmountCheck        bool
	AmountTolerance          float64
	RequireOneAddress        bool
	AllowBackwardStatus      bool

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int

	RabbitMQURL      string
	OrderEventsQueue string

	MailgunDomain   string
	MailgunAPIKey   string
	MailgunSender   string
	MailSendEnabled bool
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	return Config{
		AppName:            getEnvOrDefault("APP_NAME", "storefront"),
		Env:                getEnvOrDefault("APP_ENV", "development"),
		Port:               getEnvOrDefault("PORT", "8080"),
		GinMode:            getEnvOrDefault("GIN_MODE", "release"),
		CORSAllowedOrigins: getEnvOrDefault("CORS_ORIGIN", ""),

		MongoURI: getEnvOrDefault("MONGO_URI", ""),
		DBName:   getEnvOrDefault("DB_NAME", "ecommerce"),

		JWTSecret:       getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 20, time.Minute),
		RefreshTokenTTL: getDurationEnv("REFRESH_TOKEN_TTL", 7, 24*time.Hour),

		StripeSecretKey:     getEnvOrDefault("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnvOrDefault("STRIPE_WEBHOOK_SECRET", ""),
		ClientURL:           strings.TrimRight(getEnvOrDefault("CLIENT_URL", "http://localhost:5173"), "/"),
		Currency:            strings.ToLower(getEnvOrDefault("CURRENCY", "usd")),
		ShippingCountries:   getEnvOrDefault("SHIPPING_COUNTRIES", "US,CA,IN"),

		TaxRate:               getFloatEnv("TAX_RATE", 0.08),
		FreeShippingThreshold: getFloatEnv("FREE_SHIPPING_OVER", 66),
		FlatShippingFee:       getFloatEnv("FLAT_SHIPPING", 10),

		DecrementOnProviderItems: getBoolEnv("DECREMENT_ON_PROVIDER_ITEMS", false),
		StrictAmountCheck:        getBoolEnv("STRICT_AMOUNT_CHECK", false),
		AmountTolerance:          getFloatEnv("AMOUNT_TOLERANCE", 0.01),
		RequireOneAddress:        getBoolEnv("REQUIRE_ONE_ADDRESS", true),
		AllowBackwardStatus:      getBoolEnv("ALLOW_BACKWARD_STATUS", true),

		RedisAddr:          getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword:      getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:            getIntEnv("REDIS_DB", 0),
		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 60),

		RabbitMQURL:      getEnvOrDefault("RABBITMQ_URL", ""),
		OrderEventsQueue: getEnvOrDefault("ORDER_EVENTS_QUEUE", "order_events"),

		MailgunDomain:   getEnvOrDefault("MAILGUN_DOMAIN", ""),
		MailgunAPIKey:   getEnvOrDefault("MAILGUN_API_KEY", ""),
		MailgunSender:   getEnvOrDefault("MAILGUN_SENDER", ""),
		MailSendEnabled: getBoolEnv("MAIL_SEND_ENABLED", true),
	}
}

// CORSOrigins returns the allowed origins as a slice.
func (c Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func (c Config) ShippingCountryList() []string {
	return splitList(c.ShippingCountries)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
