/**
 * @description
 * This package handles the configuration management for the contract-service. It uses
 * the Viper library to read configuration from environment variables (and an optional
 * .env file), providing a centralized way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultServerPort          = "8080"
	defaultRedisKeyPrefix      = "burrow:contracts"
	defaultEmailExchange       = "burrow.emails"
	defaultCurrency            = "usd"
	defaultPaymentWindowHours  = 48
	defaultTenantFeeBps        = 250
	defaultListerFeeBps        = 250
	defaultCardSurchargeBps    = 100
	defaultMinChargeCents      = 50
	defaultLeaseRepairSchedule = "@every 5m"
	defaultWebhookDedupeTTLMin = 1440
	defaultIntentRatePerMinute = 20
	maxFeeBps                  = 10000
)

// Config holds all the configuration variables for the contract-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                      string `mapstructure:"SERVER_PORT"`
	AppEnv                          string `mapstructure:"APP_ENV"`
	DatabaseURL                     string `mapstructure:"DATABASE_URL"`
	RedisURL                        string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix                  string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL                     string `mapstructure:"RABBITMQ_URL"`
	EmailExchange                   string `mapstructure:"EMAIL_EXCHANGE"`
	ClerkJWKSURL                    string `mapstructure:"CLERK_JWKS_URL"`
	InternalAPIKey                  string `mapstructure:"INTERNAL_API_KEY"`
	StripeSecretKey                 string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret             string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency                 string `mapstructure:"PAYMENT_CURRENCY"`
	PaymentWindowHours              int    `mapstructure:"PAYMENT_WINDOW_HOURS"`
	TenantFeeBps                    int64  `mapstructure:"TENANT_FEE_BPS"`
	ListerFeeBps                    int64  `mapstructure:"LISTER_FEE_BPS"`
	CardSurchargeBps                int64  `mapstructure:"CARD_SURCHARGE_BPS"`
	MinChargeCents                  int64  `mapstructure:"MIN_CHARGE_CENTS"`
	AWSRegion                       string `mapstructure:"AWS_REGION"`
	S3Bucket                        string `mapstructure:"S3_BUCKET"`
	S3PublicBaseURL                 string `mapstructure:"S3_PUBLIC_BASE_URL"`
	RenderServiceURL                string `mapstructure:"RENDER_SERVICE_URL"`
	PropertyServiceURL              string `mapstructure:"PROPERTY_SERVICE_URL"`
	FrontendBaseURL                 string `mapstructure:"FRONTEND_BASE_URL"`
	LeaseRepairSchedule             string `mapstructure:"LEASE_REPAIR_SCHEDULE"`
	WebhookDedupeTTLMinutes         int    `mapstructure:"WEBHOOK_DEDUPE_TTL_MINUTES"`
	PaymentIntentRateLimitPerMinute int    `mapstructure:"PAYMENT_INTENT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("REDIS_KEY_PREFIX", defaultRedisKeyPrefix)
	viper.SetDefault("EMAIL_EXCHANGE", defaultEmailExchange)
	viper.SetDefault("PAYMENT_CURRENCY", defaultCurrency)
	viper.SetDefault("PAYMENT_WINDOW_HOURS", defaultPaymentWindowHours)
	viper.SetDefault("TENANT_FEE_BPS", defaultTenantFeeBps)
	viper.SetDefault("LISTER_FEE_BPS", defaultListerFeeBps)
	viper.SetDefault("CARD_SURCHARGE_BPS", defaultCardSurchargeBps)
	viper.SetDefault("MIN_CHARGE_CENTS", defaultMinChargeCents)
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("LEASE_REPAIR_SCHEDULE", defaultLeaseRepairSchedule)
	viper.SetDefault("WEBHOOK_DEDUPE_TTL_MINUTES", defaultWebhookDedupeTTLMin)
	viper.SetDefault("PAYMENT_INTENT_RATE_LIMIT_PER_MINUTE", defaultIntentRatePerMinute)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("APP_ENV")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CONTRACT_REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EMAIL_EXCHANGE")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "CONTRACT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("PAYMENT_CURRENCY")
	_ = viper.BindEnv("PAYMENT_WINDOW_HOURS")
	_ = viper.BindEnv("TENANT_FEE_BPS")
	_ = viper.BindEnv("LISTER_FEE_BPS")
	_ = viper.BindEnv("CARD_SURCHARGE_BPS")
	_ = viper.BindEnv("MIN_CHARGE_CENTS")
	_ = viper.BindEnv("AWS_REGION")
	_ = viper.BindEnv("S3_BUCKET")
	_ = viper.BindEnv("S3_PUBLIC_BASE_URL")
	_ = viper.BindEnv("RENDER_SERVICE_URL")
	_ = viper.BindEnv("PROPERTY_SERVICE_URL")
	_ = viper.BindEnv("FRONTEND_BASE_URL")
	_ = viper.BindEnv("LEASE_REPAIR_SCHEDULE")
	_ = viper.BindEnv("WEBHOOK_DEDUPE_TTL_MINUTES")
	_ = viper.BindEnv("PAYMENT_INTENT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("CONTRACT_SERVICE_INTERNAL_API_KEY"))
	}

	config.AppEnv = strings.ToLower(strings.TrimSpace(config.AppEnv))
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisKeyPrefix), ":")
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = defaultRedisKeyPrefix
	}
	if strings.TrimSpace(config.EmailExchange) == "" {
		config.EmailExchange = defaultEmailExchange
	}
	config.PaymentCurrency = strings.ToLower(strings.TrimSpace(config.PaymentCurrency))
	if config.PaymentCurrency == "" {
		config.PaymentCurrency = defaultCurrency
	}
	config.StripeSecretKey = strings.TrimSpace(config.StripeSecretKey)
	config.StripeWebhookSecret = strings.TrimSpace(config.StripeWebhookSecret)
	config.FrontendBaseURL = strings.TrimRight(strings.TrimSpace(config.FrontendBaseURL), "/")
	config.LeaseRepairSchedule = strings.TrimSpace(config.LeaseRepairSchedule)
	// viper skips empty env values, so an explicitly blank schedule is read directly
	if raw, ok := os.LookupEnv("LEASE_REPAIR_SCHEDULE"); ok && strings.TrimSpace(raw) == "" {
		config.LeaseRepairSchedule = ""
	}

	if config.PaymentWindowHours <= 0 {
		log.Printf("level=warn component=config msg=\"invalid payment window; using default\" payment_window_hours=%d", config.PaymentWindowHours)
		config.PaymentWindowHours = defaultPaymentWindowHours
	}
	config.TenantFeeBps = coerceBps("TENANT_FEE_BPS", config.TenantFeeBps, defaultTenantFeeBps)
	config.ListerFeeBps = coerceBps("LISTER_FEE_BPS", config.ListerFeeBps, defaultListerFeeBps)
	config.CardSurchargeBps = coerceBps("CARD_SURCHARGE_BPS", config.CardSurchargeBps, defaultCardSurchargeBps)
	if config.MinChargeCents < 0 {
		log.Printf("level=warn component=config msg=\"negative minimum charge configured; using default\" min_charge_cents=%d", config.MinChargeCents)
		config.MinChargeCents = defaultMinChargeCents
	}
	if config.WebhookDedupeTTLMinutes <= 0 {
		config.WebhookDedupeTTLMinutes = defaultWebhookDedupeTTLMin
	}
	if config.PaymentIntentRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative payment intent rate limit; using default\" limit=%d", config.PaymentIntentRateLimitPerMinute)
		config.PaymentIntentRateLimitPerMinute = defaultIntentRatePerMinute
	}

	return
}

func coerceBps(key string, value, fallback int64) int64 {
	if value < 0 || value > maxFeeBps {
		log.Printf("level=warn component=config msg=\"fee basis points out of range; using default\" key=%s value=%d", key, value)
		return fallback
	}
	return value
}

// IsProduction reports whether error details should be hidden from clients.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

// PaymentWindow returns the time a tenant has to pay after completion.
func (c Config) PaymentWindow() time.Duration {
	return time.Duration(c.PaymentWindowHours) * time.Hour
}

// WebhookDedupeTTL returns how long a processed gateway event id is remembered.
func (c Config) WebhookDedupeTTL() time.Duration {
	return time.Duration(c.WebhookDedupeTTLMinutes) * time.Minute
}
