/**
 * @description
 * Wiring shared by the HTTP server and the operator CLI: database pool, optional Redis,
 * and the application service with every configured collaborator.
 *
 * @notes
 * - Optional collaborators (Redis, Stripe, S3, render and property services) degrade
 *   with a warning instead of preventing boot. The affected operations report an
 *   external service error.
 */

package bootstrap

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/app"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/config"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/fees"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
	"github.com/sbalsara05/Burrow-Housing-sub000/pkg/objectstore"
	"github.com/sbalsara05/Burrow-Housing-sub000/pkg/propertyclient"
	"github.com/sbalsara05/Burrow-Housing-sub000/pkg/rabbitmq"
	"github.com/sbalsara05/Burrow-Housing-sub000/pkg/renderclient"
	"github.com/sbalsara05/Burrow-Housing-sub000/pkg/stripegateway"
)

// OpenPool connects to PostgreSQL with the pool settings shared by every service.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// OpenRedis returns a connected client, or nil when Redis is not configured or not
// reachable.
func OpenRedis(ctx context.Context, redisURL string) *redis.Client {
	if strings.TrimSpace(redisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; using in-process webhook guard and no rate limiting\" env=REDIS_URL")
		return nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; redis features disabled\" err=%v", err)
		return nil
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; redis features disabled\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}

// NewService builds the contract service from configuration. redisClient and publisher
// may be nil.
func NewService(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client, publisher rabbitmq.Publisher) *app.Service {
	deps := app.Dependencies{
		Repo:      store.NewPostgresRepository(pool),
		Publisher: publisher,
	}

	if cfg.StripeSecretKey != "" {
		gateway := stripegateway.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		deps.Gateway = gateway
		if cfg.StripeWebhookSecret != "" {
			deps.Verifier = gateway
		} else {
			log.Println("level=warn component=bootstrap msg=\"stripe webhook secret missing; webhooks will be rejected\" env=STRIPE_WEBHOOK_SECRET")
		}
	} else {
		log.Println("level=warn component=bootstrap msg=\"stripe secret key missing; payments disabled\" env=STRIPE_SECRET_KEY")
	}

	if cfg.S3Bucket != "" {
		storage, err := objectstore.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3PublicBaseURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"object storage init failed; signing disabled\" err=%v", err)
		} else {
			deps.Storage = storage
		}
	} else {
		log.Println("level=warn component=bootstrap msg=\"s3 bucket missing; signing disabled\" env=S3_BUCKET")
	}

	if cfg.RenderServiceURL != "" {
		deps.Renderer = renderclient.NewClient(cfg.RenderServiceURL, cfg.InternalAPIKey)
	} else {
		log.Println("level=warn component=bootstrap msg=\"render service url missing; lister signing disabled\" env=RENDER_SERVICE_URL")
	}

	if cfg.PropertyServiceURL != "" {
		deps.Properties = propertyclient.NewClient(cfg.PropertyServiceURL, cfg.InternalAPIKey)
	} else {
		log.Println("level=warn component=bootstrap msg=\"property service url missing; listing updates disabled\" env=PROPERTY_SERVICE_URL")
	}

	if redisClient != nil {
		deps.Limiter = app.NewRedisPaymentIntentLimiter(redisClient, cfg.RedisKeyPrefix, cfg.PaymentIntentRateLimitPerMinute)
		deps.Guard = app.NewRedisEventGuard(redisClient, cfg.RedisKeyPrefix, cfg.WebhookDedupeTTL())
	} else {
		deps.Guard = app.NewMemoryEventGuard(cfg.WebhookDedupeTTL(), nil)
	}

	return app.NewService(deps, app.Options{
		Fees: fees.Schedule{
			TenantFeeBps:       cfg.TenantFeeBps,
			ListerFeeBps:       cfg.ListerFeeBps,
			CardSurchargeBps:   cfg.CardSurchargeBps,
			MinimumChargeCents: cfg.MinChargeCents,
		},
		Currency:        cfg.PaymentCurrency,
		PaymentWindow:   cfg.PaymentWindow(),
		FrontendBaseURL: cfg.FrontendBaseURL,
	})
}
