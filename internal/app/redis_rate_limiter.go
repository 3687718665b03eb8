package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimitError is returned once a tenant exceeds its payment intent window. It
// unwraps to ErrRateLimited.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("payment intent rate limit exceeded; retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// paymentIntentWindowScript counts one request in the tenant's current window and
// returns {count, remaining_ms}. A key that lost its expiry is re-armed.
var paymentIntentWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if current == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisPaymentIntentLimiter caps how many payment intent requests one tenant can make per
// window across every replica. Each contract payment attempt may open a gateway intent,
// so the cap bounds gateway calls per tenant.
type RedisPaymentIntentLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisPaymentIntentLimiter allows perMinute requests per tenant. perMinute <= 0
// disables the limit.
func NewRedisPaymentIntentLimiter(client redis.UniversalClient, prefix string, perMinute int) *RedisPaymentIntentLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "burrow:contracts"
	}
	return &RedisPaymentIntentLimiter{
		client: client,
		prefix: trimmedPrefix + ":rate_limit:payment_intent",
		limit:  perMinute,
		window: time.Minute,
	}
}

func (r *RedisPaymentIntentLimiter) key(tenantID uuid.UUID) string {
	return r.prefix + ":" + tenantID.String()
}

// AllowPaymentIntent records one request for the tenant. It returns a *RateLimitError
// once the tenant is over the limit; any other error means Redis could not be consulted.
func (r *RedisPaymentIntentLimiter) AllowPaymentIntent(ctx context.Context, tenantID uuid.UUID) error {
	if r == nil || r.client == nil || r.limit <= 0 || tenantID == uuid.Nil {
		return nil
	}

	windowMs := r.window.Milliseconds()
	raw, err := paymentIntentWindowScript.Run(ctx, r.client, []string{r.key(tenantID)}, windowMs).Int64Slice()
	if err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("unexpected payment intent limiter response: %v", raw)
	}

	count, ttlMs := raw[0], raw[1]
	if count <= int64(r.limit) {
		return nil
	}
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &RateLimitError{RetryAfterSeconds: retryAfter}
}
