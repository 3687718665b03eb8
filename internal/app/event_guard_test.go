package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventGuard(t *testing.T) {
	now := testNow
	guard := NewMemoryEventGuard(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	claimed, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, _ = guard.Claim(ctx, "evt_1")
	assert.False(t, claimed)

	require.NoError(t, guard.Release(ctx, "evt_1"))
	claimed, _ = guard.Claim(ctx, "evt_1")
	assert.True(t, claimed)

	now = now.Add(2 * time.Hour)
	claimed, _ = guard.Claim(ctx, "evt_1")
	assert.True(t, claimed)
}

func TestRedisEventGuardKey(t *testing.T) {
	guard := NewRedisEventGuard(nil, "burrow:contracts:", 0)
	assert.Equal(t, "burrow:contracts:webhook_event:evt_1", guard.key("evt_1"))
	assert.Equal(t, 24*time.Hour, guard.ttl)

	fallback := NewRedisEventGuard(nil, "  ", time.Minute)
	assert.Equal(t, "burrow:contracts:webhook_event:evt_2", fallback.key("evt_2"))
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisEventGuardClaimAndRelease(t *testing.T) {
	mr, client := newMiniredisClient(t)
	guard := NewRedisEventGuard(client, "burrow:contracts", 10*time.Minute)
	ctx := context.Background()

	claimed, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.True(t, mr.Exists("burrow:contracts:webhook_event:evt_1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("burrow:contracts:webhook_event:evt_1"))

	claimed, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, claimed, "second delivery of the same event must not be processed")

	claimed, err = guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, claimed)

	require.NoError(t, guard.Release(ctx, "evt_1"))
	claimed, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, claimed, "a released claim is processed on retry")

	mr.FastForward(11 * time.Minute)
	claimed, err = guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, claimed, "claims lapse after the dedupe TTL")
}

func TestRedisEventGuardReportsRedisFailure(t *testing.T) {
	mr, client := newMiniredisClient(t)
	guard := NewRedisEventGuard(client, "", time.Minute)
	mr.SetError("LOADING Redis is loading the dataset in memory")

	_, err := guard.Claim(context.Background(), "evt_1")
	assert.Error(t, err)
}

func TestRedisPaymentIntentLimiterWindow(t *testing.T) {
	mr, client := newMiniredisClient(t)
	limiter := NewRedisPaymentIntentLimiter(client, "burrow:contracts:", 2)
	ctx := context.Background()
	tenant := uuid.New()
	other := uuid.New()

	require.NoError(t, limiter.AllowPaymentIntent(ctx, tenant))
	require.NoError(t, limiter.AllowPaymentIntent(ctx, tenant))

	key := "burrow:contracts:rate_limit:payment_intent:" + tenant.String()
	assert.Equal(t, time.Minute, mr.TTL(key))

	err := limiter.AllowPaymentIntent(ctx, tenant)
	require.ErrorIs(t, err, ErrRateLimited)
	var rateErr *RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 60, rateErr.RetryAfterSeconds)

	require.NoError(t, limiter.AllowPaymentIntent(ctx, other), "limits are per tenant")

	mr.FastForward(45 * time.Second)
	err = limiter.AllowPaymentIntent(ctx, tenant)
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 15, rateErr.RetryAfterSeconds)

	mr.FastForward(16 * time.Second)
	require.NoError(t, limiter.AllowPaymentIntent(ctx, tenant), "a new window starts after expiry")
}

func TestRedisPaymentIntentLimiterRearmsKeyWithoutExpiry(t *testing.T) {
	mr, client := newMiniredisClient(t)
	limiter := NewRedisPaymentIntentLimiter(client, "", 1)
	tenant := uuid.New()
	key := "burrow:contracts:rate_limit:payment_intent:" + tenant.String()
	require.NoError(t, mr.Set(key, "5"))

	err := limiter.AllowPaymentIntent(context.Background(), tenant)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestRedisPaymentIntentLimiterDisabled(t *testing.T) {
	mr, client := newMiniredisClient(t)
	tenant := uuid.New()

	assert.NoError(t, NewRedisPaymentIntentLimiter(nil, "", 5).AllowPaymentIntent(context.Background(), tenant))

	disabled := NewRedisPaymentIntentLimiter(client, "", 0)
	for i := 0; i < 3; i++ {
		assert.NoError(t, disabled.AllowPaymentIntent(context.Background(), tenant))
	}
	assert.Empty(t, mr.Keys())

	mr.SetError("ERR connection refused")
	limited := NewRedisPaymentIntentLimiter(client, "", 5)
	err := limited.AllowPaymentIntent(context.Background(), tenant)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
}
