package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventGuard claims webhook event ids with SETNX so that every replica agrees on
// which delivery processes an event.
type RedisEventGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisEventGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisEventGuard {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "burrow:contracts"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisEventGuard{client: client, prefix: trimmedPrefix + ":webhook_event", ttl: ttl}
}

func (g *RedisEventGuard) key(eventID string) string {
	return g.prefix + ":" + eventID
}

// Claim returns true for the first caller of an event id within the TTL.
func (g *RedisEventGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	return g.client.SetNX(ctx, g.key(eventID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}

// Release forgets a claim so a retried delivery is processed.
func (g *RedisEventGuard) Release(ctx context.Context, eventID string) error {
	return g.client.Del(ctx, g.key(eventID)).Err()
}

// MemoryEventGuard is the single-process fallback used when Redis is not configured.
type MemoryEventGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryEventGuard(ttl time.Duration, now func() time.Time) *MemoryEventGuard {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryEventGuard{seen: make(map[string]time.Time), ttl: ttl, now: now}
}

func (g *MemoryEventGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	// Clean up old entries to prevent memory leaks
	for id, at := range g.seen {
		if now.Sub(at) >= g.ttl {
			delete(g.seen, id)
		}
	}
	if _, exists := g.seen[eventID]; exists {
		return false, nil
	}
	g.seen[eventID] = now
	return true, nil
}

func (g *MemoryEventGuard) Release(ctx context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, eventID)
	return nil
}
