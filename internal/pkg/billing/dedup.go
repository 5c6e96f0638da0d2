package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL keeps processed event ids well past Stripe's retry window.
const DefaultDedupTTL = 72 * time.Hour

// Deduplicator is the fast path for recognizing redelivered events. The
// audit log in the Store remains the source of truth.
type Deduplicator interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

// RedisDeduplicator stores processed event ids as expiring keys.
type RedisDeduplicator struct {
	client   *redis.Client
	provider string
	ttl      time.Duration
}

// NewRedisDeduplicator creates a Redis-backed deduplicator. A non-positive
// ttl falls back to DefaultDedupTTL.
func NewRedisDeduplicator(client *redis.Client, provider string, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduplicator{client: client, provider: provider, ttl: ttl}
}

func (d *RedisDeduplicator) key(eventID string) string {
	return "billing:webhook:" + d.provider + ":" + eventID
}

func (d *RedisDeduplicator) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduplicator) Remember(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, d.key(eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
}

// NoopDeduplicator never reports a duplicate.
type NoopDeduplicator struct{}

func (NoopDeduplicator) Seen(context.Context, string) (bool, error) { return false, nil }

func (NoopDeduplicator) Remember(context.Context, string) error { return nil }
