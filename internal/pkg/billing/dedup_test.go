package billing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDeduplicator(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := NewRedisDeduplicator(client, "stripe", time.Hour)

	seen, err := d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Remember(ctx, "evt_1"))
	seen, err = d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL("billing:webhook:stripe:evt_1"))

	mr.FastForward(2 * time.Hour)
	seen, err = d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDeduplicatorDefaultTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := NewRedisDeduplicator(client, "stripe", 0)
	require.NoError(t, d.Remember(context.Background(), "evt_1"))
	assert.Equal(t, DefaultDedupTTL, mr.TTL("billing:webhook:stripe:evt_1"))
}

func TestRedisDeduplicatorUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisDeduplicator(client, "stripe", 0).Seen(context.Background(), "evt_1")
	assert.Error(t, err)
}

func TestNoopDeduplicator(t *testing.T) {
	var d Deduplicator = NoopDeduplicator{}
	require.NoError(t, d.Remember(context.Background(), "evt_1"))
	seen, err := d.Seen(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}
