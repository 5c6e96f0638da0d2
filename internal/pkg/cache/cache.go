package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Database numbers on the shared Redis instance.
const (
	DBDefault = 0
	DBLimiter = 1
)

// NewClient connects to the Redis/Dragonfly cache server. A failed ping is
// logged, not fatal: the client reconnects on demand and callers fail open.
func NewClient(addr, password string, db int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache at %s: %v", addr, err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}

	return client
}

// Healthy pings the cache with a short deadline.
func Healthy(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
