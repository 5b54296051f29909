package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/HyunwooPark/ZineHub/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis/Dragonfly cache server.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port),
		DB:   0,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Printf("Warning: could not connect to cache: %v", err)
	}
}

// GetClient returns the Redis client instance.
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value with the given key and expiration time.
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value by key. Returns redis.Nil error on a cache miss.
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes keys from the cache.
func Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return GetClient().Del(ctx, keys...).Err()
}

// IsMiss reports whether err is a cache miss as opposed to a real failure.
func IsMiss(err error) bool {
	return err == redis.Nil
}

const subscriptionStatusPrefix = "subscription:status:"

// SubscriptionStatusKey builds the cache key for a subscriber's projected status.
func SubscriptionStatusKey(customerID string) string {
	return subscriptionStatusPrefix + customerID
}
