package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"labstore-backend/internal/config"
)

const requestKeyPrefix = "request:"

var client *redis.Client

// Init initializes the Redis connection from the loaded config
func Init(cfg *config.Config) error {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Close the failed client and set to nil for graceful degradation
		client.Close()
		client = nil
		return err
	}
	return nil
}

// GetClient returns the Redis client
func GetClient() *redis.Client {
	return client
}

// hashCredentials creates a hash of email+password for cache key
func hashCredentials(email, password string) string {
	h := sha256.New()
	h.Write([]byte(email + ":" + password))
	return "auth:" + hex.EncodeToString(h.Sum(nil))[:32]
}

// GetCachedAuth checks if credentials are cached and valid
func GetCachedAuth(ctx context.Context, email, password string) (int64, bool) {
	if client == nil {
		return 0, false
	}
	key := hashCredentials(email, password)
	userID, err := client.Get(ctx, key).Int64()
	if err != nil {
		return 0, false
	}
	return userID, true
}

// CacheAuth caches valid credentials for 15 minutes
func CacheAuth(ctx context.Context, email, password string, userID int64) {
	if client == nil {
		return
	}
	key := hashCredentials(email, password)
	client.Set(ctx, key, userID, 15*time.Minute)
}

// InvalidateAuth removes cached auth for a user (on password change/logout)
func InvalidateAuth(ctx context.Context, email, password string) {
	if client == nil {
		return
	}
	key := hashCredentials(email, password)
	client.Del(ctx, key)
}

// GetCachedRequest returns the cached JSON snapshot of a request aggregate.
// Used only on the read path; the allocation engine always loads fresh.
func GetCachedRequest(ctx context.Context, requestID string) ([]byte, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, requestKeyPrefix+requestID).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// CacheRequest caches a request snapshot for 2 minutes
func CacheRequest(ctx context.Context, requestID string, data []byte) {
	if client == nil {
		return
	}
	client.Set(ctx, requestKeyPrefix+requestID, data, 2*time.Minute)
}

// InvalidateRequest drops the cached snapshot after any write to the aggregate
func InvalidateRequest(ctx context.Context, requestID string) {
	if client == nil {
		return
	}
	client.Del(ctx, requestKeyPrefix+requestID)
}
