package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/fullpos/license-server/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Cache key prefixes
	CacheKeyLicense    = "fullpos:license:"
	CacheKeySigningJWK = "fullpos:signing:jwk"
	CacheKeyTokenBlock = "fullpos:jwt:blacklist:"

	// Cache TTLs
	CacheTTLLicense = 2 * time.Minute
	CacheTTLJWK     = 10 * time.Minute
)

// Cache is a read-through JSON cache in redis. A nil client disables it and every
// lookup falls through to the loader.
type Cache struct {
	client *redis.Client
}

// NewCache wraps client. client may be nil.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Enabled reports whether a redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get unmarshals key into dest. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value with ttl.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// DeletePattern deletes all keys matching a pattern (use with caution)
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	if !c.Enabled() {
		return nil
	}
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// ReadThrough returns the cached value for key or loads, stores and returns it.
// Redis failures are logged and never fail the read.
func ReadThrough[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		logger.L().Warn("Cache: Get failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		logger.L().Warn("Cache: Set failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

// InvalidateLicense drops the cached copy of a license.
func (c *Cache) InvalidateLicense(ctx context.Context, licenseID string) {
	if err := c.Delete(ctx, CacheKeyLicense+licenseID); err != nil {
		logger.L().Warn("Cache: Invalidate license failed", zap.String("license_id", licenseID), zap.Error(err))
	}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return CacheKeyTokenBlock + hex.EncodeToString(sum[:])
}

// BlacklistToken revokes an admin token until it would have expired anyway.
func (c *Cache) BlacklistToken(ctx context.Context, token string, expiresAt time.Time) error {
	if !c.Enabled() {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, tokenKey(token), "1", ttl).Err()
}

// IsTokenBlacklisted reports whether token was revoked by a logout. Redis errors
// report false so an unavailable cache does not lock operators out.
func (c *Cache) IsTokenBlacklisted(ctx context.Context, token string) bool {
	if !c.Enabled() {
		return false
	}
	n, err := c.client.Exists(ctx, tokenKey(token)).Result()
	if err != nil {
		logger.L().Warn("Cache: blacklist lookup failed", zap.Error(err))
		return false
	}
	return n > 0
}
