package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/pkg/domain"

	"github.com/redis/go-redis/v9"
)

const redisCacheKeyPrefix = "vehicledata:cache:"

// redisCacheRecord is the JSON value stored per key.
type redisCacheRecord struct {
	Kind         models.Kind    `json:"kind"`
	Registration string         `json:"registration"`
	Payload      models.Payload `json:"payload"`
	Source       models.Source  `json:"source"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// RedisCache persists vehicle-data cache entries in Redis. Keys carry a
// Redis TTL matching the entry's expiry, so no cleanup pass is needed.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a Redis-backed cache store.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Find loads the entry for key.
//
// Errors: returns ErrNotFound on a miss or an entry expired at now; wraps
// Redis or JSON decode errors.
func (c *RedisCache) Find(ctx context.Context, key models.Key, now time.Time) (*models.CacheEntry, error) {
	data, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find vehicle data cache: %w", err)
	}

	var rec redisCacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode vehicle data cache: %w", err)
	}
	entry := models.CacheEntry{
		Key:       models.NewKey(rec.Kind, domain.Registration(rec.Registration)),
		Payload:   rec.Payload,
		Source:    rec.Source,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
	if entry.IsExpired(now) {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Save writes entry with a Redis TTL ending at its expiry, overwriting any
// existing value.
func (c *RedisCache) Save(ctx context.Context, entry models.CacheEntry) error {
	data, err := json.Marshal(redisCacheRecord{
		Kind:         entry.Key.Kind,
		Registration: entry.Key.Registration.String(),
		Payload:      entry.Payload,
		Source:       entry.Source,
		CreatedAt:    entry.CreatedAt,
		ExpiresAt:    entry.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode vehicle data cache: %w", err)
	}
	ttl := ttlUntil(&entry.ExpiresAt, entry.CreatedAt)
	if err := c.client.Set(ctx, cacheKey(entry.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("save vehicle data cache: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (c *RedisCache) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func cacheKey(key models.Key) string {
	return redisCacheKeyPrefix + key.String()
}
