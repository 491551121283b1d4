package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/pkg/domain"

	"github.com/redis/go-redis/v9"
)

const (
	redisBlacklistKeyPrefix = "vehicledata:blacklist:"
	redisScanCount          = 200
)

type redisFailureRecord struct {
	Kind         models.Kind `json:"kind"`
	Registration string      `json:"registration"`
	Reason       string      `json:"reason"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
}

func (r redisFailureRecord) toModel() models.FailureRecord {
	return models.FailureRecord{
		Key:       models.NewKey(r.Kind, domain.Registration(r.Registration)),
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// RedisBlacklist persists failure records in Redis, one key per record.
// Records with an expiry carry a matching Redis TTL.
type RedisBlacklist struct {
	client *redis.Client
}

// NewRedisBlacklist constructs a Redis-backed blacklist store.
func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (b *RedisBlacklist) Find(ctx context.Context, key models.Key, now time.Time) (*models.FailureRecord, error) {
	data, err := b.client.Get(ctx, blacklistKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find blacklist entry: %w", err)
	}
	var raw redisFailureRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode blacklist entry: %w", err)
	}
	rec := raw.toModel()
	if rec.IsExpired(now) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Save stores rec with SET NX so an existing record keeps its original reason.
func (b *RedisBlacklist) Save(ctx context.Context, rec models.FailureRecord) error {
	data, err := json.Marshal(redisFailureRecord{
		Kind:         rec.Key.Kind,
		Registration: rec.Key.Registration.String(),
		Reason:       rec.Reason,
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode blacklist entry: %w", err)
	}
	ttl := ttlUntil(rec.ExpiresAt, rec.CreatedAt)
	if err := b.client.SetNX(ctx, blacklistKey(rec.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("save blacklist entry: %w", err)
	}
	return nil
}

func (b *RedisBlacklist) List(ctx context.Context, now time.Time) ([]models.FailureRecord, error) {
	keys, err := b.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}

	out := make([]models.FailureRecord, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// Expired between SCAN and MGET.
			continue
		}
		var raw redisFailureRecord
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return nil, fmt.Errorf("decode blacklist entry: %w", err)
		}
		if rec := raw.toModel(); !rec.IsExpired(now) {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b models.FailureRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (b *RedisBlacklist) DeleteRegistration(ctx context.Context, reg domain.Registration) (int64, error) {
	keys := []string{
		blacklistKey(models.NewKey(models.KindImage, reg)),
		blacklistKey(models.NewKey(models.KindData, reg)),
	}
	n, err := b.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete blacklist entry: %w", err)
	}
	return n, nil
}

func (b *RedisBlacklist) DeleteAll(ctx context.Context) (int64, error) {
	keys, err := b.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := b.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("clear blacklist: %w", err)
	}
	return n, nil
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (b *RedisBlacklist) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Ping checks Redis connectivity.
func (b *RedisBlacklist) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBlacklist) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, redisBlacklistKeyPrefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan blacklist keys: %w", err)
	}
	return keys, nil
}

func blacklistKey(key models.Key) string {
	return redisBlacklistKeyPrefix + key.String()
}
