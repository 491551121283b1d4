// Package cache implements the two-tier vehicle-data response cache: a
// bounded in-process LRU in front of an authoritative persistent store.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"garagedata/internal/vehicledata/metrics"
	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/store"
	"garagedata/internal/vehicledata/tracer"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PersistentStore is the authoritative tier. Find must return
// store.ErrNotFound for absent or expired entries.
type PersistentStore interface {
	Find(ctx context.Context, key models.Key, now time.Time) (*models.CacheEntry, error)
	Save(ctx context.Context, entry models.CacheEntry) error
}

const (
	tierMemory     = "memory"
	tierPersistent = "persistent"

	defaultMemorySize = 10_000
)

// TTLPolicy maps a payload source to its cache lifetime.
type TTLPolicy struct {
	Provider  time.Duration
	Synthetic time.Duration
}

// DefaultTTLPolicy keeps provider data for a day and generated images for 30 days.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Provider:  24 * time.Hour,
		Synthetic: 30 * 24 * time.Hour,
	}
}

// For returns the TTL for entries produced by source.
func (p TTLPolicy) For(source models.Source) time.Duration {
	if source.IsSynthetic() {
		return p.Synthetic
	}
	return p.Provider
}

func (p TTLPolicy) longest() time.Duration {
	return max(p.Provider, p.Synthetic)
}

// Cache is safe for concurrent use.
type Cache struct {
	memory     *expirable.LRU[models.Key, models.CacheEntry]
	persistent PersistentStore
	ttl        TTLPolicy
	memorySize int
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTLPolicy overrides the per-source TTLs. Non-positive values keep the default.
func WithTTLPolicy(p TTLPolicy) Option {
	return func(c *Cache) {
		if p.Provider > 0 {
			c.ttl.Provider = p.Provider
		}
		if p.Synthetic > 0 {
			c.ttl.Synthetic = p.Synthetic
		}
	}
}

// WithMemorySize bounds the in-process tier.
func WithMemorySize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.memorySize = n
		}
	}
}

// WithClock overrides the time source used for createdAt/expiresAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Cache) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New creates a two-tier cache over persistent. A nil persistent store leaves
// only the in-process tier.
func New(persistent PersistentStore, opts ...Option) *Cache {
	c := &Cache{
		persistent: persistent,
		ttl:        DefaultTTLPolicy(),
		memorySize: defaultMemorySize,
		now:        time.Now,
		logger:     slog.Default(),
		tracer:     tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// The LRU's own TTL is only an upper bound for eviction; freshness is
	// decided per entry against expiresAt.
	c.memory = expirable.NewLRU[models.Key, models.CacheEntry](c.memorySize, nil, c.ttl.longest())
	return c
}

// TTLPolicy returns the effective TTLs.
func (c *Cache) TTLPolicy() TTLPolicy {
	return c.ttl
}

// Get returns a non-expired entry for key, checking the in-process tier first
// and back-filling it from the persistent tier. Persistent I/O errors are
// logged and treated as a miss.
func (c *Cache) Get(ctx context.Context, key models.Key) (*models.CacheEntry, bool) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanCacheGet, tracer.String(tracer.AttrKind, string(key.Kind)))
	defer span.End(nil)

	now := c.now()
	kind := string(key.Kind)

	if entry, ok := c.memory.Get(key); ok {
		if !entry.IsExpired(now) {
			c.metrics.RecordCacheHit(tierMemory, kind)
			span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true), tracer.String(tracer.AttrCacheTier, tierMemory))
			return &entry, true
		}
		c.memory.Remove(key)
	}
	c.metrics.RecordCacheMiss(tierMemory, kind)

	if c.persistent == nil {
		span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))
		return nil, false
	}

	entry, err := c.persistent.Find(ctx, key, now)
	if err != nil || entry == nil || entry.IsExpired(now) {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.metrics.RecordCacheError("get")
			c.logger.WarnContext(ctx, "persistent cache read failed, treating as miss",
				"kind", kind,
				"error", err,
			)
		}
		c.metrics.RecordCacheMiss(tierPersistent, kind)
		span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))
		return nil, false
	}

	c.memory.Add(key, *entry)
	c.metrics.RecordCacheHit(tierPersistent, kind)
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true), tracer.String(tracer.AttrCacheTier, tierPersistent))
	return entry, true
}

// Put stores payload under key in both tiers with expiresAt = now + TTL(source).
// The in-process write always happens; a failed persistent write is logged
// and otherwise ignored.
func (c *Cache) Put(ctx context.Context, key models.Key, payload models.Payload, source models.Source) models.CacheEntry {
	now := c.now()
	entry := models.CacheEntry{
		Key:       key,
		Payload:   payload,
		Source:    source,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl.For(source)),
	}
	c.memory.Add(key, entry)

	if c.persistent != nil {
		if err := c.persistent.Save(ctx, entry); err != nil {
			c.metrics.RecordCacheError("put")
			c.logger.WarnContext(ctx, "persistent cache write failed",
				"kind", string(key.Kind),
				"source", string(source),
				"error", err,
			)
		}
	}
	return entry
}

// MemoryLen returns the number of entries held in-process.
func (c *Cache) MemoryLen() int {
	return c.memory.Len()
}
