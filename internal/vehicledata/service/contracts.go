package service

import (
	"context"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/orchestrator"
	"garagedata/internal/vehicledata/ratelimit"
	"garagedata/pkg/domain"
)

// ResponseCache is the two-tier response cache.
type ResponseCache interface {
	Get(ctx context.Context, key models.Key) (*models.CacheEntry, bool)
	Put(ctx context.Context, key models.Key, payload models.Payload, source models.Source) models.CacheEntry
	MemoryLen() int
}

// FailureMemo remembers keys for which every provider was exhausted.
type FailureMemo interface {
	Lookup(ctx context.Context, key models.Key) (*models.FailureRecord, bool)
	MarkFailed(ctx context.Context, key models.Key, reason string)
	Clear(ctx context.Context, reg domain.Registration) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]models.FailureRecord, error)
}

// ProviderChain walks the providers for one key.
type ProviderChain interface {
	Run(ctx context.Context, reg domain.Registration, kind models.Kind) (*orchestrator.Result, error)
}

// RateLimiter is the operator-facing side of the shared limiter.
type RateLimiter interface {
	Reset()
	Remaining() time.Duration
	Status() ratelimit.Snapshot
}
