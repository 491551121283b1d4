package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/pkg/domain"
)

// InMemoryBlacklist is the persistent blacklist tier for CACHE_BACKEND=memory.
type InMemoryBlacklist struct {
	mu      sync.RWMutex
	records map[models.Key]models.FailureRecord
}

// NewInMemoryBlacklist creates an empty in-memory blacklist store.
func NewInMemoryBlacklist() *InMemoryBlacklist {
	return &InMemoryBlacklist{records: make(map[models.Key]models.FailureRecord)}
}

func (b *InMemoryBlacklist) Find(_ context.Context, key models.Key, now time.Time) (*models.FailureRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[key]
	if !ok || rec.IsExpired(now) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Save inserts rec unless a live record already exists for its key, so the
// first recorded reason wins.
func (b *InMemoryBlacklist) Save(_ context.Context, rec models.FailureRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.records[rec.Key]; ok && !existing.IsExpired(rec.CreatedAt) {
		return nil
	}
	b.records[rec.Key] = rec
	return nil
}

func (b *InMemoryBlacklist) List(_ context.Context, now time.Time) ([]models.FailureRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.FailureRecord, 0, len(b.records))
	for _, rec := range b.records {
		if !rec.IsExpired(now) {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b models.FailureRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// DeleteRegistration removes every kind of record for reg.
func (b *InMemoryBlacklist) DeleteRegistration(_ context.Context, reg domain.Registration) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var deleted int64
	for key := range b.records {
		if key.Registration == reg {
			delete(b.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (b *InMemoryBlacklist) DeleteAll(context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	deleted := int64(len(b.records))
	clear(b.records)
	return deleted, nil
}

func (b *InMemoryBlacklist) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var deleted int64
	for key, rec := range b.records {
		if rec.IsExpired(now) {
			delete(b.records, key)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (b *InMemoryBlacklist) Ping(context.Context) error { return nil }
