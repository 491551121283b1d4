// Package blacklist memoizes registrations for which every provider has been
// exhausted, so later resolutions short-circuit without provider calls.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"garagedata/internal/vehicledata/metrics"
	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/store"
	"garagedata/pkg/domain"
)

// Store is the persistent blacklist tier. Find returns store.ErrNotFound for
// absent or expired records; Save must keep an existing live record.
type Store interface {
	Find(ctx context.Context, key models.Key, now time.Time) (*models.FailureRecord, error)
	Save(ctx context.Context, rec models.FailureRecord) error
	List(ctx context.Context, now time.Time) ([]models.FailureRecord, error)
	DeleteRegistration(ctx context.Context, reg domain.Registration) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Memo is the failure memo. Known failures are held in-process and mirrored
// to the persistent store so they survive restarts.
type Memo struct {
	mu    sync.RWMutex
	local map[models.Key]models.FailureRecord

	store   Store
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Memo.
type Option func(*Memo)

// WithTTL makes new records expire after d. Zero (the default) means never.
func WithTTL(d time.Duration) Option {
	return func(m *Memo) {
		if d >= 0 {
			m.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Memo) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Memo) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Memo) {
		m.metrics = mt
	}
}

// New creates a memo over st. A nil store keeps records in-process only.
func New(st Store, opts ...Option) *Memo {
	m := &Memo{
		local:  make(map[models.Key]models.FailureRecord),
		store:  st,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lookup returns the live failure record for key. A persistent read error is
// logged and reported as not blacklisted, so an unhealthy store never hides
// vehicles.
func (m *Memo) Lookup(ctx context.Context, key models.Key) (*models.FailureRecord, bool) {
	now := m.now()

	m.mu.RLock()
	rec, ok := m.local[key]
	m.mu.RUnlock()
	if ok {
		if !rec.IsExpired(now) {
			return &rec, true
		}
		m.mu.Lock()
		if cur, still := m.local[key]; still && cur.IsExpired(now) {
			delete(m.local, key)
		}
		m.mu.Unlock()
	}

	if m.store == nil {
		return nil, false
	}
	found, err := m.store.Find(ctx, key, now)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.WarnContext(ctx, "blacklist read failed, treating as not blacklisted",
				"kind", string(key.Kind),
				"error", err,
			)
		}
		return nil, false
	}
	if found.IsExpired(now) {
		return nil, false
	}

	m.mu.Lock()
	m.local[key] = *found
	m.mu.Unlock()
	return found, true
}

// IsBlacklisted reports whether key has a live failure record.
func (m *Memo) IsBlacklisted(ctx context.Context, key models.Key) bool {
	_, ok := m.Lookup(ctx, key)
	return ok
}

// MarkFailed records that no provider could supply data for key. Marking an
// already-blacklisted key is a no-op. A failed persistent write is logged;
// the in-process record still takes effect.
func (m *Memo) MarkFailed(ctx context.Context, key models.Key, reason string) {
	now := m.now()
	rec := models.FailureRecord{Key: key, Reason: reason, CreatedAt: now}
	if m.ttl > 0 {
		expires := now.Add(m.ttl)
		rec.ExpiresAt = &expires
	}

	m.mu.Lock()
	if existing, ok := m.local[key]; ok && !existing.IsExpired(now) {
		m.mu.Unlock()
		return
	}
	m.local[key] = rec
	m.mu.Unlock()

	m.metrics.RecordBlacklistMark()
	m.logger.InfoContext(ctx, "registration blacklisted",
		"registration", key.Registration.Redacted(),
		"kind", string(key.Kind),
		"reason", reason,
	)

	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, rec); err != nil {
		m.logger.WarnContext(ctx, "blacklist write failed",
			"kind", string(key.Kind),
			"error", err,
		)
	}
}

// Clear removes every record for reg, whatever its kind.
func (m *Memo) Clear(ctx context.Context, reg domain.Registration) (int64, error) {
	var cleared int64
	m.mu.Lock()
	for key := range m.local {
		if key.Registration == reg {
			delete(m.local, key)
			cleared++
		}
	}
	m.mu.Unlock()

	if m.store == nil {
		return cleared, nil
	}
	deleted, err := m.store.DeleteRegistration(ctx, reg)
	if err != nil {
		return cleared, fmt.Errorf("clear blacklist entry: %w", err)
	}
	return max(cleared, deleted), nil
}

// ClearAll removes every record.
func (m *Memo) ClearAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	cleared := int64(len(m.local))
	clear(m.local)
	m.mu.Unlock()

	if m.store == nil {
		return cleared, nil
	}
	deleted, err := m.store.DeleteAll(ctx)
	if err != nil {
		return cleared, fmt.Errorf("clear blacklist: %w", err)
	}
	return max(cleared, deleted), nil
}

// List returns live records, oldest first. The persistent store is
// authoritative when configured.
func (m *Memo) List(ctx context.Context) ([]models.FailureRecord, error) {
	now := m.now()
	if m.store != nil {
		recs, err := m.store.List(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("list blacklist: %w", err)
		}
		return recs, nil
	}

	m.mu.RLock()
	out := make([]models.FailureRecord, 0, len(m.local))
	for _, rec := range m.local {
		if !rec.IsExpired(now) {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b models.FailureRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}
