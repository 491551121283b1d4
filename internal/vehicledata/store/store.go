// Package store provides the persistent tiers behind the vehicle-data cache
// and blacklist: in-memory (single process, development), PostgreSQL and Redis.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no live record exists for a key.
var ErrNotFound = errors.New("not found")

// Table names used by the Postgres stores.
const (
	CacheTable     = "vehicle_data_cache"
	BlacklistTable = "vehicle_data_blacklist"
)

// ttlUntil returns the Redis expiry for a deadline, or zero when the deadline
// is unset (never expires).
func ttlUntil(deadline *time.Time, now time.Time) time.Duration {
	if deadline == nil {
		return 0
	}
	ttl := deadline.Sub(now)
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}
