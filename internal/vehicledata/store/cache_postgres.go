package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/pkg/domain"
)

// PostgresCache persists vehicle-data cache entries in PostgreSQL.
type PostgresCache struct {
	db *sql.DB
}

// NewPostgresCache constructs a PostgreSQL-backed cache store.
func NewPostgresCache(db *sql.DB) *PostgresCache {
	return &PostgresCache{db: db}
}

// Find returns the entry for key if it has not expired at now.
func (c *PostgresCache) Find(ctx context.Context, key models.Key, now time.Time) (*models.CacheEntry, error) {
	query := `
		SELECT kind, registration, payload, source, created_at, expires_at
		FROM vehicle_data_cache
		WHERE kind = $1 AND registration = $2 AND expires_at >= $3
	`
	entry, err := scanCacheEntry(c.db.QueryRowContext(ctx, query, string(key.Kind), key.Registration.String(), now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find vehicle data cache: %w", err)
	}
	return entry, nil
}

// Save upserts entry by (kind, registration).
func (c *PostgresCache) Save(ctx context.Context, entry models.CacheEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("encode vehicle data payload: %w", err)
	}
	query := `
		INSERT INTO vehicle_data_cache (kind, registration, payload, source, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, registration) DO UPDATE SET
			payload = EXCLUDED.payload,
			source = EXCLUDED.source,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err = c.db.ExecContext(ctx, query,
		string(entry.Key.Kind),
		entry.Key.Registration.String(),
		payload,
		string(entry.Source),
		entry.CreatedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save vehicle data cache: %w", err)
	}
	return nil
}

// DeleteExpired removes rows that expired before now.
func (c *PostgresCache) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM vehicle_data_cache WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired vehicle data cache: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks database connectivity.
func (c *PostgresCache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

type row interface {
	Scan(dest ...any) error
}

func scanCacheEntry(r row) (*models.CacheEntry, error) {
	var (
		entry        models.CacheEntry
		kind         string
		registration string
		source       string
		payload      []byte
	)
	if err := r.Scan(&kind, &registration, &payload, &source, &entry.CreatedAt, &entry.ExpiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &entry.Payload); err != nil {
		return nil, fmt.Errorf("decode vehicle data payload: %w", err)
	}
	entry.Key = models.NewKey(models.Kind(kind), domain.Registration(registration))
	entry.Source = models.Source(source)
	return &entry, nil
}
