package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/pkg/domain"
)

// PostgresBlacklist persists failure records in PostgreSQL.
type PostgresBlacklist struct {
	db *sql.DB
}

// NewPostgresBlacklist constructs a PostgreSQL-backed blacklist store.
func NewPostgresBlacklist(db *sql.DB) *PostgresBlacklist {
	return &PostgresBlacklist{db: db}
}

func (b *PostgresBlacklist) Find(ctx context.Context, key models.Key, now time.Time) (*models.FailureRecord, error) {
	query := `
		SELECT kind, registration, reason, created_at, expires_at
		FROM vehicle_data_blacklist
		WHERE kind = $1 AND registration = $2 AND (expires_at IS NULL OR expires_at >= $3)
	`
	rec, err := scanFailureRecord(b.db.QueryRowContext(ctx, query, string(key.Kind), key.Registration.String(), now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find blacklist entry: %w", err)
	}
	return rec, nil
}

// Save inserts rec. An existing live row is kept; an expired one is replaced.
func (b *PostgresBlacklist) Save(ctx context.Context, rec models.FailureRecord) error {
	query := `
		INSERT INTO vehicle_data_blacklist (kind, registration, reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, registration) DO UPDATE SET
			reason = EXCLUDED.reason,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE vehicle_data_blacklist.expires_at IS NOT NULL
			AND vehicle_data_blacklist.expires_at < EXCLUDED.created_at
	`
	_, err := b.db.ExecContext(ctx, query,
		string(rec.Key.Kind),
		rec.Key.Registration.String(),
		rec.Reason,
		rec.CreatedAt,
		nullTime(rec.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("save blacklist entry: %w", err)
	}
	return nil
}

func (b *PostgresBlacklist) List(ctx context.Context, now time.Time) ([]models.FailureRecord, error) {
	query := `
		SELECT kind, registration, reason, created_at, expires_at
		FROM vehicle_data_blacklist
		WHERE expires_at IS NULL OR expires_at >= $1
		ORDER BY created_at
	`
	rows, err := b.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	defer rows.Close()

	var out []models.FailureRecord
	for rows.Next() {
		rec, err := scanFailureRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blacklist entry: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blacklist: %w", err)
	}
	return out, nil
}

func (b *PostgresBlacklist) DeleteRegistration(ctx context.Context, reg domain.Registration) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM vehicle_data_blacklist WHERE registration = $1`, reg.String())
	if err != nil {
		return 0, fmt.Errorf("delete blacklist entry: %w", err)
	}
	return res.RowsAffected()
}

func (b *PostgresBlacklist) DeleteAll(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM vehicle_data_blacklist`)
	if err != nil {
		return 0, fmt.Errorf("clear blacklist: %w", err)
	}
	return res.RowsAffected()
}

func (b *PostgresBlacklist) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM vehicle_data_blacklist WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklist entries: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks database connectivity.
func (b *PostgresBlacklist) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func scanFailureRecord(r row) (*models.FailureRecord, error) {
	var (
		rec          models.FailureRecord
		kind         string
		registration string
		expiresAt    sql.NullTime
	)
	if err := r.Scan(&kind, &registration, &rec.Reason, &rec.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	rec.Key = models.NewKey(models.Kind(kind), domain.Registration(registration))
	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}
	return &rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
