package service

import (
	"context"
	"math"

	"garagedata/internal/vehicledata/models"
	"garagedata/pkg/domain"
)

// ResetCooldown clears the shared provider cooldown and error count.
func (s *Service) ResetCooldown(ctx context.Context) models.Status {
	s.limiter.Reset()
	s.logger.InfoContext(ctx, "provider cooldown reset")
	status, _ := s.Status(ctx)
	return status
}

// ClearBlacklist removes the failure records for registration, or every
// record when registration is empty. It returns how many were removed.
func (s *Service) ClearBlacklist(ctx context.Context, registration string) (int64, error) {
	if registration == "" {
		n, err := s.memo.ClearAll(ctx)
		if err != nil {
			return n, err
		}
		s.logger.InfoContext(ctx, "blacklist cleared", "removed", n)
		return n, nil
	}

	reg, err := domain.ParseRegistration(registration)
	if err != nil {
		return 0, err
	}
	n, err := s.memo.Clear(ctx, reg)
	if err != nil {
		return n, err
	}
	s.logger.InfoContext(ctx, "blacklist entry cleared",
		"registration", reg.Redacted(),
		"removed", n,
	)
	return n, nil
}

// ListBlacklist returns the live failure records, oldest first.
func (s *Service) ListBlacklist(ctx context.Context) ([]models.FailureRecord, error) {
	return s.memo.List(ctx)
}

// Status reports the limiter state and blacklist size. A blacklist read
// failure still returns the limiter state along with the error.
func (s *Service) Status(ctx context.Context) (models.Status, error) {
	snap := s.limiter.Status()
	status := models.Status{
		ConsecutiveErrors: snap.ConsecutiveErrors,
		CachedEntries:     s.cache.MemoryLen(),
		Providers:         s.sources,
	}
	if status.Providers == nil {
		status.Providers = []models.Source{}
	}
	if !snap.LastCallAt.IsZero() {
		last := snap.LastCallAt
		status.LastCallAt = &last
	}
	if remaining := s.limiter.Remaining(); remaining > 0 {
		until := snap.CooldownUntil
		status.InCooldown = true
		status.CooldownUntil = &until
		status.CooldownRemainingSec = int(math.Ceil(remaining.Seconds()))
	}

	records, err := s.memo.List(ctx)
	if err != nil {
		return status, err
	}
	status.BlacklistSize = len(records)
	return status, nil
}
