// Package cleanup runs the periodic sweep that deletes expired rows from the
// persistent cache and blacklist tiers. Redis expires keys natively, so its
// stores report zero deletions.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"garagedata/internal/vehicledata/metrics"
)

// ExpiredDeleter is implemented by every persistent store.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Target is a named store to sweep.
type Target struct {
	Name  string
	Store ExpiredDeleter
}

// Result contains the results of a cleanup run.
type Result struct {
	Deleted  map[string]int64
	Duration time.Duration
}

// Total is the number of rows deleted across all targets.
func (r *Result) Total() int64 {
	var n int64
	for _, d := range r.Deleted {
		n += d
	}
	return n
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service sweeps expired rows on a fixed interval.
type Service struct {
	targets  []Target
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(targets []Target, opts ...Option) *Service {
	s := &Service{
		targets:  targets,
		logger:   slog.Default(),
		interval: time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs until ctx is cancelled. A failed run is logged and retried on
// the next tick.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "vehicle_data_cleanup_failed",
					"error", err,
					"duration_ms", res.Duration.Milliseconds(),
				)
				continue
			}
			s.logger.InfoContext(ctx, "vehicle_data_cleanup_completed",
				"deleted", res.Total(),
				"duration_ms", res.Duration.Milliseconds(),
			)

		case <-ctx.Done():
			s.logger.Info("vehicle data cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce sweeps every target once. A failing target does not stop the
// others; their errors are joined. The result is never nil.
func (s *Service) RunOnce(ctx context.Context) (*Result, error) {
	start := time.Now()
	now := s.now()
	res := &Result{Deleted: make(map[string]int64, len(s.targets))}

	var errs []error
	for _, t := range s.targets {
		n, err := t.Store.DeleteExpired(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		res.Deleted[t.Name] = n
		s.metrics.RecordCleanup(t.Name, n)
	}
	res.Duration = time.Since(start)
	return res, errors.Join(errs...)
}
