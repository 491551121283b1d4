// Package service implements the vehicle-data resolver: blacklist check,
// two-tier cache, rate-limited provider fallback, then cache or blacklist
// write.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"garagedata/internal/vehicledata/metrics"
	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/providers"
	"garagedata/internal/vehicledata/ratelimit"
	"garagedata/internal/vehicledata/tracer"
	"garagedata/pkg/domain"
	dErrors "garagedata/pkg/domain-errors"
)

// Caller-facing reasons.
const (
	ReasonNotAvailable = "vehicle data not available"
	ReasonNoProviders  = "no providers configured"
	ReasonRateLimited  = "provider lookups temporarily suspended"
)

const (
	defaultResolveTimeout      = 2 * time.Minute
	defaultTransientRetryAfter = 60 * time.Second
)

// Service resolves vehicle images and technical data.
type Service struct {
	chain   ProviderChain
	limiter RateLimiter
	cache   ResponseCache
	memo    FailureMemo

	group   singleflight.Group
	sources []models.Source

	resolveTimeout      time.Duration
	transientRetryAfter time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithProviderSources lists the configured providers, in order, for Status.
func WithProviderSources(sources ...models.Source) Option {
	return func(s *Service) {
		s.sources = sources
	}
}

// WithResolveTimeout bounds a shared resolution once it no longer has a
// caller waiting on it.
func WithResolveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.resolveTimeout = d
		}
	}
}

// WithTransientRetryAfter sets the retry hint returned when providers failed
// transiently without opening the cooldown.
func WithTransientRetryAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.transientRetryAfter = d
		}
	}
}

// New creates the resolver. All four collaborators are required.
func New(chain ProviderChain, limiter RateLimiter, cache ResponseCache, memo FailureMemo, opts ...Option) *Service {
	s := &Service{
		chain:               chain,
		limiter:             limiter,
		cache:               cache,
		memo:                memo,
		resolveTimeout:      defaultResolveTimeout,
		transientRetryAfter: defaultTransientRetryAfter,
		logger:              slog.Default(),
		tracer:              tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveVehicleImage resolves a photo for a raw registration.
func (s *Service) ResolveVehicleImage(ctx context.Context, registration string) (models.ImageResult, error) {
	reg, err := domain.ParseRegistration(registration)
	if err != nil {
		return models.ImageResult{}, err
	}
	res, err := s.Resolve(ctx, reg, models.KindImage)
	if err != nil {
		return models.ImageResult{}, err
	}
	return res.ToImageResult(), nil
}

// ResolveVehicleData resolves technical data for a raw registration.
func (s *Service) ResolveVehicleData(ctx context.Context, registration string) (models.DataResult, error) {
	reg, err := domain.ParseRegistration(registration)
	if err != nil {
		return models.DataResult{}, err
	}
	res, err := s.Resolve(ctx, reg, models.KindData)
	if err != nil {
		return models.DataResult{}, err
	}
	return res.ToDataResult(), nil
}

// Resolve runs one resolution for key (kind, reg). Concurrent calls for the
// same key share a single pass through the pipeline.
//
// The returned error is reserved for the caller's own context ending; every
// other outcome, including rate limiting, is a Resolution.
func (s *Service) Resolve(ctx context.Context, reg domain.Registration, kind models.Kind) (models.Resolution, error) {
	if !kind.IsValid() {
		return models.Resolution{}, dErrors.New(dErrors.CodeBadRequest, "unknown resolution kind")
	}
	key := models.NewKey(kind, reg)

	// The shared pass outlives any single caller so one cancellation cannot
	// fail everyone else waiting on it.
	ch := s.group.DoChan(key.String(), func() (any, error) {
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.resolveTimeout)
		defer cancel()
		return s.resolve(detached, key)
	})

	select {
	case <-ctx.Done():
		return models.Resolution{}, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "resolution abandoned")
	case r := <-ch:
		if r.Shared {
			s.metrics.IncrementShared()
		}
		if r.Err != nil {
			return models.Resolution{}, r.Err
		}
		res := r.Val.(models.Resolution)
		s.metrics.RecordResolution(string(kind), string(res.Outcome), res.Cached)
		return res, nil
	}
}

func (s *Service) resolve(ctx context.Context, key models.Key) (res models.Resolution, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanResolve,
		tracer.String(tracer.AttrRegistration, tracer.HashRegistration(key.Registration.String())),
		tracer.String(tracer.AttrKind, string(key.Kind)),
	)
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, string(res.Outcome)))
		span.End(err)
	}()

	if _, blacklisted := s.memo.Lookup(ctx, key); blacklisted {
		s.metrics.RecordBlacklistHit()
		span.AddEvent(tracer.EventBlacklistHit)
		return unavailable(ReasonNotAvailable), nil
	}

	if entry, ok := s.cache.Get(ctx, key); ok {
		return models.Resolution{
			Outcome: models.OutcomeSuccess,
			Payload: entry.Payload,
			Source:  entry.Source,
			Cached:  true,
		}, nil
	}

	result, err := s.chain.Run(ctx, key.Registration, key.Kind)

	var cooldown *ratelimit.CooldownError
	switch {
	case errors.As(err, &cooldown):
		return rateLimited(cooldown.RetryAfterSeconds()), nil
	case errors.Is(err, providers.ErrNoProvidersAvailable):
		return unavailable(ReasonNoProviders), nil
	case err != nil:
		return models.Resolution{}, dErrors.Wrap(err, dErrors.CodeTimeout, "provider chain interrupted")
	}

	if artifact := result.Artifact; artifact != nil {
		entry := s.cache.Put(ctx, key, artifact.Payload, artifact.Source)
		span.SetAttributes(tracer.String(tracer.AttrSource, string(entry.Source)))
		return models.Resolution{
			Outcome: models.OutcomeSuccess,
			Payload: entry.Payload,
			Source:  entry.Source,
		}, nil
	}

	if result.Inconclusive {
		// Some provider could not answer, so the misses are not conclusive.
		s.logger.InfoContext(ctx, "provider chain inconclusive, not blacklisting",
			"registration", key.Registration.Redacted(),
			"kind", string(key.Kind),
			"attempts", result.Reason(),
		)
		return rateLimited(s.retryAfterSeconds()), nil
	}

	s.memo.MarkFailed(ctx, key, result.Reason())
	span.AddEvent(tracer.EventBlacklistMark)
	return unavailable(ReasonNotAvailable), nil
}

func (s *Service) retryAfterSeconds() int {
	wait := s.limiter.Remaining()
	if wait <= 0 {
		wait = s.transientRetryAfter
	}
	return max(1, int(math.Ceil(wait.Seconds())))
}

func unavailable(reason string) models.Resolution {
	return models.Resolution{Outcome: models.OutcomeUnavailable, Reason: reason}
}

func rateLimited(retryAfter int) models.Resolution {
	return models.Resolution{
		Outcome:           models.OutcomeRateLimited,
		Reason:            ReasonRateLimited,
		RetryAfterSeconds: retryAfter,
	}
}
