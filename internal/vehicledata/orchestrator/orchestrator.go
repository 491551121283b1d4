// Package orchestrator walks the provider fallback chain for one
// registration, under the shared rate limiter.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"garagedata/internal/vehicledata/metrics"
	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/providers"
	"garagedata/internal/vehicledata/tracer"
	"garagedata/pkg/domain"
)

// Limiter gates every provider call.
type Limiter interface {
	Acquire(ctx context.Context) error
	RecordSuccess()
	RecordFailure() bool
}

// Provider call outcomes used as metric labels.
const (
	outcomeSuccess      = "success"
	outcomeMiss         = "miss"
	outcomeTransient    = "transient"
	outcomePermanent    = "permanent"
	outcomeInconclusive = "inconclusive"
)

// Attempt records one provider call.
type Attempt struct {
	ProviderID string
	Category   providers.ErrorCategory // empty on success
	Err        error
	Duration   time.Duration
}

// Result is the outcome of walking the chain.
type Result struct {
	// Artifact is the first usable artifact, nil when every provider missed.
	Artifact *providers.Artifact
	Attempts []Attempt
	// Inconclusive is set when any provider failed for a reason other than a
	// definitive miss (outage, timeout, rejected credentials, unreadable
	// response), meaning the misses say nothing about the registration.
	Inconclusive bool
}

// Reason summarizes the failed attempts for logs and failure records,
// e.g. "vdg: not_found; haynes: artifact_rejected".
func (r *Result) Reason() string {
	var parts []string
	for _, a := range r.Attempts {
		if a.Category != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", a.ProviderID, a.Category))
		}
	}
	if len(parts) == 0 {
		return "no providers attempted"
	}
	return strings.Join(parts, "; ")
}

// Orchestrator coordinates the fixed-order provider chain.
type Orchestrator struct {
	registry *providers.ProviderRegistry
	limiter  Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator over the providers in registry, in their
// registration order.
func New(registry *providers.ProviderRegistry, limiter Limiter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		limiter:  limiter,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run tries each provider supporting kind until one yields a usable artifact.
//
// A non-nil error ends the chain early and means the attempt was not
// definitive: a *ratelimit.CooldownError from the limiter, or the caller's
// context error. Provider failures are never returned as errors; they are
// recorded in Result.Attempts.
func (o *Orchestrator) Run(ctx context.Context, reg domain.Registration, kind models.Kind) (result *Result, err error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanProviderChain,
		tracer.String(tracer.AttrRegistration, tracer.HashRegistration(reg.String())),
		tracer.String(tracer.AttrKind, string(kind)),
	)
	defer func() { span.End(err) }()

	result = &Result{}
	chain := o.registry.Chain(kind)
	if len(chain) == 0 {
		return result, providers.ErrNoProvidersAvailable
	}

	req := providers.Request{Registration: reg, Kind: kind}
	for i, p := range chain {
		if err := o.limiter.Acquire(ctx); err != nil {
			return result, err
		}

		artifact, attempt := o.call(ctx, p, req, i)
		if ctx.Err() != nil {
			// The caller went away mid-call; the failure is not the provider's.
			return result, ctx.Err()
		}

		if attempt.Err == nil {
			if artifact.Payload.HasTechnical() && req.Hint == nil {
				req.Hint = artifact.Payload.Technical
			}
			if artifact.Payload.UsableFor(kind) {
				o.limiter.RecordSuccess()
				o.metrics.RecordProviderCall(p.ID(), outcomeSuccess, attempt.Duration.Seconds())
				if !artifact.Payload.HasTechnical() && req.Hint != nil {
					artifact.Payload.Technical = req.Hint
				}
				result.Attempts = append(result.Attempts, attempt)
				result.Artifact = artifact
				span.SetAttributes(tracer.String(tracer.AttrSource, string(artifact.Source)))
				return result, nil
			}
			attempt.Category = providers.ErrorNotFound
			attempt.Err = fmt.Errorf("%s answered without %s: %w", p.ID(), kind, providers.ErrNoData)
			o.metrics.RecordProviderCall(p.ID(), outcomeMiss, attempt.Duration.Seconds())
			result.Attempts = append(result.Attempts, attempt)
			continue
		}

		result.Attempts = append(result.Attempts, attempt)
		if attempt.Category.IsConclusive() {
			o.metrics.RecordProviderCall(p.ID(), outcomePermanent, attempt.Duration.Seconds())
			continue
		}

		result.Inconclusive = true
		outcome := outcomeInconclusive
		if providers.IsRetryable(attempt.Err) {
			outcome = outcomeTransient
		}
		o.metrics.RecordProviderCall(p.ID(), outcome, attempt.Duration.Seconds())
		if attempt.Category.IsHealthFault() && o.limiter.RecordFailure() {
			span.AddEvent(tracer.EventCooldownOpen, tracer.String(tracer.AttrProvider, p.ID()))
		}
	}

	return result, nil
}

func (o *Orchestrator) call(ctx context.Context, p providers.Provider, req providers.Request, index int) (*providers.Artifact, Attempt) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanProviderCall,
		tracer.String(tracer.AttrProvider, p.ID()),
		tracer.Int(tracer.AttrAttempt, index+1),
	)

	start := o.now()
	artifact, err := p.Fetch(ctx, req)
	attempt := Attempt{ProviderID: p.ID(), Err: err, Duration: o.now().Sub(start)}

	if err == nil && artifact == nil {
		err = providers.NewProviderError(providers.ErrorInternal, p.ID(), "provider returned no artifact", nil)
		attempt.Err = err
	}
	if err != nil {
		attempt.Category = providers.GetCategory(err)
		span.SetAttributes(tracer.String(tracer.AttrErrorClass, string(attempt.Category)))
		o.logger.InfoContext(ctx, "provider attempt failed",
			"provider", p.ID(),
			"registration", req.Registration.Redacted(),
			"kind", string(req.Kind),
			"category", string(attempt.Category),
			"error", err,
		)
		span.End(err)
		return nil, attempt
	}

	span.End(nil)
	return artifact, attempt
}

// HealthCheck checks the health of all registered providers.
func (o *Orchestrator) HealthCheck(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, p := range o.registry.All() {
		results[p.ID()] = p.Health(ctx)
	}
	return results
}
