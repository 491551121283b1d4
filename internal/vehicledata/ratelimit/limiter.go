// Package ratelimit guards the external vehicle-data providers with a
// process-wide minimum call spacing and a shared failure cooldown.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"garagedata/internal/vehicledata/metrics"
	"garagedata/pkg/platform/circuit"
)

// ErrCooldownActive matches any *CooldownError via errors.Is.
var ErrCooldownActive = errors.New("provider cooldown active")

// CooldownError is returned by Acquire while provider calls are suspended.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("provider cooldown active for %s", e.Remaining.Round(time.Second))
}

// Is lets errors.Is(err, ErrCooldownActive) match.
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

// RetryAfterSeconds rounds the remaining cooldown up to whole seconds, minimum 1.
func (e *CooldownError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.Remaining.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Snapshot is the limiter state exposed to operators.
type Snapshot struct {
	ConsecutiveErrors int
	CooldownUntil     time.Time // zero when not in cooldown
	LastCallAt        time.Time // zero before the first permitted call
}

// InCooldown reports whether the snapshot was taken during a cooldown.
func (s Snapshot) InCooldown() bool {
	return !s.CooldownUntil.IsZero()
}

// Limiter is the shared rate-limit state for every provider call.
// Construct one per process and hand it to the resolver.
type Limiter struct {
	mu          sync.Mutex
	lastCallAt  time.Time
	minInterval time.Duration

	breaker *circuit.Breaker
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMinInterval sets the minimum spacing between permitted calls.
func WithMinInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d >= 0 {
			l.minInterval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New creates a limiter that opens a cooldown of the given duration after
// maxConsecutiveErrors transient failures.
func New(maxConsecutiveErrors int, cooldown time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		minInterval: time.Second,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.breaker = circuit.New("vehicledata-providers",
		circuit.WithFailureThreshold(maxConsecutiveErrors),
		circuit.WithCooldown(cooldown),
		circuit.WithClock(l.now),
	)
	return l
}

// Acquire blocks until the minimum interval since the last permitted call
// has elapsed. It fails immediately with *CooldownError during a cooldown,
// and with ctx.Err() if ctx ends while waiting.
//
// Waiters reserve consecutive slots, so concurrent callers across all
// registrations are released one interval apart in arrival order.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if remaining := l.breaker.Remaining(); remaining > 0 {
		l.mu.Unlock()
		return &CooldownError{Remaining: remaining}
	}
	l.metrics.SetInCooldown(false)
	now := l.now()
	slot := now
	if next := l.lastCallAt.Add(l.minInterval); !l.lastCallAt.IsZero() && next.After(now) {
		slot = next
	}
	prev := l.lastCallAt
	l.lastCallAt = slot
	l.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			l.release(slot, prev)
			return ctx.Err()
		case <-timer.C:
		}
	}

	// A cooldown may have opened while this caller was queued.
	if remaining := l.breaker.Remaining(); remaining > 0 {
		return &CooldownError{Remaining: remaining}
	}
	return nil
}

// release hands back an unused slot if no later caller has queued behind it.
func (l *Limiter) release(slot, prev time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastCallAt.Equal(slot) {
		l.lastCallAt = prev
	}
}

// RecordSuccess resets the consecutive error count.
func (l *Limiter) RecordSuccess() {
	l.breaker.RecordSuccess()
}

// RecordFailure counts a transient provider failure. It returns true on the
// failure that opens the cooldown.
func (l *Limiter) RecordFailure() bool {
	_, change := l.breaker.RecordFailure()
	if !change.Opened {
		return false
	}
	snap := l.breaker.Snapshot()
	l.logger.Warn("provider cooldown opened",
		"breaker", l.breaker.Name(),
		"consecutive_errors", snap.FailureCount,
		"cooldown_until", snap.OpenUntil,
	)
	l.metrics.RecordCooldownOpened()
	return true
}

// Reset clears any cooldown and the error count.
func (l *Limiter) Reset() {
	change := l.breaker.Reset()
	if change.Closed {
		l.logger.Info("provider cooldown reset by operator", "breaker", l.breaker.Name())
	}
	l.metrics.RecordCooldownReset()
}

// Remaining returns the time left in the current cooldown, or zero.
func (l *Limiter) Remaining() time.Duration {
	return l.breaker.Remaining()
}

// Status returns a snapshot of the limiter state.
func (l *Limiter) Status() Snapshot {
	snap := l.breaker.Snapshot()
	l.mu.Lock()
	lastCallAt := l.lastCallAt
	l.mu.Unlock()
	return Snapshot{
		ConsecutiveErrors: snap.FailureCount,
		CooldownUntil:     snap.OpenUntil,
		LastCallAt:        lastCallAt,
	}
}
