// Package circuit provides a consecutive-failure circuit breaker with a
// time-bounded open state.
package circuit

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is healthy and requests flow normally.
	StateClosed State = iota
	// StateOpen means the circuit has tripped and requests must be rejected
	// until the cooldown deadline passes.
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// StateChange represents a circuit breaker state transition.
type StateChange struct {
	Opened bool
	Closed bool
}

// Snapshot is a point-in-time view of the breaker, for status endpoints.
type Snapshot struct {
	State        State
	FailureCount int
	OpenUntil    time.Time
}

// Breaker tracks consecutive failures. After FailureThreshold consecutive
// failures the circuit opens for the configured cooldown; once the deadline
// passes it closes on its own with the failure count cleared. A success
// resets the count but never shortens an active cooldown.
type Breaker struct {
	mu               sync.Mutex
	state            State
	name             string
	failureCount     int
	failureThreshold int
	cooldown         time.Duration
	openUntil        time.Time
	now              func() time.Time
}

// Option configures a Breaker instance.
type Option func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures to open the circuit.
// Default is 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open once tripped.
// Default is 15 minutes.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock overrides the time source. Tests use it to step past deadlines.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a circuit breaker with the given name and options.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		cooldown:         15 * time.Minute,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name returns the circuit breaker's name for logging/metrics.
func (b *Breaker) Name() string {
	return b.name
}

// Remaining returns how long the circuit stays open, or zero when closed.
func (b *Breaker) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	if b.state != StateOpen {
		return 0
	}
	return b.openUntil.Sub(b.now())
}

// Snapshot returns the current state, failure count and open deadline.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	snap := Snapshot{State: b.state, FailureCount: b.failureCount}
	if b.state == StateOpen {
		snap.OpenUntil = b.openUntil
	}
	return snap
}

// RecordFailure records a failed operation.
// Returns (open, stateChange):
//   - open: true if the circuit is open after this failure
//   - stateChange: Opened is set only on the failure that trips the circuit
func (b *Breaker) RecordFailure() (open bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()

	b.failureCount++

	if b.state == StateOpen {
		return true, StateChange{}
	}

	if b.failureCount >= b.failureThreshold {
		b.state = StateOpen
		b.openUntil = b.now().Add(b.cooldown)
		return true, StateChange{Opened: true}
	}

	return false, StateChange{}
}

// RecordSuccess clears the consecutive failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	b.failureCount = 0
}

// Reset closes the circuit and clears the failure count.
// Returns a StateChange with Closed set if the circuit was open.
func (b *Breaker) Reset() StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	wasOpen := b.state == StateOpen
	b.state = StateClosed
	b.failureCount = 0
	b.openUntil = time.Time{}
	return StateChange{Closed: wasOpen}
}

// expireLocked closes an open circuit whose deadline has passed.
func (b *Breaker) expireLocked() {
	if b.state == StateOpen && !b.now().Before(b.openUntil) {
		b.state = StateClosed
		b.failureCount = 0
		b.openUntil = time.Time{}
	}
}
