package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type BreakerSuite struct {
	suite.Suite
	clock   *fakeClock
	breaker *Breaker
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	s.breaker = New("vdg",
		WithFailureThreshold(3),
		WithCooldown(10*time.Minute),
		WithClock(s.clock.Now),
	)
}

func (s *BreakerSuite) TestOpensAtThreshold() {
	open, change := s.breaker.RecordFailure()
	s.False(open)
	s.False(change.Opened)

	s.breaker.RecordFailure()
	open, change = s.breaker.RecordFailure()
	s.True(open)
	s.True(change.Opened)
	s.Equal(StateOpen, s.breaker.Snapshot().State)
	s.Equal(10*time.Minute, s.breaker.Remaining())
}

func (s *BreakerSuite) TestFailuresWhileOpenDoNotExtendCooldown() {
	for range 3 {
		s.breaker.RecordFailure()
	}
	s.clock.Advance(4 * time.Minute)

	open, change := s.breaker.RecordFailure()
	s.True(open)
	s.False(change.Opened)
	s.Equal(6*time.Minute, s.breaker.Remaining())
}

func (s *BreakerSuite) TestClosesWhenCooldownElapses() {
	for range 3 {
		s.breaker.RecordFailure()
	}
	s.clock.Advance(10 * time.Minute)

	s.Zero(s.breaker.Remaining())
	snap := s.breaker.Snapshot()
	s.Equal(StateClosed, snap.State)
	s.Zero(snap.FailureCount)
	s.True(snap.OpenUntil.IsZero())
}

func (s *BreakerSuite) TestSuccessResetsConsecutiveCount() {
	s.breaker.RecordFailure()
	s.breaker.RecordFailure()
	s.breaker.RecordSuccess()

	open, _ := s.breaker.RecordFailure()
	s.False(open, "count restarted after success")
	s.Equal(1, s.breaker.Snapshot().FailureCount)
}

func (s *BreakerSuite) TestSuccessDoesNotCloseOpenCircuit() {
	for range 3 {
		s.breaker.RecordFailure()
	}
	s.breaker.RecordSuccess()
	s.Positive(s.breaker.Remaining())
}

func (s *BreakerSuite) TestReset() {
	s.Run("closes an open circuit", func() {
		for range 3 {
			s.breaker.RecordFailure()
		}
		change := s.breaker.Reset()
		s.True(change.Closed)
		s.Zero(s.breaker.Remaining())
		s.Zero(s.breaker.Snapshot().FailureCount)
	})

	s.Run("reports no transition when already closed", func() {
		change := s.breaker.Reset()
		s.False(change.Closed)
	})
}

func (s *BreakerSuite) TestDefaults() {
	b := New("defaults")
	s.Equal("defaults", b.Name())
	for range 4 {
		open, _ := b.RecordFailure()
		s.False(open)
	}
	open, _ := b.RecordFailure()
	s.True(open)
	s.InDelta(float64(15*time.Minute), float64(b.Remaining()), float64(time.Second))
}
