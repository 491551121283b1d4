package cache

//go:generate mockgen -source=cache.go -destination=mocks/mocks.go -package=mocks PersistentStore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"garagedata/internal/vehicledata/cache/mocks"
	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/store"
	"garagedata/pkg/domain"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
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

// =============================================================================
// Two-tier Cache Test Suite
// =============================================================================
// Justification: tier ordering, back-fill and error swallowing are invisible
// through the resolver, so they are pinned here against a mocked persistent tier.

type CacheSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	persistent *mocks.MockPersistentStore
	clock      *fakeClock
	cache      *Cache
	key        models.Key
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.persistent = mocks.NewMockPersistentStore(s.ctrl)
	s.clock = &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	s.cache = New(s.persistent,
		WithClock(s.clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.key = models.NewKey(models.KindImage, domain.Registration("AB12CDE"))
}

func (s *CacheSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CacheSuite) TestPutWritesBothTiers() {
	payload := models.Payload{ImageURL: "https://img.example/ab12cde.jpg"}
	s.persistent.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry models.CacheEntry) error {
			s.Equal(s.key, entry.Key)
			s.Equal(s.clock.Now().Add(24*time.Hour), entry.ExpiresAt)
			return nil
		})

	entry := s.cache.Put(context.Background(), s.key, payload, models.SourceVDG)
	s.Equal(models.SourceVDG, entry.Source)

	// Served from memory: no Find expected.
	got, ok := s.cache.Get(context.Background(), s.key)
	s.Require().True(ok)
	s.Equal(payload, got.Payload)
}

func (s *CacheSuite) TestSyntheticTTLIsLonger() {
	s.persistent.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	provider := s.cache.Put(context.Background(), s.key, models.Payload{ImageURL: "a"}, models.SourceHaynes)
	synthetic := s.cache.Put(context.Background(), models.NewKey(models.KindImage, "GF19XYZ"), models.Payload{ImageURL: "b"}, models.SourceSynthetic)

	providerTTL := provider.ExpiresAt.Sub(provider.CreatedAt)
	syntheticTTL := synthetic.ExpiresAt.Sub(synthetic.CreatedAt)
	s.Equal(24*time.Hour, providerTTL)
	s.Equal(30*24*time.Hour, syntheticTTL)
	s.GreaterOrEqual(syntheticTTL, 10*providerTTL)
}

func (s *CacheSuite) TestPersistentHitBackfillsMemory() {
	stored := &models.CacheEntry{
		Key:       s.key,
		Payload:   models.Payload{ImageURL: "https://img.example/stored.jpg"},
		Source:    models.SourceScrape,
		CreatedAt: s.clock.Now().Add(-time.Hour),
		ExpiresAt: s.clock.Now().Add(time.Hour),
	}
	s.persistent.EXPECT().Find(gomock.Any(), s.key, s.clock.Now()).Return(stored, nil).Times(1)

	first, ok := s.cache.Get(context.Background(), s.key)
	s.Require().True(ok)
	second, ok := s.cache.Get(context.Background(), s.key)
	s.Require().True(ok)

	s.Equal(*stored, *first)
	s.Equal(*stored, *second)
	s.Equal(1, s.cache.MemoryLen())
}

func (s *CacheSuite) TestExpiredEntriesAreNeverServed() {
	s.persistent.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	s.cache.Put(context.Background(), s.key, models.Payload{ImageURL: "a"}, models.SourceVDG)

	s.clock.Advance(24*time.Hour + time.Second)
	s.persistent.EXPECT().Find(gomock.Any(), s.key, gomock.Any()).Return(nil, store.ErrNotFound)

	_, ok := s.cache.Get(context.Background(), s.key)
	s.False(ok)
	s.Zero(s.cache.MemoryLen(), "expired memory entry is dropped")
}

func (s *CacheSuite) TestStaleEntryFromPersistentTierIsIgnored() {
	s.persistent.EXPECT().Find(gomock.Any(), s.key, gomock.Any()).Return(&models.CacheEntry{
		Key:       s.key,
		ExpiresAt: s.clock.Now().Add(-time.Minute),
	}, nil)

	_, ok := s.cache.Get(context.Background(), s.key)
	s.False(ok)
}

func (s *CacheSuite) TestPersistentErrorsAreSwallowed() {
	s.Run("read error is a miss", func() {
		s.persistent.EXPECT().Find(gomock.Any(), s.key, gomock.Any()).Return(nil, errors.New("connection reset"))
		_, ok := s.cache.Get(context.Background(), s.key)
		s.False(ok)
	})

	s.Run("write error keeps the memory entry", func() {
		s.persistent.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		s.cache.Put(context.Background(), s.key, models.Payload{ImageURL: "a"}, models.SourceVDG)

		got, ok := s.cache.Get(context.Background(), s.key)
		s.Require().True(ok)
		s.Equal("a", got.Payload.ImageURL)
	})
}

func (s *CacheSuite) TestWithTTLPolicy() {
	c := New(nil, WithTTLPolicy(TTLPolicy{Provider: time.Hour}))
	s.Equal(time.Hour, c.TTLPolicy().Provider)
	s.Equal(30*24*time.Hour, c.TTLPolicy().Synthetic, "unset values keep the default")
}

func (s *CacheSuite) TestMemoryOnly() {
	c := New(nil, WithClock(s.clock.Now))
	_, ok := c.Get(context.Background(), s.key)
	s.False(ok)

	c.Put(context.Background(), s.key, models.Payload{ImageURL: "a"}, models.SourceVDG)
	_, ok = c.Get(context.Background(), s.key)
	s.True(ok)
}
