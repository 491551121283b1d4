package cleanup

// Justification: expiry sweeps depend on wall-clock cutoffs that the resolver
// suite never reaches. These tests pin the cutoff passed to each store and
// that one failing store does not stop the others.

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"garagedata/internal/vehicledata/metrics"
	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/store"
)

type stubDeleter struct {
	calls      int
	lastCutoff time.Time
	deleted    int64
	err        error
}

func (d *stubDeleter) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	d.calls++
	d.lastCutoff = now
	return d.deleted, d.err
}

type CleanupSuite struct {
	suite.Suite
	now       time.Time
	cache     *stubDeleter
	blacklist *stubDeleter
	metrics   *metrics.Metrics
	service   *Service
}

func TestCleanupSuite(t *testing.T) {
	suite.Run(t, new(CleanupSuite))
}

func (s *CleanupSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	s.cache = &stubDeleter{deleted: 4}
	s.blacklist = &stubDeleter{deleted: 1}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(
		[]Target{{Name: "cache", Store: s.cache}, {Name: "blacklist", Store: s.blacklist}},
		WithClock(func() time.Time { return s.now }),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *CleanupSuite) TestRunOnceSweepsEveryTarget() {
	res, err := s.service.RunOnce(context.Background())
	s.Require().NoError(err)

	s.Equal(1, s.cache.calls)
	s.Equal(1, s.blacklist.calls)
	s.Equal(s.now, s.cache.lastCutoff)
	s.Equal(s.now, s.blacklist.lastCutoff)
	s.Equal(map[string]int64{"cache": 4, "blacklist": 1}, res.Deleted)
	s.Equal(int64(5), res.Total())
	s.InDelta(4, testutil.ToFloat64(s.metrics.CleanupDeletedTotal.WithLabelValues("cache")), 0)
}

func (s *CleanupSuite) TestFailingTargetDoesNotStopOthers() {
	s.cache.err = errors.New("relation does not exist")

	res, err := s.service.RunOnce(context.Background())
	s.Require().Error(err)
	s.Contains(err.Error(), "cache")
	s.Equal(1, s.blacklist.calls)
	s.Equal(map[string]int64{"blacklist": 1}, res.Deleted)
}

func (s *CleanupSuite) TestSweepsRealMemoryStores() {
	cache := store.NewInMemoryCache()
	ctx := context.Background()
	s.Require().NoError(cache.Save(ctx, models.CacheEntry{
		Key:       models.NewKey(models.KindImage, "AB12CDE"),
		Source:    models.SourceVDG,
		CreatedAt: s.now.Add(-48 * time.Hour),
		ExpiresAt: s.now.Add(-24 * time.Hour),
	}))
	s.Require().NoError(cache.Save(ctx, models.CacheEntry{
		Key:       models.NewKey(models.KindImage, "GF19XYZ"),
		Source:    models.SourceVDG,
		CreatedAt: s.now,
		ExpiresAt: s.now.Add(24 * time.Hour),
	}))

	svc := New([]Target{{Name: "cache", Store: cache}}, WithClock(func() time.Time { return s.now }))
	res, err := svc.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), res.Deleted["cache"])
}

func (s *CleanupSuite) TestStartStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	svc := New(nil, WithInterval(time.Millisecond), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("worker did not stop")
	}
}
