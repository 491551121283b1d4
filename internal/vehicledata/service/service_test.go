package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"garagedata/internal/vehicledata/blacklist"
	"garagedata/internal/vehicledata/cache"
	"garagedata/internal/vehicledata/metrics"
	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/orchestrator"
	"garagedata/internal/vehicledata/providers"
	"garagedata/internal/vehicledata/providers/providertest"
	"garagedata/internal/vehicledata/ratelimit"
	"garagedata/pkg/domain"
	dErrors "garagedata/pkg/domain-errors"
	"garagedata/pkg/testutil"
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
// Resolver Test Suite
// =============================================================================
// Justification: the resolver state machine is the product. These tests wire
// the real limiter, cache, memo and chain walker around scripted providers.

type ResolverSuite struct {
	suite.Suite
	clock     *fakeClock
	vdg       *providertest.Fake
	haynes    *providertest.Fake
	scrape    *providertest.Fake
	synthetic *providertest.Fake
	limiter   *ratelimit.Limiter
	cache     *cache.Cache
	memo      *blacklist.Memo
	svc       *Service
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.clock = &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}

	s.vdg = providertest.New("vdg", models.SourceVDG, models.KindData, models.KindImage)
	s.haynes = providertest.New("haynes", models.SourceHaynes, models.KindImage)
	s.scrape = providertest.New("scrape", models.SourceScrape, models.KindImage)
	s.synthetic = providertest.New("synthetic", models.SourceSynthetic, models.KindImage)

	registry := providers.NewProviderRegistry()
	for _, p := range []providers.Provider{s.vdg, s.haynes, s.scrape, s.synthetic} {
		s.Require().NoError(registry.Register(p))
	}

	s.limiter = ratelimit.New(5, 15*time.Minute,
		ratelimit.WithMinInterval(0),
		ratelimit.WithClock(s.clock.Now),
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(m),
	)
	s.cache = cache.New(nil, cache.WithClock(s.clock.Now), cache.WithLogger(logger), cache.WithMetrics(m))
	s.memo = blacklist.New(nil, blacklist.WithClock(s.clock.Now), blacklist.WithLogger(logger), blacklist.WithMetrics(m))
	chain := orchestrator.New(registry, s.limiter, orchestrator.WithLogger(logger), orchestrator.WithMetrics(m), orchestrator.WithClock(s.clock.Now))

	s.svc = New(chain, s.limiter, s.cache, s.memo,
		WithLogger(logger),
		WithMetrics(m),
		WithProviderSources(models.SourceVDG, models.SourceHaynes, models.SourceScrape, models.SourceSynthetic),
	)
}

func (s *ResolverSuite) providerCalls() int {
	return s.vdg.Calls() + s.haynes.Calls() + s.scrape.Calls() + s.synthetic.Calls()
}

func (s *ResolverSuite) allFail(category providers.ErrorCategory) {
	s.vdg.Fails(category)
	s.haynes.Fails(category)
	s.scrape.Fails(category)
	s.synthetic.Fails(category)
}

func (s *ResolverSuite) image(raw string) models.ImageResult {
	res, err := s.svc.ResolveVehicleImage(context.Background(), raw)
	s.Require().NoError(err)
	return res
}

func (s *ResolverSuite) TestFreshLookupThenCachedHit() {
	s.vdg.Returns(models.Payload{ImageURL: "https://vdg.example/ab12cde.jpg"})

	first := s.image("AB12CDE")
	want := models.ImageResult{Success: true, ImageURL: "https://vdg.example/ab12cde.jpg", Source: models.SourceVDG}
	if diff := cmp.Diff(want, first); diff != "" {
		s.T().Errorf("first resolution mismatch (-want +got):\n%s", diff)
	}

	entry, ok := s.cache.Get(context.Background(), models.NewKey(models.KindImage, "AB12CDE"))
	s.Require().True(ok)
	s.Equal(s.clock.Now().Add(24*time.Hour), entry.ExpiresAt)

	s.clock.Advance(time.Minute)
	second := s.image("AB12CDE")
	s.True(second.Success)
	s.True(second.Cached)
	s.Equal(1, s.providerCalls(), "cached hit makes zero provider calls")
}

func (s *ResolverSuite) TestExhaustedRegistrationIsBlacklisted() {
	s.allFail(providers.ErrorNotFound)

	first := s.image("XY99ZZZ")
	s.False(first.Success)
	s.Equal(ReasonNotAvailable, first.Reason)
	s.Zero(first.RetryAfterSeconds)
	s.True(s.memo.IsBlacklisted(context.Background(), models.NewKey(models.KindImage, "XY99ZZZ")))

	calls := s.providerCalls()
	s.Equal(4, calls, "every provider tried once")

	third := s.image("XY99ZZZ")
	s.False(third.Success)
	s.Equal(calls, s.providerCalls(), "blacklisted key makes zero provider calls")
}

func (s *ResolverSuite) TestBlacklistMatchesNormalizedVariantsUntilCleared() {
	s.allFail(providers.ErrorNotFound)
	s.image("XY99ZZZ")
	calls := s.providerCalls()

	for _, variant := range []string{"xy99zzz", "XY99 ZZZ", " xy99 zzz\t"} {
		s.False(s.image(variant).Success, variant)
	}
	s.Equal(calls, s.providerCalls())

	removed, err := s.svc.ClearBlacklist(context.Background(), "xy99 zzz")
	s.Require().NoError(err)
	s.Equal(int64(1), removed)

	s.scrape.Returns(models.Payload{ImageURL: "https://cars.example/xy99zzz.jpg"})
	res := s.image("XY99ZZZ")
	s.True(res.Success)
	s.Equal(models.SourceScrape, res.Source)
}

func (s *ResolverSuite) TestFixedFallbackOrder() {
	s.vdg.Fails(providers.ErrorNotFound)
	s.haynes.Returns(models.Payload{ImageURL: "https://haynes.example/ab12cde.jpg"})
	s.scrape.Returns(models.Payload{ImageURL: "https://cars.example/ab12cde.jpg"})

	res := s.image("AB12CDE")
	s.True(res.Success)
	s.Equal(models.SourceHaynes, res.Source)
	s.Equal(1, s.vdg.Calls())
	s.Zero(s.scrape.Calls())
}

func (s *ResolverSuite) TestCooldownAfterConsecutiveTransientFailures() {
	s.vdg.Fails(providers.ErrorProviderOutage)

	regs := []string{"AA11AAA", "BB22BBB", "CC33CCC", "DD44DDD", "EE55EEE"}
	for _, reg := range regs {
		res, err := s.svc.ResolveVehicleData(context.Background(), reg)
		s.Require().NoError(err)
		s.False(res.Success)
		s.Positive(res.RetryAfterSeconds)
	}
	s.Equal(5, s.vdg.Calls())

	sixth, err := s.svc.ResolveVehicleData(context.Background(), "FF66FFF")
	s.Require().NoError(err)
	s.False(sixth.Success)
	s.Equal(ReasonRateLimited, sixth.Reason)
	s.Equal(15*60, sixth.RetryAfterSeconds)
	s.Equal(5, s.vdg.Calls(), "no provider call during cooldown")

	// Cooldown applies to image resolutions for other registrations too.
	img := s.image("GG77GGG")
	s.False(img.Success)
	s.Positive(img.RetryAfterSeconds)
	s.Zero(s.haynes.Calls())

	for _, reg := range regs {
		s.False(s.memo.IsBlacklisted(context.Background(), models.NewKey(models.KindData, domain.Registration(reg))),
			"transient failures never blacklist")
	}
}

func (s *ResolverSuite) TestCooldownExpires() {
	s.vdg.Fails(providers.ErrorTimeout)
	for range 5 {
		_, err := s.svc.ResolveVehicleData(context.Background(), "AB12CDE")
		s.Require().NoError(err)
	}
	s.clock.Advance(15*time.Minute + time.Second)

	s.vdg.Returns(models.Payload{Technical: &models.TechnicalData{Make: "FORD"}})
	res, err := s.svc.ResolveVehicleData(context.Background(), "AB12CDE")
	s.Require().NoError(err)
	s.True(res.Success)
	s.Equal("FORD", res.Technical.Make)

	status, err := s.svc.Status(context.Background())
	s.Require().NoError(err)
	s.Equal(1, status.CachedEntries)
}

func (s *ResolverSuite) TestInconclusiveChainIsRateLimitedNotBlacklisted() {
	s.vdg.Fails(providers.ErrorNotFound)
	s.haynes.Fails(providers.ErrorRateLimited)
	s.scrape.Fails(providers.ErrorNotFound)
	s.synthetic.Fails(providers.ErrorNotFound)

	res := s.image("AB12CDE")
	s.False(res.Success)
	s.Equal(ReasonRateLimited, res.Reason)
	s.Equal(60, res.RetryAfterSeconds)
	s.False(s.memo.IsBlacklisted(context.Background(), models.NewKey(models.KindImage, "AB12CDE")))

	s.haynes.Returns(models.Payload{ImageURL: "https://haynes.example/ab12cde.jpg"})
	s.True(s.image("AB12CDE").Success)
}

func (s *ResolverSuite) TestProviderFaultsNeverBlacklist() {
	for _, category := range []providers.ErrorCategory{
		providers.ErrorAuthentication,
		providers.ErrorBadData,
		providers.ErrorContractMismatch,
		providers.ErrorInternal,
	} {
		s.Run(string(category), func() {
			s.SetupTest()
			s.allFail(category)

			res := s.image("AB12CDE")
			s.False(res.Success)
			s.Equal(ReasonRateLimited, res.Reason)
			s.Positive(res.RetryAfterSeconds)
			s.False(s.memo.IsBlacklisted(context.Background(), models.NewKey(models.KindImage, "AB12CDE")))

			s.vdg.Returns(models.Payload{ImageURL: "https://vdg.example/ab12cde.jpg"})
			calls := s.providerCalls()
			fixed := s.image("AB12CDE")
			s.True(fixed.Success)
			s.Equal(models.SourceVDG, fixed.Source)
			s.Equal(calls+1, s.providerCalls())
		})
	}
}

func (s *ResolverSuite) TestRejectedCredentialsOpenTheCooldown() {
	s.vdg.Fails(providers.ErrorAuthentication)

	for _, reg := range []string{"AA11AAA", "BB22BBB", "CC33CCC", "DD44DDD", "EE55EEE"} {
		res, err := s.svc.ResolveVehicleData(context.Background(), reg)
		s.Require().NoError(err)
		s.False(res.Success)
	}

	res, err := s.svc.ResolveVehicleData(context.Background(), "FF66FFF")
	s.Require().NoError(err)
	s.Equal(15*60, res.RetryAfterSeconds)
	s.Equal(5, s.vdg.Calls(), "no provider call during cooldown")
}

func (s *ResolverSuite) TestSyntheticImagesAreCachedLonger() {
	tech := &models.TechnicalData{Make: "FORD", Model: "FIESTA", Colour: "BLUE"}
	s.vdg.Returns(models.Payload{Technical: tech})
	s.synthetic.Handle(func(_ context.Context, req providers.Request) (models.Payload, error) {
		s.Equal(tech, req.Hint)
		return models.Payload{ImageURL: "data:image/jpeg;base64,AAAA"}, nil
	})
	// Haynes only has a photo for GF19XYZ, so AB12CDE falls through to synthetic.
	s.haynes.Handle(func(_ context.Context, req providers.Request) (models.Payload, error) {
		if req.Registration == "GF19XYZ" {
			return models.Payload{ImageURL: "https://haynes.example/gf19xyz.jpg"}, nil
		}
		return models.Payload{}, providers.NewProviderError(providers.ErrorNotFound, "haynes", "none", nil)
	})

	synthetic := s.image("AB12CDE")
	s.Equal(models.SourceSynthetic, synthetic.Source)
	photo := s.image("GF19XYZ")
	s.Equal(models.SourceHaynes, photo.Source)

	synthEntry, ok := s.cache.Get(context.Background(), models.NewKey(models.KindImage, "AB12CDE"))
	s.Require().True(ok)
	realEntry, ok := s.cache.Get(context.Background(), models.NewKey(models.KindImage, "GF19XYZ"))
	s.Require().True(ok)

	synthTTL := synthEntry.ExpiresAt.Sub(synthEntry.CreatedAt)
	realTTL := realEntry.ExpiresAt.Sub(realEntry.CreatedAt)
	s.GreaterOrEqual(synthTTL, 10*realTTL)
	s.Equal(tech, synthEntry.Payload.Technical, "generated image keeps the technical data it was described from")
}

func (s *ResolverSuite) TestRegistrationNormalization() {
	s.vdg.Returns(models.Payload{ImageURL: "https://vdg.example/ab12cde.jpg"})

	results := []models.ImageResult{s.image("AB12 CDE"), s.image("ab12cde"), s.image("AB12CDE")}
	s.False(results[0].Cached)
	s.True(results[1].Cached)
	s.True(results[2].Cached)
	s.Equal(1, s.vdg.Calls())
	for _, req := range s.vdg.Requests() {
		s.Equal(domain.Registration("AB12CDE"), req.Registration)
	}
}

func (s *ResolverSuite) TestImageAndDataAreResolvedIndependently() {
	s.vdg.Returns(models.Payload{Technical: &models.TechnicalData{Make: "FORD"}})
	s.haynes.Fails(providers.ErrorNotFound)
	s.scrape.Fails(providers.ErrorNotFound)
	s.synthetic.Fails(providers.ErrorNotFound)

	s.False(s.image("AB12CDE").Success)

	data, err := s.svc.ResolveVehicleData(context.Background(), "AB12CDE")
	s.Require().NoError(err)
	s.True(data.Success, "an image blacklist entry does not hide technical data")
	s.Equal("FORD", data.Technical.Make)
}

func (s *ResolverSuite) TestInvalidRegistration() {
	_, err := s.svc.ResolveVehicleImage(context.Background(), "  ")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.svc.ResolveVehicleData(context.Background(), "AB-12")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Zero(s.providerCalls())
}

func (s *ResolverSuite) TestConcurrentResolutionsShareOneProviderCall() {
	gate := make(chan struct{})
	s.vdg.Returns(models.Payload{ImageURL: "https://vdg.example/ab12cde.jpg"}).Gate(gate)

	done := make(chan *testutil.ConcurrentResult)
	go func() {
		done <- testutil.RunConcurrent(8, func(int) error {
			res, err := s.svc.ResolveVehicleImage(context.Background(), testutil.TestRegistrations.Fiesta.String())
			if err != nil {
				return err
			}
			if !res.Success {
				return dErrors.New(dErrors.CodeUnavailable, res.Reason)
			}
			return nil
		})
	}()

	s.Eventually(func() bool { return s.vdg.Calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)

	result := <-done
	s.Equal(int32(8), result.Successes)
	s.Equal(1, s.vdg.Calls())
}

func (s *ResolverSuite) TestCallerCancellationDoesNotFailSharedResolution() {
	gate := make(chan struct{})
	s.vdg.Returns(models.Payload{ImageURL: "https://vdg.example/ab12cde.jpg"}).Gate(gate)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.svc.ResolveVehicleImage(ctx, "AB12CDE")
		errCh <- err
	}()

	s.Eventually(func() bool { return s.vdg.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()
	err := <-errCh
	s.Require().Error(err)
	s.ErrorIs(err, context.Canceled)

	close(gate)
	res := s.image("AB12CDE")
	s.True(res.Success)
	s.Equal(1, s.vdg.Calls(), "the abandoned pass still completed and was reused")
}

func (s *ResolverSuite) TestStatusAndResetCooldown() {
	s.vdg.Fails(providers.ErrorProviderOutage)
	for range 5 {
		_, err := s.svc.ResolveVehicleData(context.Background(), "AB12CDE")
		s.Require().NoError(err)
	}

	status, err := s.svc.Status(context.Background())
	s.Require().NoError(err)
	s.True(status.InCooldown)
	s.Equal(5, status.ConsecutiveErrors)
	s.Equal(15*60, status.CooldownRemainingSec)
	s.Require().NotNil(status.CooldownUntil)
	s.Equal(s.clock.Now().Add(15*time.Minute), *status.CooldownUntil)
	s.Len(status.Providers, 4)
	s.Zero(status.CachedEntries)

	after := s.svc.ResetCooldown(context.Background())
	s.False(after.InCooldown)
	s.Zero(after.ConsecutiveErrors)

	s.vdg.Returns(models.Payload{Technical: &models.TechnicalData{Make: "FORD"}})
	res, err := s.svc.ResolveVehicleData(context.Background(), "AB12CDE")
	s.Require().NoError(err)
	s.True(res.Success)
}

func (s *ResolverSuite) TestListAndClearAllBlacklist() {
	s.allFail(providers.ErrorNotFound)
	s.image("XY99ZZZ")
	s.clock.Advance(time.Second)
	s.image("ZZ00ZZZ")

	records, err := s.svc.ListBlacklist(context.Background())
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(domain.Registration("XY99ZZZ"), records[0].Key.Registration)
	s.Contains(records[0].Reason, "vdg: not_found")

	status, err := s.svc.Status(context.Background())
	s.Require().NoError(err)
	s.Equal(2, status.BlacklistSize)

	removed, err := s.svc.ClearBlacklist(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(int64(2), removed)

	records, err = s.svc.ListBlacklist(context.Background())
	s.Require().NoError(err)
	s.Empty(records)
}

func TestNoProvidersIsUnavailableWithoutBlacklisting(t *testing.T) {
	limiter := ratelimit.New(5, time.Minute, ratelimit.WithMinInterval(0))
	memo := blacklist.New(nil)
	svc := New(orchestrator.New(providers.NewProviderRegistry(), limiter), limiter, cache.New(nil), memo)

	res, err := svc.ResolveVehicleImage(context.Background(), "AB12CDE")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Reason != ReasonNoProviders {
		t.Fatalf("unexpected result %+v", res)
	}
	if memo.IsBlacklisted(context.Background(), models.NewKey(models.KindImage, "AB12CDE")) {
		t.Fatal("missing configuration must not blacklist")
	}
}
