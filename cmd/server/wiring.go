package main

import (
	"context"
	"fmt"
	"log/slog"

	"garagedata/internal/platform/config"
	"garagedata/internal/platform/database"
	"garagedata/internal/platform/health"
	redisclient "garagedata/internal/platform/redis"
	"garagedata/internal/vehicledata/blacklist"
	"garagedata/internal/vehicledata/cache"
	"garagedata/internal/vehicledata/metrics"
	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/orchestrator"
	"garagedata/internal/vehicledata/providers"
	"garagedata/internal/vehicledata/providers/haynes"
	"garagedata/internal/vehicledata/providers/scrape"
	"garagedata/internal/vehicledata/providers/synthetic"
	"garagedata/internal/vehicledata/providers/vdg"
	"garagedata/internal/vehicledata/ratelimit"
	"garagedata/internal/vehicledata/service"
	"garagedata/internal/vehicledata/store"
	"garagedata/internal/vehicledata/tracer"
	"garagedata/internal/vehicledata/workers/cleanup"
	"garagedata/migrations"
)

// backend is the persistent tier selected by CACHE_BACKEND.
type backend struct {
	cache          cache.PersistentStore
	blacklist      blacklist.Store
	cleanupTargets []cleanup.Target
	checks         map[string]health.CheckFunc

	db    *database.Pool
	redis *redisclient.Client
}

func (b *backend) Close() {
	if b.db != nil {
		_ = b.db.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func openBackend(ctx context.Context, cfg config.Server, log *slog.Logger) (*backend, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendPostgres:
		pool, err := database.New(ctx, database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, err
		}
		if pool == nil {
			return nil, fmt.Errorf("CACHE_BACKEND=postgres requires DATABASE_URL")
		}
		if err := migrations.Up(ctx, pool.DB()); err != nil {
			_ = pool.Close()
			return nil, err
		}
		cacheStore := store.NewPostgresCache(pool.DB())
		blacklistStore := store.NewPostgresBlacklist(pool.DB())
		log.Info("using postgres persistent tier")
		return &backend{
			cache:     cacheStore,
			blacklist: blacklistStore,
			cleanupTargets: []cleanup.Target{
				{Name: "cache", Store: cacheStore},
				{Name: "blacklist", Store: blacklistStore},
			},
			checks: map[string]health.CheckFunc{"database": pool.Health},
			db:     pool,
		}, nil

	case config.CacheBackendRedis:
		client, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, fmt.Errorf("CACHE_BACKEND=redis requires REDIS_URL")
		}
		log.Info("using redis persistent tier")
		// Redis expires keys itself; no cleanup targets.
		return &backend{
			cache:     store.NewRedisCache(client.Client),
			blacklist: store.NewRedisBlacklist(client.Client),
			checks:    map[string]health.CheckFunc{"redis": client.Health},
			redis:     client,
		}, nil

	case config.CacheBackendMemory:
		cacheStore := store.NewInMemoryCache()
		blacklistStore := store.NewInMemoryBlacklist()
		log.Info("using in-memory persistent tier")
		return &backend{
			cache:     cacheStore,
			blacklist: blacklistStore,
			cleanupTargets: []cleanup.Target{
				{Name: "cache", Store: cacheStore},
				{Name: "blacklist", Store: blacklistStore},
			},
			checks: map[string]health.CheckFunc{},
		}, nil

	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
}

// buildProviders registers the configured providers in fallback order:
// VDG, Haynes, page scrape, then synthetic generation.
func buildProviders(ctx context.Context, cfg config.ProvidersConfig, log *slog.Logger) (*providers.ProviderRegistry, error) {
	registry := providers.NewProviderRegistry()
	var chain []providers.Provider

	if cfg.VDGBaseURL != "" {
		chain = append(chain, vdg.New(cfg.VDGBaseURL, cfg.VDGAPIKey, cfg.Timeout))
	}
	if cfg.HaynesBaseURL != "" {
		chain = append(chain, haynes.New(cfg.HaynesBaseURL, cfg.HaynesAPIKey, cfg.Timeout))
	}
	if cfg.ScrapeURLTemplate != "" {
		chain = append(chain, scrape.New(cfg.ScrapeURLTemplate, cfg.Timeout))
	}
	if cfg.GenAIAPIKey != "" {
		gen, err := synthetic.NewGenAIGenerator(ctx, cfg.GenAIAPIKey, cfg.GenAIModel)
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		chain = append(chain, synthetic.New(gen))
	}

	for _, p := range chain {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	if len(chain) == 0 {
		log.Warn("no vehicle data providers configured")
	} else {
		log.Info("vehicle data providers registered", "providers", registry.IDs())
	}
	return registry, nil
}

func buildResolver(ctx context.Context, cfg config.Server, b *backend, m *metrics.Metrics, log *slog.Logger) (*service.Service, *orchestrator.Orchestrator, error) {
	registry, err := buildProviders(ctx, cfg.Providers, log)
	if err != nil {
		return nil, nil, err
	}
	tr := tracer.NewOTel()

	limiter := ratelimit.New(cfg.Resolver.MaxConsecutiveErrors, cfg.Resolver.CooldownDuration,
		ratelimit.WithMinInterval(cfg.Resolver.MinCallInterval),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
	)
	responseCache := cache.New(b.cache,
		cache.WithTTLPolicy(cache.TTLPolicy{
			Provider:  cfg.Resolver.ProviderCacheTTL,
			Synthetic: cfg.Resolver.SyntheticCacheTTL,
		}),
		cache.WithMemorySize(cfg.Resolver.MemoryCacheSize),
		cache.WithLogger(log),
		cache.WithMetrics(m),
		cache.WithTracer(tr),
	)
	memo := blacklist.New(b.blacklist,
		blacklist.WithTTL(cfg.Resolver.BlacklistTTL),
		blacklist.WithLogger(log),
		blacklist.WithMetrics(m),
	)
	chain := orchestrator.New(registry, limiter,
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(m),
		orchestrator.WithTracer(tr),
	)

	sources := make([]models.Source, 0, len(registry.All()))
	for _, p := range registry.All() {
		sources = append(sources, p.Source())
	}

	svc := service.New(chain, limiter, responseCache, memo,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithTracer(tr),
		service.WithProviderSources(sources...),
	)
	return svc, chain, nil
}
