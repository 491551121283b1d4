package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"garagedata/internal/platform/config"
	"garagedata/internal/platform/health"
	"garagedata/internal/platform/logger"
	httptransport "garagedata/internal/transport/http"
	"garagedata/internal/vehicledata/handler"
	"garagedata/internal/vehicledata/metrics"
	"garagedata/internal/vehicledata/workers/cleanup"
	"garagedata/pkg/platform/middleware/request"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/vehicledata.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing garagedata",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"cache_backend", cfg.CacheBackend,
	)

	m := metrics.New()
	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open persistent backend: %w", err)
	}
	defer backend.Close()

	resolver, chain, err := buildResolver(ctx, cfg, backend, m, log)
	if err != nil {
		return fmt.Errorf("build resolver: %w", err)
	}
	for id, herr := range chain.HealthCheck(ctx) {
		if herr != nil {
			log.Warn("provider health check failed", "provider", id, "error", herr)
		}
	}

	healthHandler := health.New(cfg.Environment)
	for name, check := range backend.checks {
		healthHandler.RegisterCheck(name, check)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Vehicles:        handler.New(resolver, resolver, log),
		Health:          healthHandler,
		Metrics:         request.NewMetrics(),
		AdminSigningKey: []byte(cfg.AdminJWTKey),
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := cleanup.New(backend.cleanupTargets,
		cleanup.WithInterval(cfg.Resolver.CleanupInterval),
		cleanup.WithLogger(log),
		cleanup.WithMetrics(m),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if backend.redis != nil {
		g.Go(func() error {
			recordRedisPoolStats(gctx, backend)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func recordRedisPoolStats(ctx context.Context, b *backend) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.redis.RecordPoolStats()
		case <-ctx.Done():
			return
		}
	}
}
