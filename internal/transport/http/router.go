package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"garagedata/internal/platform/health"
	"garagedata/internal/vehicledata/handler"
	"garagedata/pkg/platform/middleware/admin"
	"garagedata/pkg/platform/middleware/request"
)

// adminBodyLimit caps operator request bodies.
const adminBodyLimit = 64 << 10

// RouterConfig carries the mounted handlers and transport policy.
type RouterConfig struct {
	Vehicles *handler.Handler
	Health   *health.Handler
	Metrics  *request.Metrics

	// AdminSigningKey enables the admin routes when non-empty.
	AdminSigningKey []byte
	// RequestTimeout bounds every request. Provider chains can take several
	// seconds per provider, so keep it above the per-provider timeout.
	RequestTimeout time.Duration
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.ClientMetadata)
	r.Use(request.Logger(logger))
	if cfg.Metrics != nil {
		r.Use(request.LatencyMiddleware(cfg.Metrics))
	}

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(requestTimeout(cfg.RequestTimeout)))
		r.Use(request.ContentTypeJSON)
		cfg.Vehicles.Register(r)

		if len(cfg.AdminSigningKey) == 0 {
			logger.Warn("ADMIN_JWT_KEY not set, admin routes disabled")
			return
		}
		r.Group(func(r chi.Router) {
			r.Use(request.BodyLimit(adminBodyLimit))
			r.Use(admin.RequireAdminToken(cfg.AdminSigningKey, logger))
			cfg.Vehicles.RegisterAdmin(r)
		})
	})

	return r
}

func requestTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}
