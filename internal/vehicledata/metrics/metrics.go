// Package metrics provides Prometheus metrics for vehicle-data resolution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all vehicle-data resolver metrics.
type Metrics struct {
	// Cache operation metrics, labelled by tier (memory, persistent) and kind (image, data)
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheWriteErrors *prometheus.CounterVec

	// Provider call metrics
	ProviderCallsTotal      *prometheus.CounterVec   // by provider, outcome (success, miss, transient, permanent, inconclusive)
	ProviderDurationSeconds *prometheus.HistogramVec // by provider

	// Resolution outcomes by kind and outcome (success, unavailable, rate_limited)
	ResolutionsTotal *prometheus.CounterVec
	SharedResolves   prometheus.Counter // callers that joined an in-flight resolution

	// Rate limiting and blacklist state
	CooldownTripsTotal  prometheus.Counter
	CooldownResetsTotal prometheus.Counter
	InCooldown          prometheus.Gauge
	BlacklistMarksTotal prometheus.Counter
	BlacklistHitsTotal  prometheus.Counter
	CleanupDeletedTotal *prometheus.CounterVec // by store (cache, blacklist)
}

// New creates a new Metrics instance with all metrics registered against the
// default Prometheus registry. Call it once per process.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics against reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_cache_hits_total",
			Help: "Vehicle-data cache hits by tier and kind",
		}, []string{"tier", "kind"}),

		CacheMissesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_cache_misses_total",
			Help: "Vehicle-data cache misses by tier and kind",
		}, []string{"tier", "kind"}),

		CacheWriteErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_cache_errors_total",
			Help: "Persistent cache I/O errors treated as miss or no-op, by operation",
		}, []string{"op"}),

		ProviderCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_provider_calls_total",
			Help: "External provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),

		ProviderDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "garagedata_vehicledata_provider_duration_seconds",
			Help:    "External provider call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"provider"}),

		ResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_resolutions_total",
			Help: "Resolutions by kind, outcome and whether served from cache",
		}, []string{"kind", "outcome", "cached"}),

		SharedResolves: f.NewCounter(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_shared_resolves_total",
			Help: "Resolutions answered by joining an identical in-flight resolution",
		}),

		CooldownTripsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_cooldown_trips_total",
			Help: "Times the shared provider cooldown opened",
		}),

		CooldownResetsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_cooldown_resets_total",
			Help: "Administrative cooldown resets",
		}),

		InCooldown: f.NewGauge(prometheus.GaugeOpts{
			Name: "garagedata_vehicledata_in_cooldown",
			Help: "1 while provider calls are suspended by the cooldown",
		}),

		BlacklistMarksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_blacklist_marks_total",
			Help: "Registrations blacklisted after every provider was exhausted",
		}),

		BlacklistHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_blacklist_hits_total",
			Help: "Resolutions short-circuited by the blacklist",
		}),

		CleanupDeletedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "garagedata_vehicledata_cleanup_deleted_total",
			Help: "Expired rows removed by the cleanup worker, by store",
		}, []string{"store"}),
	}
}

// RecordCacheHit records a hit in the given tier.
func (m *Metrics) RecordCacheHit(tier, kind string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(tier, kind).Inc()
}

// RecordCacheMiss records a miss in the given tier.
func (m *Metrics) RecordCacheMiss(tier, kind string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(tier, kind).Inc()
}

// RecordCacheError records a swallowed persistent-tier error.
func (m *Metrics) RecordCacheError(op string) {
	if m == nil {
		return
	}
	m.CacheWriteErrors.WithLabelValues(op).Inc()
}

// RecordProviderCall records the outcome and latency of one provider call.
func (m *Metrics) RecordProviderCall(provider, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ProviderCallsTotal.WithLabelValues(provider, outcome).Inc()
	m.ProviderDurationSeconds.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordResolution records a terminal resolver outcome.
func (m *Metrics) RecordResolution(kind, outcome string, cached bool) {
	if m == nil {
		return
	}
	c := "false"
	if cached {
		c = "true"
	}
	m.ResolutionsTotal.WithLabelValues(kind, outcome, c).Inc()
}

// IncrementShared records a caller that joined an in-flight resolution.
func (m *Metrics) IncrementShared() {
	if m == nil {
		return
	}
	m.SharedResolves.Inc()
}

// RecordCooldownOpened records a cooldown trip.
func (m *Metrics) RecordCooldownOpened() {
	if m == nil {
		return
	}
	m.CooldownTripsTotal.Inc()
	m.InCooldown.Set(1)
}

// SetInCooldown updates the cooldown gauge.
func (m *Metrics) SetInCooldown(active bool) {
	if m == nil {
		return
	}
	if active {
		m.InCooldown.Set(1)
		return
	}
	m.InCooldown.Set(0)
}

// RecordCooldownReset records an administrative cooldown reset.
func (m *Metrics) RecordCooldownReset() {
	if m == nil {
		return
	}
	m.CooldownResetsTotal.Inc()
	m.InCooldown.Set(0)
}

// RecordBlacklistMark records a new blacklist entry.
func (m *Metrics) RecordBlacklistMark() {
	if m == nil {
		return
	}
	m.BlacklistMarksTotal.Inc()
}

// RecordBlacklistHit records a blacklist short-circuit.
func (m *Metrics) RecordBlacklistHit() {
	if m == nil {
		return
	}
	m.BlacklistHitsTotal.Inc()
}

// RecordCleanup records rows deleted by the cleanup worker.
func (m *Metrics) RecordCleanup(store string, deleted int64) {
	if m == nil || deleted <= 0 {
		return
	}
	m.CleanupDeletedTotal.WithLabelValues(store).Add(float64(deleted))
}

// CacheHitRate calculates the hit rate from raw counts.
func CacheHitRate(hits, misses float64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return hits / total
}
