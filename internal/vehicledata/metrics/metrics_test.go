package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.RecordCacheHit("memory", "image")
	m.RecordCacheHit("memory", "image")
	m.RecordCacheMiss("persistent", "data")
	m.RecordProviderCall("vdg", "transient", 0.2)
	m.RecordResolution("image", "success", true)
	m.RecordCooldownOpened()
	m.RecordCleanup("cache", 3)
	m.RecordCleanup("cache", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("memory", "image")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("persistent", "data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCallsTotal.WithLabelValues("vdg", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("image", "success", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InCooldown))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CleanupDeletedTotal.WithLabelValues("cache")))

	m.RecordCooldownReset()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InCooldown))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CooldownResetsTotal))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCacheHit("memory", "image")
		m.RecordProviderCall("vdg", "success", 0.1)
		m.RecordCooldownOpened()
		m.RecordBlacklistHit()
	})
}

func TestCacheHitRate(t *testing.T) {
	assert.Equal(t, 0.0, CacheHitRate(0, 0))
	assert.Equal(t, 0.75, CacheHitRate(3, 1))
}
