package httpx

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks Prometheus metrics for the Caching Executor. Methods
// handle a nil receiver gracefully, so a nil *CacheMetrics acts as a no-op
// when metrics are not wired up.
type CacheMetrics struct {
	// Lookups counts cache lookups by outcome.
	// Labels: outcome=[memory_hit, disk_hit, miss, bypass]
	Lookups *prometheus.CounterVec

	// MemoryEntries tracks the current number of in-memory cache entries.
	MemoryEntries prometheus.Gauge
}

var (
	cacheMetricsOnce     sync.Once
	cacheMetricsInstance *CacheMetrics
)

// NewCacheMetrics creates and registers Caching Executor Prometheus metrics.
// If registerer is nil, prometheus.DefaultRegisterer is used. Idempotent via
// sync.Once so repeated construction (e.g. in tests) never double-registers.
func NewCacheMetrics(registerer prometheus.Registerer) *CacheMetrics {
	cacheMetricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &CacheMetrics{
			Lookups: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quelle_http_cache_lookups_total",
					Help: "Total cache lookups by outcome",
				},
				[]string{"outcome"},
			),
			MemoryEntries: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "quelle_http_cache_memory_entries",
					Help: "Current number of in-memory cache entries",
				},
			),
		}

		registerer.MustRegister(m.Lookups, m.MemoryEntries)
		cacheMetricsInstance = m
	})

	return cacheMetricsInstance
}

func (m *CacheMetrics) recordLookup(outcome string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(outcome).Inc()
}

func (m *CacheMetrics) setMemoryEntries(n int) {
	if m == nil {
		return
	}
	m.MemoryEntries.Set(float64(n))
}
