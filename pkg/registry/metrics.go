package registry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for the Extension Registry. Methods
// handle a nil receiver gracefully, so a nil *Metrics acts as a no-op when
// metrics are not wired up.
type Metrics struct {
	// Installs counts Install attempts by outcome.
	// Labels: outcome=[success, not_found, downgrade_blocked, failed]
	Installs *prometheus.CounterVec

	// SearchDuration observes SearchAllStores latency per call.
	SearchDuration prometheus.Histogram

	// InstalledTotal tracks the current number of installed extensions.
	InstalledTotal prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates and registers Registry Prometheus metrics. If
// registerer is nil, prometheus.DefaultRegisterer is used. Idempotent via
// sync.Once so repeated construction (e.g. in tests) never double-registers.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &Metrics{
			Installs: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quelle_registry_installs_total",
					Help: "Total extension install attempts by outcome",
				},
				[]string{"outcome"},
			),
			SearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "quelle_registry_search_duration_seconds",
					Help:    "SearchAllStores latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
			),
			InstalledTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "quelle_registry_installed_extensions",
					Help: "Current number of installed extensions",
				},
			),
		}

		registerer.MustRegister(m.Installs, m.SearchDuration, m.InstalledTotal)
		metricsInstance = m
	})

	return metricsInstance
}

func (m *Metrics) recordInstall(outcome string) {
	if m == nil {
		return
	}
	m.Installs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSearch(seconds float64) {
	if m == nil {
		return
	}
	m.SearchDuration.Observe(seconds)
}

func (m *Metrics) setInstalledTotal(n int) {
	if m == nil {
		return
	}
	m.InstalledTotal.Set(float64(n))
}
