package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutations counts cart mutations by operation.
	CartMutations *prometheus.CounterVec
	// StorageFailures counts swallowed persistence failures by operation (load, save).
	StorageFailures *prometheus.CounterVec
	// TaxSettingsFetch counts tax configuration fetches by result (ok, empty, error).
	TaxSettingsFetch *prometheus.CounterVec
	// PricingRecompute counts summary recomputations triggered by input changes.
	PricingRecompute prometheus.Counter
	// ActiveSessions tracks the number of storefront sessions held in memory.
	ActiveSessions prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutations = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation.",
		}, []string{"op"}))
		StorageFailures = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_storage_failures_total",
			Help:      "Count of durable storage failures that were degraded to in-memory operation.",
		}, []string{"op"}))
		TaxSettingsFetch = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_settings_fetch_total",
			Help:      "Count of tax settings fetches by result.",
		}, []string{"result"}))
		PricingRecompute = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_recompute_total",
			Help:      "Number of order summary recomputations.",
		}))
		ActiveSessions = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storefront_sessions",
			Help:      "Storefront sessions currently held in memory.",
		}))
	})
}
