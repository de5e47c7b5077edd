package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics shared across components. Component
// specific histograms live next to the code that observes them.
type Metrics struct {
	EntitiesSynced   *prometheus.CounterVec
	SyncErrors       prometheus.Counter
	CacheLocalHits   prometheus.Counter
	CacheLocalMisses prometheus.Counter
	CacheDegraded    prometheus.Gauge
	PaymentsTotal    *prometheus.CounterVec
	LedgerCalls      *prometheus.CounterVec
}

// New creates and registers all shared Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EntitiesSynced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beeftrace_entities_synced_total",
			Help: "Entities mirrored from the ledger into the cache, by type",
		}, []string{"entity_type"}),
		SyncErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beeftrace_sync_errors_total",
			Help: "Per-item failures during sync runs",
		}),
		CacheLocalHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beeftrace_cache_local_hits_total",
			Help: "Reads served from the in-process TTL cache",
		}),
		CacheLocalMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beeftrace_cache_local_misses_total",
			Help: "Reads that fell through to the remote mirror",
		}),
		CacheDegraded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "beeftrace_cache_degraded",
			Help: "1 while the remote mirror is in its unavailability cooldown",
		}),
		PaymentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beeftrace_payments_total",
			Help: "Acceptance payment attempts by final status",
		}, []string{"status"}),
		LedgerCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beeftrace_ledger_calls_total",
			Help: "Ledger entrypoint invocations by entrypoint and outcome",
		}, []string{"entrypoint", "outcome"}),
	}
}
