package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Core contains layer-level metrics shared by all perfkit components.
type Core struct {
	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec
	CacheSizeBytes *prometheus.GaugeVec
	CacheEntries   *prometheus.GaugeVec

	// Recovery metrics
	RetryAttempts     *prometheus.CounterVec
	OperationFailures *prometheus.CounterVec
	SessionBackups    prometheus.Counter
	SessionRecoveries *prometheus.CounterVec

	// Loader metrics
	ResourcesLoaded      *prometheus.CounterVec
	ResourceLoadDuration *prometheus.HistogramVec
	BandwidthSavedBytes  prometheus.Counter

	// Monitor metrics
	VitalsSample *prometheus.GaugeVec
}

// NewCore creates the core metric set.
func NewCore() *Core {
	return &Core{
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total cache hits by tier",
			},
			[]string{"tier"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total cache misses by tier",
			},
			[]string{"tier"},
		),
		CacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total cache evictions by tier",
			},
			[]string{"tier"},
		),
		CacheSizeBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "perfkit",
				Subsystem: "cache",
				Name:      "size_bytes",
				Help:      "Current cache size in bytes by tier",
			},
			[]string{"tier"},
		),
		CacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "perfkit",
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of cache entries by tier",
			},
			[]string{"tier"},
		),
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "recovery",
				Name:      "retry_attempts_total",
				Help:      "Total retry attempts by operation category",
			},
			[]string{"category"},
		),
		OperationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "recovery",
				Name:      "operation_failures_total",
				Help:      "Total operation failures by error class",
			},
			[]string{"class"},
		),
		SessionBackups: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "recovery",
				Name:      "session_backups_total",
				Help:      "Total session snapshots written",
			},
		),
		SessionRecoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "recovery",
				Name:      "session_recoveries_total",
				Help:      "Total session recovery attempts by outcome",
			},
			[]string{"outcome"},
		),
		ResourcesLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "lazyload",
				Name:      "resources_total",
				Help:      "Total lazy resource loads by type and status",
			},
			[]string{"type", "status"},
		),
		ResourceLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "perfkit",
				Subsystem: "lazyload",
				Name:      "load_duration_seconds",
				Help:      "Resource load duration in seconds by type",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		BandwidthSavedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "perfkit",
				Subsystem: "lazyload",
				Name:      "bandwidth_saved_bytes_total",
				Help:      "Estimated bytes saved by deferred loading",
			},
		),
		VitalsSample: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "perfkit",
				Subsystem: "vitals",
				Name:      "latest",
				Help:      "Latest Web Vitals sample values by metric",
			},
			[]string{"metric"},
		),
	}
}

// register registers all core metrics with the Prometheus registry.
func (c *Core) register(reg *prometheus.Registry) {
	reg.MustRegister(
		c.CacheHits,
		c.CacheMisses,
		c.CacheEvictions,
		c.CacheSizeBytes,
		c.CacheEntries,
		c.RetryAttempts,
		c.OperationFailures,
		c.SessionBackups,
		c.SessionRecoveries,
		c.ResourcesLoaded,
		c.ResourceLoadDuration,
		c.BandwidthSavedBytes,
		c.VitalsSample,
	)
}
