package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/pkg/buffer"
)

// Sample history retention: most recent sampleHistory entries, compacted
// to sampleCompactTo when full.
const (
	sampleHistory   = 1000
	sampleCompactTo = 500
)

// Monitor collects Web Vitals samples from attached timing sources and
// rates them against the configured budget.
type Monitor struct {
	cfg    Config
	logger *slog.Logger
	core   *metric.Core

	sources       []TimingSource
	cacheStats    func(ctx context.Context) CacheStats
	resourceStats func() ResourceStats
	errorRate     func() float64

	// recordMu serializes read-merge-append in RecordMetric so concurrent
	// partial samples never merge over the same predecessor.
	recordMu sync.Mutex
	samples  *buffer.Ring[Sample]

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	detach    []func()
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics exports the latest vitals through the perfkit registry.
func WithMetrics(reg *metric.Registry) Option {
	return func(m *Monitor) {
		if reg != nil {
			m.core = reg.Core
		}
	}
}

// WithTimingSource attaches a platform timing facility on Start. May be
// given more than once.
func WithTimingSource(src TimingSource) Option {
	return func(m *Monitor) {
		if src != nil {
			m.sources = append(m.sources, src)
		}
	}
}

// WithCacheStats wires the cache view used for the technical report
// section.
func WithCacheStats(provider func(ctx context.Context) CacheStats) Option {
	return func(m *Monitor) { m.cacheStats = provider }
}

// WithResourceStats wires the resource-timing summary used for bundle
// estimates.
func WithResourceStats(provider func() ResourceStats) Option {
	return func(m *Monitor) { m.resourceStats = provider }
}

// WithErrorRate wires the error-rate figure for the technical report
// section.
func WithErrorRate(provider func() float64) Option {
	return func(m *Monitor) { m.errorRate = provider }
}

// New creates a monitor. Sources are not attached until Start.
func New(cfg Config, opts ...Option) *Monitor {
	if cfg.ReportWindow <= 0 {
		cfg.ReportWindow = DefaultConfig().ReportWindow
	}
	if cfg.SampleRate <= 0 || cfg.SampleRate > 1 {
		cfg.SampleRate = 1.0
	}
	if cfg.Budget == (Budget{}) {
		cfg.Budget = DefaultBudget()
	}

	m := &Monitor{
		cfg:     cfg,
		logger:  slog.Default(),
		samples: buffer.NewRing[Sample](sampleHistory, sampleCompactTo),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start attaches all timing sources. Signals arriving before Start are
// not observed.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.WrapPermanent(errors.ErrAlreadyStarted, "monitor", "Start", "attach sources")
	}

	for _, src := range m.sources {
		detach, err := src.Attach(m.RecordMetric)
		if err != nil {
			for _, d := range m.detach {
				d()
			}
			m.detach = nil
			return errors.Wrap(err, "monitor", "Start", "attach timing source")
		}
		m.detach = append(m.detach, detach)
	}

	m.started = true
	m.startedAt = time.Now()
	return nil
}

// Stop detaches all timing sources. Collected samples are retained.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return errors.WrapPermanent(errors.ErrNotStarted, "monitor", "Stop", "detach sources")
	}
	for _, d := range m.detach {
		d()
	}
	m.detach = nil
	m.started = false
	return nil
}

// RecordMetric merges a partial sample over the most recent one and
// appends the result to the history. Safe for concurrent use.
func (m *Monitor) RecordMetric(partial Sample) {
	m.recordMu.Lock()
	merged := partial
	if latest, ok := m.samples.Last(); ok {
		merged = latest.merge(partial)
	}
	if merged.Timestamp.IsZero() {
		merged.Timestamp = time.Now()
	}
	m.samples.Append(merged)
	m.recordMu.Unlock()

	if m.core != nil {
		m.core.VitalsSample.WithLabelValues("lcp_ms").Set(float64(merged.LCP.Milliseconds()))
		m.core.VitalsSample.WithLabelValues("fid_ms").Set(float64(merged.FID.Milliseconds()))
		m.core.VitalsSample.WithLabelValues("cls").Set(merged.CLS)
		m.core.VitalsSample.WithLabelValues("ttfb_ms").Set(float64(merged.TTFB.Milliseconds()))
	}
}

// Samples returns collected samples within the trailing window; window 0
// returns the full retained history.
func (m *Monitor) Samples(window time.Duration) []Sample {
	all := m.samples.Items()
	if window <= 0 {
		return all
	}
	cutoff := time.Now().Add(-window)
	return m.samples.Filter(func(s Sample) bool {
		return !s.Timestamp.Before(cutoff)
	})
}

// Latest returns the most recent sample.
func (m *Monitor) Latest() (Sample, bool) {
	return m.samples.Last()
}

// BudgetStatus rates the most recent sample against the budget.
func (m *Monitor) BudgetStatus() (BudgetStatus, error) {
	latest, ok := m.samples.Last()
	if !ok {
		return BudgetStatus{}, errors.WrapPermanent(errors.ErrNotStarted, "monitor", "BudgetStatus", "rate empty history")
	}
	return m.cfg.Budget.evaluate(latest), nil
}
