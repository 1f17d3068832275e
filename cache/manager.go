package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/pkg/buffer"
	"github.com/c360/perfkit/storage"
)

// Producer supplies a value on a cache miss. It must be idempotent-safe:
// under races the manager may invoke it more than once for the same key.
type Producer func(ctx context.Context) ([]byte, error)

// responseWindow bounds the rolling response-time series.
const responseWindow = 1000

// Manager coordinates the ordered tier stack.
type Manager struct {
	tiers  []storage.Tier
	cfg    Config
	codec  *codec
	logger *slog.Logger
	core   *metric.Core
	tuning func(ctx context.Context) error

	hits      int64
	misses    int64
	fallbacks int64
	respTimes *buffer.Ring[time.Duration]

	// High-water marks for published eviction totals, per tier.
	evictionsMu   sync.Mutex
	evictionsSeen map[string]int64
}

// Option configures the manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics exports cache counters through the perfkit registry.
func WithMetrics(reg *metric.Registry) Option {
	return func(m *Manager) {
		if reg != nil {
			m.core = reg.Core
		}
	}
}

// WithTuningHook installs the hot-path tuning hook run at the end of
// Optimize.
func WithTuningHook(hook func(ctx context.Context) error) Option {
	return func(m *Manager) {
		m.tuning = hook
	}
}

// New creates a manager over tiers ordered fastest to slowest.
func New(tiers []storage.Tier, cfg Config, opts ...Option) (*Manager, error) {
	if len(tiers) == 0 {
		return nil, errors.WrapPermanent(errors.ErrMissingConfig, "cache", "New", "require at least one tier")
	}
	c, err := newCodec(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		tiers:         tiers,
		cfg:           cfg,
		codec:         c,
		logger:        slog.Default(),
		respTimes:     buffer.NewRing[time.Duration](responseWindow, responseWindow/2),
		evictionsSeen: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewDefault creates a manager with default config over memory and
// session tiers, for hosts that don't need durable tiers.
func NewDefault(ctx context.Context, opts ...Option) (*Manager, error) {
	tiers, err := storage.OpenTiers(ctx, storage.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return New(tiers, DefaultConfig(), opts...)
}

// Get probes tiers fastest-first and returns the first live hit. Expired
// entries read as misses; a separate sweep reclaims them.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	defer func() { m.respTimes.Append(time.Since(start)) }()

	for _, tier := range m.tiers {
		entry, err := tier.Get(ctx, key)
		if err != nil {
			if errors.Is(err, errors.ErrKeyNotFound) {
				if m.core != nil {
					m.core.CacheMisses.WithLabelValues(tier.Name()).Inc()
				}
				continue
			}
			return nil, false, err
		}

		value, err := m.codec.decode(entry.Value)
		if err != nil {
			// Undecodable data is useless; drop it and keep probing.
			m.logger.Warn("dropping undecodable cache entry",
				"key", key, "tier", tier.Name(), "error", err)
			_, _ = tier.Delete(ctx, key)
			continue
		}

		atomic.AddInt64(&m.hits, 1)
		if m.core != nil {
			m.core.CacheHits.WithLabelValues(tier.Name()).Inc()
		}
		return value, true, nil
	}

	atomic.AddInt64(&m.misses, 1)
	return nil, false, nil
}

// GetOrLoad returns the cached value for key, invoking producer on a full
// miss and writing the result back before returning it.
func (m *Manager) GetOrLoad(ctx context.Context, key string, producer Producer) ([]byte, error) {
	value, ok, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return value, nil
	}
	if producer == nil {
		return nil, nil
	}

	atomic.AddInt64(&m.fallbacks, 1)
	value, err = producer(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := m.Set(ctx, key, value); err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value, selecting a tier by size and cascading slower on
// quota rejection. Returns false when no tier could accept the value;
// that is a degraded state, not an error.
func (m *Manager) Set(ctx context.Context, key string, value []byte, opts ...SetOption) (bool, error) {
	so := applySetOptions(m.cfg.TTL, opts)

	encoded, err := m.codec.encode(value)
	if err != nil {
		return false, err
	}
	entry := storage.NewEntry(key, encoded, so.ttl)

	if m.cfg.MaxEntryBytes > 0 && entry.SizeBytes > m.cfg.MaxEntryBytes {
		return false, nil
	}

	for _, tier := range m.tiers[m.targetTier(entry.SizeBytes):] {
		err := tier.Set(ctx, entry)
		if err == nil {
			if m.core != nil {
				m.publishTierGauges(ctx, tier)
			}
			return true, nil
		}
		if errors.IsQuota(err) {
			continue
		}
		return false, err
	}

	m.logger.Debug("value rejected by all tiers", "key", key, "size", entry.SizeBytes)
	return false, nil
}

// targetTier maps an encoded size onto a starting tier index: small values
// go fastest, very large values go slowest, the rest start in the middle.
func (m *Manager) targetTier(size int64) int {
	if len(m.tiers) == 1 || size <= m.cfg.SmallEntryBytes {
		return 0
	}
	if size > m.cfg.LargeEntryBytes {
		return len(m.tiers) - 1
	}
	return 1
}

// Delete removes key from every tier.
func (m *Manager) Delete(ctx context.Context, key string) (bool, error) {
	removed := false
	for _, tier := range m.tiers {
		ok, err := tier.Delete(ctx, key)
		if err != nil {
			return removed, err
		}
		removed = removed || ok
	}
	return removed, nil
}

// Clear empties the named tier, or every tier when name is empty.
func (m *Manager) Clear(ctx context.Context, name string) error {
	for _, tier := range m.tiers {
		if name != "" && tier.Name() != name {
			continue
		}
		if err := tier.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Optimize runs the maintenance passes: sweep expired entries everywhere,
// promote hot entries from slower tiers into the fastest tier (bounded per
// pass), then the host's tuning hook. Intentionally not part of the
// read/write path.
func (m *Manager) Optimize(ctx context.Context) error {
	for _, tier := range m.tiers {
		removed, err := tier.CleanExpired(ctx)
		if err != nil {
			return err
		}
		if removed > 0 {
			m.logger.Debug("swept expired entries", "tier", tier.Name(), "removed", removed)
		}
	}

	if err := m.promoteHot(ctx); err != nil {
		return err
	}

	if m.tuning != nil {
		if err := m.tuning(ctx); err != nil {
			return err
		}
	}

	if m.core != nil {
		for _, tier := range m.tiers {
			m.publishTierGauges(ctx, tier)
		}
	}
	return nil
}

// promoteHot moves the most-accessed entries from slower tiers into the
// fastest tier, at most PromotionLimit per pass.
func (m *Manager) promoteHot(ctx context.Context) error {
	if len(m.tiers) < 2 || m.cfg.PromotionLimit <= 0 {
		return nil
	}
	fastest := m.tiers[0]

	type candidate struct {
		tier  storage.Tier
		entry *storage.Entry
	}
	var candidates []candidate
	for _, tier := range m.tiers[1:] {
		entries, err := tier.Entries(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsExpired() && e.AccessCount >= m.cfg.PromotionThreshold {
				candidates = append(candidates, candidate{tier: tier, entry: e})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].entry.AccessCount > candidates[j].entry.AccessCount
	})
	if len(candidates) > m.cfg.PromotionLimit {
		candidates = candidates[:m.cfg.PromotionLimit]
	}

	for _, c := range candidates {
		full, err := c.tier.Get(ctx, c.entry.Key)
		if err != nil {
			continue
		}
		if err := fastest.Set(ctx, full); err != nil {
			// Fast tier is full of hotter data; stop promoting this pass.
			if errors.IsQuota(err) {
				break
			}
			return err
		}
		if _, err := c.tier.Delete(ctx, c.entry.Key); err != nil {
			return err
		}
		m.logger.Debug("promoted hot entry",
			"key", c.entry.Key, "from", c.tier.Name(), "accesses", full.AccessCount)
	}
	return nil
}

// PreloadEntry names a key and its producer for warm-up.
type PreloadEntry struct {
	Key      string
	TTL      time.Duration
	Producer Producer
}

// Preload warms the cache with the given entries, loading concurrently
// with bounded parallelism.
func (m *Manager) Preload(ctx context.Context, entries []PreloadEntry) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, pe := range entries {
		pe := pe
		g.Go(func() error {
			_, err := m.GetOrLoad(ctx, pe.Key, pe.Producer)
			return err
		})
	}
	return g.Wait()
}

// publishTierGauges pushes a tier's size gauges and eviction counter to
// Prometheus.
func (m *Manager) publishTierGauges(ctx context.Context, tier storage.Tier) {
	if size, err := tier.SizeBytes(ctx); err == nil {
		m.core.CacheSizeBytes.WithLabelValues(tier.Name()).Set(float64(size))
	}
	if count, err := tier.Count(ctx); err == nil {
		m.core.CacheEntries.WithLabelValues(tier.Name()).Set(float64(count))
	}
	if ec, ok := tier.(storage.EvictionCounter); ok {
		m.publishEvictions(tier.Name(), ec.Evictions())
	}
}

// publishEvictions adds the unpublished portion of a tier's monotonic
// eviction total to the Prometheus counter.
func (m *Manager) publishEvictions(tier string, total int64) {
	m.evictionsMu.Lock()
	defer m.evictionsMu.Unlock()
	if delta := total - m.evictionsSeen[tier]; delta > 0 {
		m.core.CacheEvictions.WithLabelValues(tier).Add(float64(delta))
		m.evictionsSeen[tier] = total
	}
}

// Close closes every tier.
func (m *Manager) Close() error {
	var firstErr error
	for _, tier := range m.tiers {
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
