package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/c360/perfkit/storage"
)

// Metrics is the aggregate cache view, recomputed from counters on demand.
type Metrics struct {
	HitRate         float64       `json:"hit_rate"`
	MissRate        float64       `json:"miss_rate"`
	EvictionRate    float64       `json:"eviction_rate"`
	TotalSizeBytes  int64         `json:"total_size_bytes"`
	EntryCount      int           `json:"entry_count"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	Fallbacks       int64         `json:"fallbacks"`
}

// Metrics returns the current aggregate metrics across all tiers.
func (m *Manager) Metrics(ctx context.Context) Metrics {
	hits := atomic.LoadInt64(&m.hits)
	misses := atomic.LoadInt64(&m.misses)
	total := hits + misses

	var out Metrics
	out.Fallbacks = atomic.LoadInt64(&m.fallbacks)
	if total > 0 {
		out.HitRate = float64(hits) / float64(total)
		out.MissRate = float64(misses) / float64(total)
	}

	var evictions int64
	for _, tier := range m.tiers {
		if size, err := tier.SizeBytes(ctx); err == nil {
			out.TotalSizeBytes += size
		}
		if count, err := tier.Count(ctx); err == nil {
			out.EntryCount += count
		}
		if ec, ok := tier.(storage.EvictionCounter); ok {
			evictions += ec.Evictions()
		}
	}
	if total > 0 {
		out.EvictionRate = float64(evictions) / float64(total)
	}

	samples := m.respTimes.Items()
	if len(samples) > 0 {
		var sum time.Duration
		for _, d := range samples {
			sum += d
		}
		out.AvgResponseTime = sum / time.Duration(len(samples))
	}

	return out
}

// GetObject reads a JSON-encoded value into out, reporting whether the key
// was found.
func GetObject[T any](ctx context.Context, m *Manager, key string) (T, bool, error) {
	var out T
	data, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

// SetObject stores a value through a JSON round trip. The serialized
// length doubles as the size-estimation proxy for tier selection.
func SetObject[T any](ctx context.Context, m *Manager, key string, value T, opts ...SetOption) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return m.Set(ctx, key, data, opts...)
}
