package cache

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/storage"
)

func newTestManager(t *testing.T, cfg Config, tiers ...storage.Tier) *Manager {
	t.Helper()
	if len(tiers) == 0 {
		tiers = []storage.Tier{
			storage.NewMemoryTier(1<<20, 1000, 1<<20),
			storage.NewSessionTier(4<<20, 2<<20),
		}
	}
	m, err := New(tiers, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSetThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, DefaultConfig())

	ok, err := m.Set(ctx, "greeting", []byte("hello"))
	require.NoError(t, err)
	require.True(t, ok)

	value, found, err := m.Get(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("hello"), value)
}

func TestGetMissReturnsNoError(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, DefaultConfig())

	value, found, err := m.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestTTLExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, DefaultConfig())

	ok, err := m.Set(ctx, "ephemeral", []byte("v"), WithTTL(60*time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := m.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.True(t, found, "entry must be live before TTL elapses")

	time.Sleep(90 * time.Millisecond)

	_, found, err = m.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.False(t, found, "entry must read as a miss after TTL elapses")
}

func TestGetOrLoadPopulatesOnMiss(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, DefaultConfig())

	var calls int32
	producer := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("produced"), nil
	}

	value, err := m.GetOrLoad(ctx, "lazy", producer)
	require.NoError(t, err)
	assert.Equal(t, []byte("produced"), value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Second read is served from cache, producer not called again.
	value, err = m.GetOrLoad(ctx, "lazy", producer)
	require.NoError(t, err)
	assert.Equal(t, []byte("produced"), value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSetCascadesOnQuotaRejection(t *testing.T) {
	ctx := context.Background()
	// Tiny session tier placed between memory tiers forces the cascade:
	// medium-sized values start at index 1 and fall through to index 2.
	tiers := []storage.Tier{
		storage.NewMemoryTier(1<<20, 1000, 1<<20),
		storage.NewSessionTier(64, 64),
		storage.NewMemoryTier(1<<20, 1000, 1<<20),
	}
	cfg := DefaultConfig()
	cfg.SmallEntryBytes = 16 // force the middle tier as the target
	m := newTestManager(t, cfg, tiers...)

	payload := make([]byte, 200)
	ok, err := m.Set(ctx, "cascades", payload)
	require.NoError(t, err)
	require.True(t, ok)

	// The middle tier rejected it; the slow tier holds it.
	count, err := tiers[2].Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, found, err := m.Get(ctx, "cascades")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSetReturnsFalseWhenAllTiersReject(t *testing.T) {
	ctx := context.Background()
	tiers := []storage.Tier{storage.NewSessionTier(64, 64)}
	m := newTestManager(t, DefaultConfig(), tiers...)

	ok, err := m.Set(ctx, "huge", make([]byte, 1000))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetRespectsMaxEntryBytes(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaxEntryBytes = 100
	m := newTestManager(t, cfg)

	ok, err := m.Set(ctx, "too-big", make([]byte, 500))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLargeValuesTargetSlowestTier(t *testing.T) {
	ctx := context.Background()
	fast := storage.NewMemoryTier(1<<20, 1000, 1<<20)
	slow := storage.NewMemoryTier(4<<20, 1000, 4<<20)
	cfg := DefaultConfig()
	cfg.LargeEntryBytes = 1 << 10
	m := newTestManager(t, cfg, fast, slow)

	ok, err := m.Set(ctx, "big", make([]byte, 4<<10))
	require.NoError(t, err)
	require.True(t, ok)

	fastCount, _ := fast.Count(ctx)
	slowCount, _ := slow.Count(ctx)
	assert.Equal(t, 0, fastCount)
	assert.Equal(t, 1, slowCount)
}

func TestOptimizePromotesHotEntries(t *testing.T) {
	ctx := context.Background()
	fast := storage.NewMemoryTier(1<<20, 1000, 1<<20)
	slow := storage.NewMemoryTier(1<<20, 1000, 1<<20)
	cfg := DefaultConfig()
	cfg.SmallEntryBytes = 4 // everything targets the slow tier
	cfg.PromotionThreshold = 3
	m := newTestManager(t, cfg, fast, slow)

	ok, err := m.Set(ctx, "hot", []byte("hot-value"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.Set(ctx, "cold", []byte("cold-value"))
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 4; i++ {
		_, found, err := m.Get(ctx, "hot")
		require.NoError(t, err)
		require.True(t, found)
	}

	require.NoError(t, m.Optimize(ctx))

	fastKeys, _ := fast.Keys(ctx)
	slowKeys, _ := slow.Keys(ctx)
	assert.Contains(t, fastKeys, "hot")
	assert.NotContains(t, slowKeys, "hot")
	assert.Contains(t, slowKeys, "cold")
}

func TestOptimizeSweepsExpired(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, DefaultConfig())

	ok, err := m.Set(ctx, "stale", []byte("v"), WithTTL(10*time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, m.Optimize(ctx))

	metrics := m.Metrics(ctx)
	assert.Equal(t, 0, metrics.EntryCount)
}

func TestDeleteRemovesFromAllTiers(t *testing.T) {
	ctx := context.Background()
	fast := storage.NewMemoryTier(1<<20, 1000, 1<<20)
	slow := storage.NewMemoryTier(1<<20, 1000, 1<<20)
	m := newTestManager(t, DefaultConfig(), fast, slow)

	_, err := m.Set(ctx, "k", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, fast.Set(ctx, storage.NewEntry("k", []byte{0, 'x'}, 0)))

	removed, err := m.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, removed)

	_, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPreloadWarmsCache(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, DefaultConfig())

	var entries []PreloadEntry
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("warm-%d", i)
		entries = append(entries, PreloadEntry{
			Key: key,
			Producer: func(context.Context) ([]byte, error) {
				return []byte(key), nil
			},
		})
	}
	require.NoError(t, m.Preload(ctx, entries))

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("warm-%d", i)
		value, found, err := m.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte(key), value)
	}
}

func TestMetricsRates(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, DefaultConfig())

	_, err := m.Set(ctx, "k", []byte("v"))
	require.NoError(t, err)

	_, _, _ = m.Get(ctx, "k")      // hit
	_, _, _ = m.Get(ctx, "absent") // miss

	metrics := m.Metrics(ctx)
	assert.InDelta(t, 0.5, metrics.HitRate, 0.001)
	assert.InDelta(t, 0.5, metrics.MissRate, 0.001)
	assert.Equal(t, 1, metrics.EntryCount)
	assert.Greater(t, metrics.TotalSizeBytes, int64(0))
	assert.Greater(t, metrics.AvgResponseTime, time.Duration(0))
}

func TestEvictionCountsPublished(t *testing.T) {
	ctx := context.Background()
	reg := metric.NewRegistry()
	tier := storage.NewMemoryTier(1<<20, 2, 1<<20)
	m, err := New([]storage.Tier{tier}, DefaultConfig(), WithMetrics(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	// Third entry overflows the two-entry budget and evicts the LRU one.
	for _, key := range []string{"a", "b", "c"} {
		ok, err := m.Set(ctx, key, []byte("v"))
		require.NoError(t, err)
		require.True(t, ok)
	}

	counter := reg.Core.CacheEvictions.WithLabelValues("memory")
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))

	// Re-publishing without new evictions adds nothing.
	require.NoError(t, m.Optimize(ctx))
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))
}

func TestObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, DefaultConfig())

	type profile struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}

	ok, err := SetObject(ctx, m, "profile", profile{Name: "casey", Score: 42})
	require.NoError(t, err)
	require.True(t, ok)

	got, found, err := GetObject[profile](ctx, m, "profile")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, profile{Name: "casey", Score: 42}, got)
}

func TestCompressionRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Compression = true
	cfg.CompressionMinBytes = 64
	m := newTestManager(t, cfg)

	// Highly compressible payload.
	payload := make([]byte, 8<<10)
	ok, err := m.Set(ctx, "zeros", payload)
	require.NoError(t, err)
	require.True(t, ok)

	value, found, err := m.Get(ctx, "zeros")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload, value)

	// The stored form is smaller than the raw payload.
	metrics := m.Metrics(ctx)
	assert.Less(t, metrics.TotalSizeBytes, int64(len(payload)))
}

func TestEncryptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Encryption = true
	cfg.EncryptionKey = base64.StdEncoding.EncodeToString(key)
	m := newTestManager(t, cfg)

	ok, err := m.Set(ctx, "secret", []byte("classified"))
	require.NoError(t, err)
	require.True(t, ok)

	value, found, err := m.Get(ctx, "secret")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("classified"), value)
}

func TestEncryptionRejectsBadKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encryption = true
	cfg.EncryptionKey = "not-base64!!"
	_, err := New([]storage.Tier{storage.NewMemoryTier(0, 0, 0)}, cfg)
	assert.Error(t, err)

	cfg.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short"))
	_, err = New([]storage.Tier{storage.NewMemoryTier(0, 0, 0)}, cfg)
	assert.Error(t, err)
}

func TestNewRequiresTiers(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)
}
