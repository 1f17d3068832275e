package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfkit/errors"
)

// tierFactories builds one fresh instance of every tier implementation so
// the shared contract suite runs against all of them.
func tierFactories(t *testing.T) map[string]func(t *testing.T) Tier {
	return map[string]func(t *testing.T) Tier{
		"memory": func(_ *testing.T) Tier {
			return NewMemoryTier(1<<20, 100, 1<<20)
		},
		"session": func(_ *testing.T) Tier {
			return NewSessionTier(1<<20, 1<<20)
		},
		"local": func(t *testing.T) Tier {
			tier, err := NewLocalTier(t.TempDir(), 1<<20, 1<<20)
			require.NoError(t, err)
			return tier
		},
		"bulk": func(t *testing.T) Tier {
			tier, err := NewBulkTier(context.Background(),
				filepath.Join(t.TempDir(), "bulk.db"), 1<<20, 1<<20)
			require.NoError(t, err)
			return tier
		},
	}
}

func TestTierContract(t *testing.T) {
	for name, factory := range tierFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("SetGetDelete", func(t *testing.T) {
				tier := factory(t)
				defer tier.Close()
				testSetGetDelete(t, tier)
			})
			t.Run("Expiry", func(t *testing.T) {
				tier := factory(t)
				defer tier.Close()
				testExpiry(t, tier)
			})
			t.Run("AccessBookkeeping", func(t *testing.T) {
				tier := factory(t)
				defer tier.Close()
				testAccessBookkeeping(t, tier)
			})
			t.Run("ClearAndCounts", func(t *testing.T) {
				tier := factory(t)
				defer tier.Close()
				testClearAndCounts(t, tier)
			})
		})
	}
}

func testSetGetDelete(t *testing.T, tier Tier) {
	ctx := context.Background()

	_, err := tier.Get(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)

	entry := NewEntry("k1", []byte("hello"), 0)
	require.NoError(t, tier.Set(ctx, entry))

	got, err := tier.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got.Value)

	// Overwrite is last-write-wins.
	require.NoError(t, tier.Set(ctx, NewEntry("k1", []byte("world"), 0)))
	got, err = tier.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got.Value)

	deleted, err := tier.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = tier.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = tier.Get(ctx, "k1")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}

func testExpiry(t *testing.T, tier Tier) {
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, NewEntry("short", []byte("v"), 30*time.Millisecond)))
	require.NoError(t, tier.Set(ctx, NewEntry("forever", []byte("v"), 0)))

	_, err := tier.Get(ctx, "short")
	require.NoError(t, err, "entry must be live before its TTL elapses")

	time.Sleep(50 * time.Millisecond)

	_, err = tier.Get(ctx, "short")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound, "expired entry must read as a miss")

	_, err = tier.Get(ctx, "forever")
	assert.NoError(t, err, "ttl 0 never expires")

	removed, err := tier.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := tier.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testAccessBookkeeping(t *testing.T, tier Tier) {
	ctx := context.Background()
	require.NoError(t, tier.Set(ctx, NewEntry("k", []byte("v"), 0)))

	first, err := tier.Get(ctx, "k")
	require.NoError(t, err)
	second, err := tier.Get(ctx, "k")
	require.NoError(t, err)

	assert.Greater(t, second.AccessCount, first.AccessCount-1)
	assert.GreaterOrEqual(t, second.AccessCount, int64(2))
	assert.False(t, second.AccessedAt.Before(first.AccessedAt))
}

func testClearAndCounts(t *testing.T, tier Tier) {
	ctx := context.Background()
	require.NoError(t, tier.Set(ctx, NewEntry("a", []byte("1234"), 0)))
	require.NoError(t, tier.Set(ctx, NewEntry("b", []byte("5678"), 0)))

	count, err := tier.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	size, err := tier.SizeBytes(ctx)
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))

	keys, err := tier.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	require.NoError(t, tier.Clear(ctx))
	count, err = tier.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryTierLRUEviction(t *testing.T) {
	ctx := context.Background()
	// Room for roughly three 100-byte entries.
	tier := NewMemoryTier(350, 100, 200)

	payload := make([]byte, 97) // +3 bytes of key = 100
	require.NoError(t, tier.Set(ctx, NewEntry("aa1", payload, 0)))
	require.NoError(t, tier.Set(ctx, NewEntry("aa2", payload, 0)))
	require.NoError(t, tier.Set(ctx, NewEntry("aa3", payload, 0)))

	// Touch aa1 so aa2 becomes the least recently accessed.
	_, err := tier.Get(ctx, "aa1")
	require.NoError(t, err)

	require.NoError(t, tier.Set(ctx, NewEntry("aa4", payload, 0)))

	_, err = tier.Get(ctx, "aa2")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound, "LRU entry must be evicted")
	_, err = tier.Get(ctx, "aa1")
	assert.NoError(t, err, "recently accessed entry must survive")

	assert.Equal(t, int64(1), tier.Evictions())
}

func TestMemoryTierEntryTooLarge(t *testing.T) {
	tier := NewMemoryTier(1000, 10, 100)
	err := tier.Set(context.Background(), NewEntry("k", make([]byte, 500), 0))
	assert.True(t, errors.IsQuota(err))
}

func TestSessionTierQuotaRejection(t *testing.T) {
	ctx := context.Background()
	tier := NewSessionTier(200, 200)

	require.NoError(t, tier.Set(ctx, NewEntry("a", make([]byte, 150), 0)))

	err := tier.Set(ctx, NewEntry("b", make([]byte, 150), 0))
	assert.True(t, errors.IsQuota(err), "session tier rejects rather than evicts")

	// The first entry is untouched.
	_, err = tier.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestLocalTierSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tier, err := NewLocalTier(dir, 1<<20, 1<<20)
	require.NoError(t, err)
	require.NoError(t, tier.Set(ctx, NewEntry("persist", []byte("payload"), 0)))
	require.NoError(t, tier.Close())

	reopened, err := NewLocalTier(dir, 1<<20, 1<<20)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "persist")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got.Value)
}

func TestBulkTierEvictsLRUForSpace(t *testing.T) {
	ctx := context.Background()
	tier, err := NewBulkTier(ctx, filepath.Join(t.TempDir(), "bulk.db"), 250, 150)
	require.NoError(t, err)
	defer tier.Close()

	payload := make([]byte, 97)
	require.NoError(t, tier.Set(ctx, NewEntry("aa1", payload, 0)))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, tier.Set(ctx, NewEntry("aa2", payload, 0)))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, tier.Set(ctx, NewEntry("aa3", payload, 0)))

	// aa1 has the oldest accessed_at and is evicted to make room.
	_, err = tier.Get(ctx, "aa1")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)

	count, err := tier.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.GreaterOrEqual(t, tier.Evictions(), int64(1))
}

func TestOpenTiersOrderAndSkip(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Local.Dir = t.TempDir()
	cfg.Bulk.Path = filepath.Join(t.TempDir(), "bulk.db")

	tiers, err := OpenTiers(ctx, cfg)
	require.NoError(t, err)
	defer closeTiers(tiers)

	require.Len(t, tiers, 4)
	assert.Equal(t, "memory", tiers[0].Name())
	assert.Equal(t, "session", tiers[1].Name())
	assert.Equal(t, "local", tiers[2].Name())
	assert.Equal(t, "bulk", tiers[3].Name())

	// Durable tiers without a location are skipped.
	tiers, err = OpenTiers(ctx, DefaultConfig())
	require.NoError(t, err)
	defer closeTiers(tiers)
	require.Len(t, tiers, 2)
}
