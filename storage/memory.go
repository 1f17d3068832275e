package storage

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/c360/perfkit/errors"
)

// MemoryTier is the fastest, smallest tier: an in-process store with strict
// LRU eviction under both a byte budget and an entry-count budget.
type MemoryTier struct {
	mu         sync.Mutex
	maxBytes   int64
	maxEntries int
	maxEntry   int64
	usedBytes  int64
	items      map[string]*list.Element // key -> recency element
	recency    *list.List               // front = most recently used
	evictions  int64
}

// NewMemoryTier creates an in-process tier. maxEntry bounds a single
// entry's size; zero defaults it to maxBytes.
func NewMemoryTier(maxBytes int64, maxEntries int, maxEntry int64) *MemoryTier {
	if maxBytes <= 0 {
		maxBytes = 5 << 20 // 5 MiB
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if maxEntry <= 0 || maxEntry > maxBytes {
		maxEntry = maxBytes
	}
	return &MemoryTier{
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		maxEntry:   maxEntry,
		items:      make(map[string]*list.Element),
		recency:    list.New(),
	}
}

// Name implements Tier.
func (t *MemoryTier) Name() string { return "memory" }

// Get implements Tier. Expired entries are treated as misses but left in
// place for the sweep.
func (t *MemoryTier) Get(_ context.Context, key string) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.items[key]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	entry := el.Value.(*Entry)
	if entry.IsExpired() {
		return nil, errors.ErrKeyNotFound
	}

	entry.Touch()
	t.recency.MoveToFront(el)
	return entry, nil
}

// Set implements Tier, evicting least-recently-accessed entries until the
// incoming entry fits.
func (t *MemoryTier) Set(_ context.Context, e *Entry) error {
	if e.SizeBytes > t.maxEntry {
		return errors.WrapQuota(errors.ErrEntryTooLarge, "memoryTier", "Set", "admit entry")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.items[e.Key]; ok {
		old := el.Value.(*Entry)
		t.usedBytes -= old.SizeBytes
		el.Value = e
		t.recency.MoveToFront(el)
		t.usedBytes += e.SizeBytes
		t.evictForBudget()
		return nil
	}

	el := t.recency.PushFront(e)
	t.items[e.Key] = el
	t.usedBytes += e.SizeBytes
	t.evictForBudget()
	return nil
}

// evictForBudget removes LRU entries until budgets hold. Must be called
// with the mutex held.
func (t *MemoryTier) evictForBudget() {
	for (t.usedBytes > t.maxBytes || len(t.items) > t.maxEntries) && t.recency.Len() > 0 {
		back := t.recency.Back()
		entry := back.Value.(*Entry)
		t.recency.Remove(back)
		delete(t.items, entry.Key)
		t.usedBytes -= entry.SizeBytes
		atomic.AddInt64(&t.evictions, 1)
	}
}

// Delete implements Tier.
func (t *MemoryTier) Delete(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.items[key]
	if !ok {
		return false, nil
	}
	entry := el.Value.(*Entry)
	t.recency.Remove(el)
	delete(t.items, key)
	t.usedBytes -= entry.SizeBytes
	return true, nil
}

// Clear implements Tier.
func (t *MemoryTier) Clear(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[string]*list.Element)
	t.recency.Init()
	t.usedBytes = 0
	return nil
}

// Keys implements Tier, most recently used first.
func (t *MemoryTier) Keys(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.items))
	for el := t.recency.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*Entry).Key)
	}
	return keys, nil
}

// Entries implements Tier.
func (t *MemoryTier) Entries(_ context.Context) ([]*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]*Entry, 0, len(t.items))
	for el := t.recency.Front(); el != nil; el = el.Next() {
		cp := *el.Value.(*Entry)
		entries = append(entries, &cp)
	}
	return entries, nil
}

// Count implements Tier.
func (t *MemoryTier) Count(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items), nil
}

// SizeBytes implements Tier.
func (t *MemoryTier) SizeBytes(_ context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usedBytes, nil
}

// CleanExpired implements Tier.
func (t *MemoryTier) CleanExpired(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for el := t.recency.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*Entry)
		if entry.IsExpired() {
			t.recency.Remove(el)
			delete(t.items, entry.Key)
			t.usedBytes -= entry.SizeBytes
			removed++
		}
		el = next
	}
	return removed, nil
}

// Close implements Tier. The memory tier holds no external resources.
func (t *MemoryTier) Close() error { return nil }

// Evictions implements EvictionCounter.
func (t *MemoryTier) Evictions() int64 {
	return atomic.LoadInt64(&t.evictions)
}
