package storage

import (
	"context"
	"sync"

	"github.com/c360/perfkit/errors"
)

// SessionTier is the session-scoped key/value tier: larger than the memory
// tier but gone when the process ends. Like the platform store it mirrors,
// it does not evict on its own — a write that would exceed the byte budget
// is rejected with a quota error so the caller cascades to the next tier.
type SessionTier struct {
	mu        sync.RWMutex
	maxBytes  int64
	maxEntry  int64
	usedBytes int64
	items     map[string]*Entry
}

// NewSessionTier creates a session-scoped tier.
func NewSessionTier(maxBytes, maxEntry int64) *SessionTier {
	if maxBytes <= 0 {
		maxBytes = 10 << 20 // 10 MiB
	}
	if maxEntry <= 0 || maxEntry > maxBytes {
		maxEntry = maxBytes
	}
	return &SessionTier{
		maxBytes: maxBytes,
		maxEntry: maxEntry,
		items:    make(map[string]*Entry),
	}
}

// Name implements Tier.
func (t *SessionTier) Name() string { return "session" }

// Get implements Tier.
func (t *SessionTier) Get(_ context.Context, key string) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.items[key]
	if !ok || entry.IsExpired() {
		return nil, errors.ErrKeyNotFound
	}
	entry.Touch()
	return entry, nil
}

// Set implements Tier. Rejects with a quota error instead of evicting.
func (t *SessionTier) Set(_ context.Context, e *Entry) error {
	if e.SizeBytes > t.maxEntry {
		return errors.WrapQuota(errors.ErrEntryTooLarge, "sessionTier", "Set", "admit entry")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	projected := t.usedBytes + e.SizeBytes
	if old, ok := t.items[e.Key]; ok {
		projected -= old.SizeBytes
	}
	if projected > t.maxBytes {
		return errors.WrapQuota(errors.ErrQuotaExceeded, "sessionTier", "Set", "admit entry")
	}

	if old, ok := t.items[e.Key]; ok {
		t.usedBytes -= old.SizeBytes
	}
	t.items[e.Key] = e
	t.usedBytes += e.SizeBytes
	return nil
}

// Delete implements Tier.
func (t *SessionTier) Delete(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.items[key]
	if !ok {
		return false, nil
	}
	delete(t.items, key)
	t.usedBytes -= entry.SizeBytes
	return true, nil
}

// Clear implements Tier.
func (t *SessionTier) Clear(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[string]*Entry)
	t.usedBytes = 0
	return nil
}

// Keys implements Tier.
func (t *SessionTier) Keys(_ context.Context) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	return keys, nil
}

// Entries implements Tier.
func (t *SessionTier) Entries(_ context.Context) ([]*Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]*Entry, 0, len(t.items))
	for _, e := range t.items {
		cp := *e
		entries = append(entries, &cp)
	}
	return entries, nil
}

// Count implements Tier.
func (t *SessionTier) Count(_ context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items), nil
}

// SizeBytes implements Tier.
func (t *SessionTier) SizeBytes(_ context.Context) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.usedBytes, nil
}

// CleanExpired implements Tier.
func (t *SessionTier) CleanExpired(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, entry := range t.items {
		if entry.IsExpired() {
			delete(t.items, k)
			t.usedBytes -= entry.SizeBytes
			removed++
		}
	}
	return removed, nil
}

// Close implements Tier.
func (t *SessionTier) Close() error { return nil }
