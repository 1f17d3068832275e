// Package storage provides the ranked storage tiers backing the cache
// manager and session backup: an in-process LRU tier, a session-scoped
// tier, a durable local file tier, and a larger-capacity structured tier
// on SQLite.
//
// Tiers are tried in rank order on read (fastest first); on write a tier
// may reject an entry for capacity reasons with errors.ErrQuotaExceeded,
// in which case the caller cascades to the next tier. Within a tier,
// reads observe the latest write; there is no cross-tier consistency.
package storage

import (
	"context"
	"time"
)

// Entry is one cached value with its bookkeeping. SizeBytes is computed at
// write time and never exceeds the owning tier's per-entry capacity.
type Entry struct {
	Key         string        `json:"key"`
	Value       []byte        `json:"value"`
	CreatedAt   time.Time     `json:"created_at"`
	TTL         time.Duration `json:"ttl"` // 0 = never expires
	AccessCount int64         `json:"access_count"`
	AccessedAt  time.Time     `json:"accessed_at"`
	SizeBytes   int64         `json:"size_bytes"`
}

// IsExpired reports whether the entry's TTL has elapsed.
func (e *Entry) IsExpired() bool {
	if e.TTL <= 0 {
		return false
	}
	return time.Now().After(e.CreatedAt.Add(e.TTL))
}

// Touch updates access bookkeeping for a read hit.
func (e *Entry) Touch() {
	e.AccessCount++
	e.AccessedAt = time.Now()
}

// NewEntry creates an entry with write-time bookkeeping filled in.
func NewEntry(key string, value []byte, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		TTL:        ttl,
		AccessedAt: now,
		SizeBytes:  int64(len(value)) + int64(len(key)),
	}
}

// Tier is one ranked storage backend. All implementations are safe for
// concurrent use. Get updates access bookkeeping on a live hit; expired
// entries are reported as errors.ErrKeyNotFound but reclaimed only by
// CleanExpired, keeping the read path cheap.
type Tier interface {
	// Name identifies the tier in logs and metrics.
	Name() string

	// Get retrieves a live entry by key. Returns errors.ErrKeyNotFound
	// for missing or expired keys.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores an entry. Returns errors.ErrQuotaExceeded when the tier
	// cannot make room and errors.ErrEntryTooLarge when the entry alone
	// exceeds the tier's per-entry capacity.
	Set(ctx context.Context, e *Entry) error

	// Delete removes an entry by key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Keys lists all keys, including entries that have expired but not
	// yet been swept.
	Keys(ctx context.Context) ([]string, error)

	// Entries returns a snapshot of entry metadata without updating
	// access bookkeeping. Implementations may omit Value; callers that
	// need bytes use Get.
	Entries(ctx context.Context) ([]*Entry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// SizeBytes returns the total stored size.
	SizeBytes(ctx context.Context) (int64, error)

	// CleanExpired removes expired entries, returning how many were
	// reclaimed.
	CleanExpired(ctx context.Context) (int, error)

	// Close releases tier resources.
	Close() error
}

// EvictionCounter is implemented by tiers that evict entries internally
// to satisfy capacity constraints.
type EvictionCounter interface {
	Evictions() int64
}
