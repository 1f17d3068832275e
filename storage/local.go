package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/c360/perfkit/errors"
)

// LocalTier is the durable local key/value tier: one JSON file per entry
// under a data directory, surviving process restarts. Capacity overruns are
// rejected with a quota error rather than evicted, mirroring the durable
// local store it stands in for. Access bookkeeping is kept in an in-memory
// index and flushed on sweep and close so the read path stays cheap.
type LocalTier struct {
	mu        sync.Mutex
	dir       string
	maxBytes  int64
	maxEntry  int64
	usedBytes int64
	index     map[string]*Entry // metadata only, Value nil
	dirty     map[string]bool   // keys with unflushed bookkeeping
}

// NewLocalTier opens (or creates) a durable tier rooted at dir, rebuilding
// the index from existing entry files.
func NewLocalTier(dir string, maxBytes, maxEntry int64) (*LocalTier, error) {
	if dir == "" {
		return nil, errors.WrapPermanent(errors.ErrMissingConfig, "localTier", "New", "resolve data directory")
	}
	if maxBytes <= 0 {
		maxBytes = 50 << 20 // 50 MiB
	}
	if maxEntry <= 0 || maxEntry > maxBytes {
		maxEntry = maxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapTransient(err, "localTier", "New", "create data directory")
	}

	t := &LocalTier{
		dir:      dir,
		maxBytes: maxBytes,
		maxEntry: maxEntry,
		index:    make(map[string]*Entry),
		dirty:    make(map[string]bool),
	}
	if err := t.loadIndex(); err != nil {
		return nil, err
	}
	return t, nil
}

// loadIndex rebuilds entry metadata from the data directory. Unreadable
// files are skipped; durable cache data is a derivation, never the source
// of truth.
func (t *LocalTier) loadIndex() error {
	files, err := os.ReadDir(t.dir)
	if err != nil {
		return errors.WrapTransient(err, "localTier", "loadIndex", "read data directory")
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := t.readFile(filepath.Join(t.dir, f.Name()))
		if err != nil {
			continue
		}
		meta := *entry
		meta.Value = nil
		t.index[entry.Key] = &meta
		t.usedBytes += entry.SizeBytes
	}
	return nil
}

func (t *LocalTier) path(key string) string {
	return filepath.Join(t.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+".json")
}

func (t *LocalTier) readFile(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (t *LocalTier) writeFile(e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp := t.path(e.Key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, t.path(e.Key))
}

// Name implements Tier.
func (t *LocalTier) Name() string { return "local" }

// Get implements Tier.
func (t *LocalTier) Get(_ context.Context, key string) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	meta, ok := t.index[key]
	if !ok || meta.IsExpired() {
		return nil, errors.ErrKeyNotFound
	}

	entry, err := t.readFile(t.path(key))
	if err != nil {
		// Index drift: file vanished underneath us. Drop the stale entry.
		delete(t.index, key)
		t.usedBytes -= meta.SizeBytes
		return nil, errors.ErrKeyNotFound
	}

	meta.Touch()
	t.dirty[key] = true
	entry.AccessCount = meta.AccessCount
	entry.AccessedAt = meta.AccessedAt
	return entry, nil
}

// Set implements Tier.
func (t *LocalTier) Set(_ context.Context, e *Entry) error {
	if e.SizeBytes > t.maxEntry {
		return errors.WrapQuota(errors.ErrEntryTooLarge, "localTier", "Set", "admit entry")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	projected := t.usedBytes + e.SizeBytes
	if old, ok := t.index[e.Key]; ok {
		projected -= old.SizeBytes
	}
	if projected > t.maxBytes {
		return errors.WrapQuota(errors.ErrQuotaExceeded, "localTier", "Set", "admit entry")
	}

	if err := t.writeFile(e); err != nil {
		return errors.WrapTransient(err, "localTier", "Set", "write entry file")
	}

	if old, ok := t.index[e.Key]; ok {
		t.usedBytes -= old.SizeBytes
	}
	meta := *e
	meta.Value = nil
	t.index[e.Key] = &meta
	t.usedBytes += e.SizeBytes
	delete(t.dirty, e.Key)
	return nil
}

// Delete implements Tier.
func (t *LocalTier) Delete(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleteLocked(key)
}

func (t *LocalTier) deleteLocked(key string) (bool, error) {
	meta, ok := t.index[key]
	if !ok {
		return false, nil
	}
	if err := os.Remove(t.path(key)); err != nil && !os.IsNotExist(err) {
		return false, errors.WrapTransient(err, "localTier", "Delete", "remove entry file")
	}
	delete(t.index, key)
	delete(t.dirty, key)
	t.usedBytes -= meta.SizeBytes
	return true, nil
}

// Clear implements Tier.
func (t *LocalTier) Clear(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.index {
		if _, err := t.deleteLocked(key); err != nil {
			return err
		}
	}
	return nil
}

// Keys implements Tier.
func (t *LocalTier) Keys(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.index))
	for k := range t.index {
		keys = append(keys, k)
	}
	return keys, nil
}

// Entries implements Tier. Values are omitted; use Get for bytes.
func (t *LocalTier) Entries(_ context.Context) ([]*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]*Entry, 0, len(t.index))
	for _, meta := range t.index {
		cp := *meta
		entries = append(entries, &cp)
	}
	return entries, nil
}

// Count implements Tier.
func (t *LocalTier) Count(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index), nil
}

// SizeBytes implements Tier.
func (t *LocalTier) SizeBytes(_ context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usedBytes, nil
}

// CleanExpired implements Tier. Also flushes pending access bookkeeping.
func (t *LocalTier) CleanExpired(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, meta := range t.index {
		if meta.IsExpired() {
			if ok, err := t.deleteLocked(key); err == nil && ok {
				removed++
			}
		}
	}
	t.flushDirtyLocked()
	return removed, nil
}

// flushDirtyLocked persists touched bookkeeping back to entry files.
func (t *LocalTier) flushDirtyLocked() {
	for key := range t.dirty {
		meta, ok := t.index[key]
		if !ok {
			delete(t.dirty, key)
			continue
		}
		entry, err := t.readFile(t.path(key))
		if err != nil {
			delete(t.dirty, key)
			continue
		}
		entry.AccessCount = meta.AccessCount
		entry.AccessedAt = meta.AccessedAt
		if err := t.writeFile(entry); err == nil {
			delete(t.dirty, key)
		}
	}
}

// Close implements Tier, flushing pending bookkeeping.
func (t *LocalTier) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushDirtyLocked()
	return nil
}
