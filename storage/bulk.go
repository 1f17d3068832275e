package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/c360/perfkit/errors"
)

// BulkTier is the slowest, largest tier: a structured store on SQLite for
// bulk entries. As the last tier in the cascade it evicts
// least-recently-accessed rows to admit new writes instead of rejecting
// them, so a value only fails to cache when it cannot fit anywhere.
type BulkTier struct {
	db        *sql.DB
	maxBytes  int64
	maxEntry  int64
	evictions int64
}

const bulkSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key          TEXT PRIMARY KEY,
	value        BLOB NOT NULL,
	created_at   INTEGER NOT NULL,
	ttl_ns       INTEGER NOT NULL,
	access_count INTEGER NOT NULL,
	accessed_at  INTEGER NOT NULL,
	size_bytes   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_accessed ON cache_entries(accessed_at);
`

// NewBulkTier opens (or creates) the SQLite-backed tier at path. Use
// ":memory:" for tests.
func NewBulkTier(ctx context.Context, path string, maxBytes, maxEntry int64) (*BulkTier, error) {
	if path == "" {
		return nil, errors.WrapPermanent(errors.ErrMissingConfig, "bulkTier", "New", "resolve database path")
	}
	if maxBytes <= 0 {
		maxBytes = 200 << 20 // 200 MiB
	}
	if maxEntry <= 0 || maxEntry > maxBytes {
		maxEntry = maxBytes
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapTransient(err, "bulkTier", "New", "open database")
	}
	// SQLite serializes writers; a single connection avoids lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, bulkSchema); err != nil {
		_ = db.Close()
		return nil, errors.WrapTransient(err, "bulkTier", "New", "apply schema")
	}

	return &BulkTier{db: db, maxBytes: maxBytes, maxEntry: maxEntry}, nil
}

// Name implements Tier.
func (t *BulkTier) Name() string { return "bulk" }

// Get implements Tier.
func (t *BulkTier) Get(ctx context.Context, key string) (*Entry, error) {
	row := t.db.QueryRowContext(ctx,
		`SELECT value, created_at, ttl_ns, access_count, accessed_at, size_bytes
		 FROM cache_entries WHERE key = ?`, key)

	var (
		e         = Entry{Key: key}
		createdNs int64
		ttlNs     int64
		accessNs  int64
	)
	if err := row.Scan(&e.Value, &createdNs, &ttlNs, &e.AccessCount, &accessNs, &e.SizeBytes); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, errors.WrapTransient(err, "bulkTier", "Get", "query entry")
	}
	e.CreatedAt = time.Unix(0, createdNs)
	e.TTL = time.Duration(ttlNs)
	e.AccessedAt = time.Unix(0, accessNs)

	if e.IsExpired() {
		return nil, errors.ErrKeyNotFound
	}

	e.Touch()
	_, err := t.db.ExecContext(ctx,
		`UPDATE cache_entries SET access_count = ?, accessed_at = ? WHERE key = ?`,
		e.AccessCount, e.AccessedAt.UnixNano(), key)
	if err != nil {
		return nil, errors.WrapTransient(err, "bulkTier", "Get", "update bookkeeping")
	}
	return &e, nil
}

// Set implements Tier, evicting LRU rows until the entry fits.
func (t *BulkTier) Set(ctx context.Context, e *Entry) error {
	if e.SizeBytes > t.maxEntry {
		return errors.WrapQuota(errors.ErrEntryTooLarge, "bulkTier", "Set", "admit entry")
	}

	if err := t.evictForBudget(ctx, e); err != nil {
		return err
	}

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, created_at, ttl_ns, access_count, accessed_at, size_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			ttl_ns = excluded.ttl_ns,
			access_count = excluded.access_count,
			accessed_at = excluded.accessed_at,
			size_bytes = excluded.size_bytes`,
		e.Key, e.Value, e.CreatedAt.UnixNano(), int64(e.TTL),
		e.AccessCount, e.AccessedAt.UnixNano(), e.SizeBytes)
	if err != nil {
		return errors.WrapTransient(err, "bulkTier", "Set", "upsert entry")
	}
	return nil
}

// evictForBudget deletes least-recently-accessed rows until the incoming
// entry fits within the byte budget.
func (t *BulkTier) evictForBudget(ctx context.Context, incoming *Entry) error {
	for {
		used, err := t.SizeBytes(ctx)
		if err != nil {
			return err
		}
		var existing int64
		row := t.db.QueryRowContext(ctx,
			`SELECT COALESCE(size_bytes, 0) FROM cache_entries WHERE key = ?`, incoming.Key)
		_ = row.Scan(&existing)

		if used-existing+incoming.SizeBytes <= t.maxBytes {
			return nil
		}

		res, err := t.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE key = (
				SELECT key FROM cache_entries WHERE key != ?
				ORDER BY accessed_at ASC LIMIT 1)`, incoming.Key)
		if err != nil {
			return errors.WrapTransient(err, "bulkTier", "Set", "evict entry")
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return errors.WrapQuota(errors.ErrQuotaExceeded, "bulkTier", "Set", "admit entry")
		}
		atomic.AddInt64(&t.evictions, n)
	}
}

// Delete implements Tier.
func (t *BulkTier) Delete(ctx context.Context, key string) (bool, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return false, errors.WrapTransient(err, "bulkTier", "Delete", "delete entry")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Clear implements Tier.
func (t *BulkTier) Clear(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return errors.WrapTransient(err, "bulkTier", "Clear", "delete entries")
	}
	return nil
}

// Keys implements Tier.
func (t *BulkTier) Keys(ctx context.Context) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT key FROM cache_entries`)
	if err != nil {
		return nil, errors.WrapTransient(err, "bulkTier", "Keys", "query keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.WrapTransient(err, "bulkTier", "Keys", "scan key")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Entries implements Tier. Values are omitted; use Get for bytes.
func (t *BulkTier) Entries(ctx context.Context) ([]*Entry, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT key, created_at, ttl_ns, access_count, accessed_at, size_bytes FROM cache_entries`)
	if err != nil {
		return nil, errors.WrapTransient(err, "bulkTier", "Entries", "query entries")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e         Entry
			createdNs int64
			ttlNs     int64
			accessNs  int64
		)
		if err := rows.Scan(&e.Key, &createdNs, &ttlNs, &e.AccessCount, &accessNs, &e.SizeBytes); err != nil {
			return nil, errors.WrapTransient(err, "bulkTier", "Entries", "scan entry")
		}
		e.CreatedAt = time.Unix(0, createdNs)
		e.TTL = time.Duration(ttlNs)
		e.AccessedAt = time.Unix(0, accessNs)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Count implements Tier.
func (t *BulkTier) Count(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	if err != nil {
		return 0, errors.WrapTransient(err, "bulkTier", "Count", "count entries")
	}
	return n, nil
}

// SizeBytes implements Tier.
func (t *BulkTier) SizeBytes(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := t.db.QueryRowContext(ctx, `SELECT SUM(size_bytes) FROM cache_entries`).Scan(&total)
	if err != nil {
		return 0, errors.WrapTransient(err, "bulkTier", "SizeBytes", "sum sizes")
	}
	return total.Int64, nil
}

// CleanExpired implements Tier.
func (t *BulkTier) CleanExpired(ctx context.Context) (int, error) {
	now := time.Now().UnixNano()
	res, err := t.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE ttl_ns > 0 AND created_at + ttl_ns < ?`, now)
	if err != nil {
		return 0, errors.WrapTransient(err, "bulkTier", "CleanExpired", "delete expired")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close implements Tier.
func (t *BulkTier) Close() error {
	return t.db.Close()
}

// Evictions implements EvictionCounter.
func (t *BulkTier) Evictions() int64 {
	return atomic.LoadInt64(&t.evictions)
}
