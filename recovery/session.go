package recovery

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/storage"
)

// Snapshot is a point-in-time copy of session state.
type Snapshot struct {
	ID             string          `json:"id"`
	Payload        json.RawMessage `json:"payload"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

// RecoveryResult reports the outcome of a recovery attempt. A missing or
// too-old backup is DataLoss=true, never an error: callers branch on the
// flag.
type RecoveryResult struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data,omitempty"`
	DataLoss bool            `json:"data_loss"`
	Message  string          `json:"message"`
}

// SessionStore keeps session snapshots in memory and, when a durable tier
// is supplied, mirrored to it so state survives process restarts.
type SessionStore struct {
	cfg     SessionConfig
	durable storage.Tier
	logger  *slog.Logger
	core    *metric.Core

	mu        sync.Mutex
	snapshots map[string]Snapshot

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithSessionLogger sets the structured logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionMetrics exports backup counters through the perfkit registry.
func WithSessionMetrics(reg *metric.Registry) SessionOption {
	return func(s *SessionStore) {
		if reg != nil {
			s.core = reg.Core
		}
	}
}

// NewSessionStore creates a snapshot store. durable may be nil for a
// memory-only store; when set, the tier is shared with the caller and is
// not closed by Close.
func NewSessionStore(durable storage.Tier, cfg SessionConfig, opts ...SessionOption) *SessionStore {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultSessionConfig().MaxAge
	}

	s := &SessionStore{
		cfg:       cfg,
		durable:   durable,
		logger:    slog.Default(),
		snapshots: make(map[string]Snapshot),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.HousekeepingInterval > 0 {
		go s.housekeeping()
	} else {
		close(s.done)
	}
	return s
}

// Backup stores a snapshot keyed by its session id, assigning one when
// absent, and returns the id. The durable write is best-effort: the
// in-memory copy always succeeds.
func (s *SessionStore) Backup(ctx context.Context, snap Snapshot) (string, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.LastActivityAt.IsZero() {
		snap.LastActivityAt = time.Now()
	}

	s.mu.Lock()
	s.snapshots[snap.ID] = snap
	s.mu.Unlock()

	if s.durable != nil {
		data, err := json.Marshal(snap)
		if err != nil {
			return snap.ID, errors.Wrap(err, "recovery", "Backup", "marshal snapshot")
		}
		entry := storage.NewEntry(sessionKey(snap.ID), data, s.cfg.MaxAge)
		if err := s.durable.Set(ctx, entry); err != nil {
			s.logger.Warn("durable session backup failed, memory copy retained",
				"session", snap.ID, "error", err)
		}
	}

	if s.core != nil {
		s.core.SessionBackups.Inc()
	}
	return snap.ID, nil
}

// Recover returns the backed-up state for a session id. Missing or
// over-age backups come back as DataLoss=true; the error return is
// reserved for storage failures.
func (s *SessionStore) Recover(ctx context.Context, sessionID string) (RecoveryResult, error) {
	snap, found, err := s.lookup(ctx, sessionID)
	if err != nil {
		return RecoveryResult{}, err
	}
	if !found {
		return s.outcome(RecoveryResult{
			DataLoss: true,
			Message:  "no backup found for session",
		}), nil
	}

	if time.Since(snap.LastActivityAt) > s.cfg.MaxAge {
		s.purge(ctx, sessionID)
		return s.outcome(RecoveryResult{
			DataLoss: true,
			Message:  "backup exceeds maximum recovery age",
		}), nil
	}

	return s.outcome(RecoveryResult{
		Success: true,
		Data:    snap.Payload,
		Message: "session restored",
	}), nil
}

// ClearOld purges snapshots older than the recovery age ceiling from both
// stores, returning how many were removed.
func (s *SessionStore) ClearOld(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.MaxAge)

	s.mu.Lock()
	removed := 0
	for id, snap := range s.snapshots {
		if snap.LastActivityAt.Before(cutoff) {
			delete(s.snapshots, id)
			removed++
		}
	}
	s.mu.Unlock()

	if s.durable != nil {
		n, err := s.durable.CleanExpired(ctx)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// Close stops the housekeeping goroutine. The durable tier stays open; it
// belongs to the caller.
func (s *SessionStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.shutdown)
	})
	<-s.done
	return nil
}

func (s *SessionStore) lookup(ctx context.Context, sessionID string) (Snapshot, bool, error) {
	s.mu.Lock()
	snap, ok := s.snapshots[sessionID]
	s.mu.Unlock()
	if ok {
		return snap, true, nil
	}

	if s.durable == nil {
		return Snapshot{}, false, nil
	}
	entry, err := s.durable.Get(ctx, sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	if err := json.Unmarshal(entry.Value, &snap); err != nil {
		// A corrupt backup is unrecoverable state, not an I/O failure.
		s.logger.Warn("discarding corrupt session backup", "session", sessionID, "error", err)
		s.purge(ctx, sessionID)
		return Snapshot{}, false, nil
	}

	// Repopulate the memory copy so subsequent reads stay fast.
	s.mu.Lock()
	s.snapshots[sessionID] = snap
	s.mu.Unlock()
	return snap, true, nil
}

func (s *SessionStore) purge(ctx context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.snapshots, sessionID)
	s.mu.Unlock()
	if s.durable != nil {
		_, _ = s.durable.Delete(ctx, sessionKey(sessionID))
	}
}

func (s *SessionStore) outcome(res RecoveryResult) RecoveryResult {
	if s.core != nil {
		label := "restored"
		if res.DataLoss {
			label = "data_loss"
		}
		s.core.SessionRecoveries.WithLabelValues(label).Inc()
	}
	return res
}

func (s *SessionStore) housekeeping() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.HousekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if removed, err := s.ClearOld(ctx); err != nil {
				s.logger.Warn("session housekeeping failed", "error", err)
			} else if removed > 0 {
				s.logger.Debug("purged expired session backups", "removed", removed)
			}
			cancel()
		}
	}
}

func sessionKey(id string) string { return "session_" + id }
