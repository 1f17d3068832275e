package recovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfkit/storage"
)

func newTestSessionStore(t *testing.T, durable storage.Tier, maxAge time.Duration) *SessionStore {
	t.Helper()
	s := NewSessionStore(durable, SessionConfig{MaxAge: maxAge})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBackupThenRecover(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, nil, time.Hour)

	payload := json.RawMessage(`{"question":17,"answers":["b","d"]}`)
	id, err := s.Backup(ctx, Snapshot{ID: "quiz-1", Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, "quiz-1", id)

	res, err := s.Recover(ctx, "quiz-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.DataLoss)
	assert.JSONEq(t, string(payload), string(res.Data))
}

func TestBackupAssignsIDWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, nil, time.Hour)

	id, err := s.Backup(ctx, Snapshot{Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	res, err := s.Recover(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRecoverMissingIsDataLossNotError(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, nil, time.Hour)

	res, err := s.Recover(ctx, "never-backed-up")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.DataLoss)
	assert.NotEmpty(t, res.Message)
}

func TestRecoveryAgeBoundary(t *testing.T) {
	ctx := context.Background()
	maxAge := 80 * time.Millisecond
	s := newTestSessionStore(t, nil, maxAge)

	_, err := s.Backup(ctx, Snapshot{ID: "aging", Payload: json.RawMessage(`{"v":1}`)})
	require.NoError(t, err)

	// Just inside the ceiling: recoverable.
	time.Sleep(30 * time.Millisecond)
	res, err := s.Recover(ctx, "aging")
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Past the ceiling: data loss, never an error.
	time.Sleep(80 * time.Millisecond)
	res, err = s.Recover(ctx, "aging")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.DataLoss)
}

func TestRecoverFromDurableTier(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemoryTier(1<<20, 1000, 1<<20)

	first := NewSessionStore(durable, SessionConfig{MaxAge: time.Hour})
	payload := json.RawMessage(`{"page":"review"}`)
	_, err := first.Backup(ctx, Snapshot{ID: "persisted", Payload: payload})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A fresh store sharing the tier simulates a process restart: the
	// memory map is empty but the durable copy survives.
	second := newTestSessionStore(t, durable, time.Hour)
	res, err := second.Recover(ctx, "persisted")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.JSONEq(t, string(payload), string(res.Data))
}

func TestRecoverDiscardsCorruptDurableBackup(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemoryTier(1<<20, 1000, 1<<20)
	require.NoError(t, durable.Set(ctx, storage.NewEntry(sessionKey("broken"), []byte("not json"), 0)))

	s := newTestSessionStore(t, durable, time.Hour)
	res, err := s.Recover(ctx, "broken")
	require.NoError(t, err)
	assert.True(t, res.DataLoss)
}

func TestClearOldPurgesExpiredSnapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, nil, time.Hour)

	_, err := s.Backup(ctx, Snapshot{
		ID:             "ancient",
		Payload:        json.RawMessage(`{}`),
		LastActivityAt: time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	_, err = s.Backup(ctx, Snapshot{ID: "fresh", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	removed, err := s.ClearOld(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	res, err := s.Recover(ctx, "ancient")
	require.NoError(t, err)
	assert.True(t, res.DataLoss)

	res, err = s.Recover(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, res.Success)
}
