package mcpsession

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, maxAge time.Duration) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "sessions.db"), maxAge)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateSessionThenHasSessionReportsLive(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-1"))

	ok, err := s.HasSession(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHasSessionUnknownReturnsFalse(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)

	ok, err := s.HasSession(context.Background(), "never-created")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestHasSessionDeletesStaleRow mirrors mcp_session.rs's has_session: a
// session row with no live worker behind it (the worker map entry was never
// created in this process, e.g. after a restart) is reported absent AND
// removed from the database so a second call doesn't re-discover it.
func TestHasSessionDeletesStaleRow(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-2"))
	// Simulate the worker dying without CloseSession being called: drop the
	// in-memory marker directly while the database row remains.
	s.mu.Lock()
	delete(s.workers, "sess-2")
	s.mu.Unlock()

	ok, err := s.HasSession(ctx, "sess-2")
	require.NoError(t, err)
	require.False(t, ok)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCloseSessionRemovesWorkerAndRow(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-3"))
	require.NoError(t, s.CloseSession(ctx, "sess-3"))

	ok, err := s.HasSession(ctx, "sess-3")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTouchUpdatesLastSeen(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-4"))
	require.NoError(t, s.Touch(ctx, "sess-4"))
}

func TestCleanupOldSessionsPurgesExpiredRows(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-5"))
	time.Sleep(5 * time.Millisecond)

	n, err := s.CleanupOldSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestOpenRunsStartupCleanup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.db")
	ctx := context.Background()

	s1, err := Open(ctx, path, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s1.CreateSession(ctx, "old-sess"))
	require.NoError(t, s1.Close())

	time.Sleep(5 * time.Millisecond)

	s2, err := Open(ctx, path, time.Millisecond)
	require.NoError(t, err)
	defer s2.Close()

	count, err := s2.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}
