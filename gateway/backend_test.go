package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackendStateTransitions(t *testing.T) {
	t.Parallel()
	s := NewBackendState()
	require.Equal(t, BackendDown, s.Snapshot().Status)

	require.True(t, s.MarkReconnecting())
	require.False(t, s.MarkReconnecting(), "second reconnecting call is not a transition")
	require.Equal(t, 2, s.Snapshot().ReconnectAttempts)

	now := time.Now()
	require.True(t, s.MarkConnected(now))
	snap := s.Snapshot()
	require.Equal(t, BackendConnected, snap.Status)
	require.Zero(t, snap.ReconnectAttempts, "connecting resets the reconnect counter")
	require.WithinDuration(t, now, snap.LastSeen, time.Millisecond)

	require.True(t, s.MarkDown())
	require.False(t, s.MarkDown())
}
