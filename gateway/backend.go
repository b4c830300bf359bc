package gateway

import (
	"sync"
	"time"
)

// BackendStatus enumerates the plexus-backend connection states tracked by
// the gateway, the SUPPLEMENTED feature of SPEC_FULL.md grounded on
// original_source/src/activations/registry/types.rs's BackendSource/
// BackendInfo/RegistryEvent shape, trimmed to the single upstream plexus a
// gateway proxies to.
type BackendStatus string

const (
	BackendConnected    BackendStatus = "connected"
	BackendReconnecting BackendStatus = "reconnecting"
	BackendDown         BackendStatus = "down"
)

// BackendState is the gateway's view of its one upstream plexus connection:
// current status, when it was last seen healthy, and how many reconnect
// attempts have been made since.
type BackendState struct {
	mu                sync.RWMutex
	status            BackendStatus
	lastSeen          time.Time
	reconnectAttempts int
}

// NewBackendState starts in BackendDown until the first successful connect.
func NewBackendState() *BackendState {
	return &BackendState{status: BackendDown}
}

// Snapshot is an immutable read of BackendState, suitable for JSON encoding
// in a gateway_status MCP logging notification.
type Snapshot struct {
	Status            BackendStatus `json:"status"`
	LastSeen          time.Time     `json:"last_seen,omitempty"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
}

func (s *BackendState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Status: s.status, LastSeen: s.lastSeen, ReconnectAttempts: s.reconnectAttempts}
}

// MarkConnected transitions to BackendConnected and resets the reconnect
// counter. Returns true if this is a transition (status actually changed),
// the signal callers use to decide whether to emit a gateway_status
// notification.
func (s *BackendState) MarkConnected(at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.status != BackendConnected
	s.status = BackendConnected
	s.lastSeen = at
	s.reconnectAttempts = 0
	return changed
}

// MarkReconnecting transitions to BackendReconnecting (from Connected or
// Down) and bumps the attempt counter. Returns true on a status transition.
func (s *BackendState) MarkReconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.status != BackendReconnecting
	s.status = BackendReconnecting
	s.reconnectAttempts++
	return changed
}

// MarkDown transitions to BackendDown, the terminal state after reconnection
// has been abandoned (e.g. the gateway is shutting down).
func (s *BackendState) MarkDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.status != BackendDown
	s.status = BackendDown
	return changed
}
