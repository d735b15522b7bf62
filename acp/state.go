package acp

import "sync"

// ClientState represents the lifecycle state of the protocol client.
// Transitions are NotStarted -> Running -> Stopped; Stopped is terminal.
type ClientState int

const (
	ClientStateNotStarted ClientState = iota
	ClientStateRunning
	ClientStateStopped
)

func (s ClientState) String() string {
	switch s {
	case ClientStateNotStarted:
		return "not_started"
	case ClientStateRunning:
		return "running"
	case ClientStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// clientStateManager manages thread-safe client state transitions.
type clientStateManager struct {
	mu    sync.RWMutex
	state ClientState
}

func newClientStateManager() *clientStateManager {
	return &clientStateManager{state: ClientStateNotStarted}
}

func (m *clientStateManager) Current() ClientState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *clientStateManager) SetRunning() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case ClientStateRunning:
		return ErrAlreadyStarted
	case ClientStateStopped:
		return ErrClientStopped
	}
	m.state = ClientStateRunning
	return nil
}

// SetStopped transitions to Stopped and reports whether this call performed
// the transition. A second call is a no-op, which makes Stop idempotent.
func (m *clientStateManager) SetStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == ClientStateStopped {
		return false
	}
	m.state = ClientStateStopped
	return true
}
