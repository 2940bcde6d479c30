package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/facilitydesk/chatsync/internal/bus"
)

// State is the process-wide connection state.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Error        State = "error"
	Failed       State = "failed"
)

// validTransitions defines allowed state transitions. Connecting re-enters itself
// each time a backoff timer is armed; Failed only leaves through a manual reset.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connecting, Connected, Error, Failed, Disconnected},
	Connected:    {Disconnected, Connecting, Error},
	Error:        {Connecting, Failed, Disconnected},
	Failed:       {Disconnected},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu       sync.RWMutex
	current  State
	attempts int
	bus      *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current state together with the reconnect attempt counter.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.current, ReconnectAttempts: m.attempts}
}

// SetAttempts records the reconnect attempt counter shown alongside the state.
func (m *Machine) SetAttempts(n int) {
	m.mu.Lock()
	m.attempts = n
	m.mu.Unlock()
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanTransition(m.current, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.ConnStateChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From:     from,
				To:       to,
				Attempts: m.attempts,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From     State `json:"from"`
	To       State `json:"to"`
	Attempts int   `json:"attempts"`
}

// Snapshot is the ConnectionState value exposed to the presentation layer.
type Snapshot struct {
	State             State `json:"state"`
	ReconnectAttempts int   `json:"reconnect_attempts"`
}

// Label is the user-facing description. A connecting state with attempts
// outstanding is surfaced as reconnecting.
func (s Snapshot) Label() string {
	if s.State == Connecting && s.ReconnectAttempts > 0 {
		return fmt.Sprintf("reconnecting (attempt %d)", s.ReconnectAttempts)
	}
	return string(s.State)
}
