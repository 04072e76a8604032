package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatlist/internal/bus"
)

// State represents the daemon's session state.
type State string

const (
	Booting    State = "BOOTING"
	SignedOut  State = "SIGNED_OUT"
	Connecting State = "CONNECTING"
	Syncing    State = "SYNCING"
	Ready      State = "READY"
	Error      State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:    {SignedOut, Connecting, Error},
	SignedOut:  {Connecting, Error},
	Connecting: {Syncing, SignedOut, Error},
	Syncing:    {Ready, SignedOut, Error},
	Ready:      {SignedOut, Error},
	Error:      {SignedOut},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.NewEvent(bus.KindStatusChanged, StatusChange{From: from, To: to}))
	return nil
}

// Reset moves the machine to SignedOut. Every other state may sign out directly.
func (m *Machine) Reset() {
	if m.Current() != SignedOut {
		_ = m.Transition(SignedOut)
	}
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
