package updater

import (
	"fmt"
	"sync"
)

// State is a phase of the update cycle.
type State string

const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateNoUpdate    State = "no_update"
	StateAvailable   State = "available"
	StateSkipped     State = "skipped"
	StateDownloading State = "downloading"
	StateDownloaded  State = "downloaded"
	StateInstalling  State = "installing"
	StateDeferred    State = "deferred"
	StateError       State = "error"
)

// AllStates lists every state in cycle order.
var AllStates = []State{
	StateIdle, StateChecking, StateNoUpdate, StateAvailable, StateSkipped,
	StateDownloading, StateDownloaded, StateInstalling, StateDeferred, StateError,
}

var transitions = map[State][]State{
	StateIdle:        {StateChecking},
	StateChecking:    {StateNoUpdate, StateAvailable, StateError, StateIdle},
	StateNoUpdate:    {StateIdle},
	StateAvailable:   {StateDownloading, StateSkipped},
	StateSkipped:     {StateIdle},
	StateDownloading: {StateDownloaded, StateError},
	StateDownloaded:  {StateInstalling, StateDeferred},
	StateInstalling:  {StateDeferred},
	StateError:       {StateIdle},
}

// CanTransition reports whether from -> to is allowed. Deferred is terminal
// for the lifetime of the process.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError reports a transition outside the whitelist.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal update state transition %s -> %s", e.From, e.To)
}

// Machine holds the current state. It is safe for concurrent readers; the
// controller is the only writer.
type Machine struct {
	mu        sync.RWMutex
	state     State
	listeners []func(from, to State)
}

// NewMachine starts in StateIdle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe registers fn for every successful transition. fn runs on the
// goroutine that made the transition.
func (m *Machine) Subscribe(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Transition moves to the given state or returns a *TransitionError leaving
// the state unchanged.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	m.state = to
	listeners := append([]func(from, to State){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(from, to)
	}
	return nil
}
