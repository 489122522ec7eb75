package pipeline

import (
	"fmt"
	"slices"
	"sync"
)

// State is a pipeline driver state.
type State string

const (
	StateIdle           State = "idle"
	StateDiscovering    State = "discovering"
	StateTransforming   State = "transforming"
	StatePostProcessing State = "post_processing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

var transitions = map[State][]State{
	StateIdle:           {StateDiscovering, StateFailed},
	StateDiscovering:    {StateTransforming, StateFailed},
	StateTransforming:   {StatePostProcessing, StateFailed},
	StatePostProcessing: {StateDone, StateFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// machine guards the current state. History keeps every state entered.
type machine struct {
	mu      sync.Mutex
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StateIdle, history: []State{StateIdle}}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state, to) {
		return fmt.Errorf("illegal state transition %s -> %s", m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

func (m *machine) trail() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}
