package session

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// State is the lifecycle state of a Session.
type State uint8

const (
	// Uninitialized sessions accept inputs but cannot compute.
	Uninitialized State = iota
	// Running sessions compute.
	Running
	// ShutDown is terminal.
	ShutDown
	numStates
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Running:
		return "RUNNING"
	case ShutDown:
		return "SHUT_DOWN"
	}
	return "UNKNOWN"
}

// machine holds a session's state and the transitions allowed out of each
// state.
type machine struct {
	mu      sync.RWMutex
	id      string
	current State
	allowed [numStates][numStates]bool
}

func newMachine(id string) *machine {
	m := &machine{id: id, current: Uninitialized}
	m.allow(Uninitialized, Running, ShutDown)
	m.allow(Running, ShutDown)
	return m
}

func (m *machine) allow(from State, to ...State) {
	for _, t := range to {
		m.allowed[from][t] = true
	}
}

func (m *machine) get() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// update moves to next if the transition is valid. Callers serialise
// updates with the session lock.
func (m *machine) update(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.allowed[m.current][next] {
		return errors.Errorf("session %s: not a valid state change from %s to %s",
			m.id, m.current, next)
	}
	jww.DEBUG.Printf("session %s: %s -> %s", m.id, m.current, next)
	m.current = next
	return nil
}
