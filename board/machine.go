package board

import (
	"sync/atomic"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/model"
)

// Machine holds the current State for a single writer and any number of
// concurrent readers. Every Apply publishes a complete new State.
type Machine struct {
	n     int
	names []string
	state atomic.Pointer[State]
}

// NewMachine creates a machine for n boards seeded with the given check names.
func NewMachine(n int, names []string) *Machine {
	m := &Machine{n: n, names: append([]string(nil), names...)}
	m.Reset()
	return m
}

// Apply folds ev into the current state and returns the new state.
func (m *Machine) Apply(ev model.Event, req checks.Config) State {
	next := Reduce(*m.state.Load(), ev, req)
	m.state.Store(&next)
	return next
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() State {
	return *m.state.Load()
}

// Reset returns every board to untested.
func (m *Machine) Reset() {
	s := NewState(m.n, m.names)
	m.state.Store(&s)
}
