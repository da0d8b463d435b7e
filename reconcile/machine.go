package reconcile

import (
	"errors"
	"sync"
)

// ErrNoMutation signals Settle was called with nothing in flight.
var ErrNoMutation = errors.New("reconcile: no mutation in flight")

// Phase is the state of a screen with respect to its mutations.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseMutating   Phase = "mutating"
	PhaseConfirmed  Phase = "confirmed"
	PhaseRolledBack Phase = "rolledBack"
)

// Machine drives a screen through idle -> mutating -> confirmed|rolledBack.
// Several mutations may overlap; the phase turns terminal once the last one
// settles, and is rolledBack if any of them rolled back.
type Machine struct {
	mu         sync.Mutex
	phase      Phase
	inFlight   int
	rolledBack bool
	subs       map[int]func(Phase)
	nextSub    int
}

// NewMachine returns a machine in PhaseIdle.
func NewMachine() *Machine {
	return &Machine{phase: PhaseIdle, subs: make(map[int]func(Phase))}
}

// Begin records a mutation entering flight.
func (m *Machine) Begin() {
	m.mu.Lock()
	m.inFlight++
	if m.phase == PhaseMutating {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseMutating
	m.rolledBack = false
	m.notify()
}

// Settle records a mutation leaving flight.
func (m *Machine) Settle(ok bool) error {
	m.mu.Lock()
	if m.inFlight == 0 {
		m.mu.Unlock()
		return ErrNoMutation
	}
	m.inFlight--
	if !ok {
		m.rolledBack = true
	}
	if m.inFlight > 0 {
		m.mu.Unlock()
		return nil
	}
	if m.rolledBack {
		m.phase = PhaseRolledBack
	} else {
		m.phase = PhaseConfirmed
	}
	m.notify()
	return nil
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// InFlight returns the number of unsettled mutations.
func (m *Machine) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// Subscribe registers fn for phase transitions.
func (m *Machine) Subscribe(fn func(Phase)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// notify releases the lock and calls subscribers.
func (m *Machine) notify() {
	phase := m.phase
	subs := make([]func(Phase), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(phase)
	}
}
