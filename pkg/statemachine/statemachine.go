package statemachine

import "fmt"

// Guard decides whether a transition from the given state may proceed.
// A non-nil error rejects the transition.
type Guard[S comparable] func(from S) error

type key[S, E comparable] struct {
	from  S
	event E
}

type transition[S comparable] struct {
	to     S
	guards []Guard[S]
}

// Machine is a transition table keyed by (state, event).
type Machine[S, E comparable] struct {
	table map[key[S, E]]transition[S]
}

// New creates an empty transition table.
func New[S, E comparable]() *Machine[S, E] {
	return &Machine[S, E]{table: make(map[key[S, E]]transition[S])}
}

// Permit registers a transition. Registering the same (from, event) pair twice panics,
// since tables are declared statically and a duplicate is a programming error.
func (m *Machine[S, E]) Permit(from S, event E, to S, guards ...Guard[S]) *Machine[S, E] {
	k := key[S, E]{from: from, event: event}
	if _, exists := m.table[k]; exists {
		panic(fmt.Sprintf("statemachine: duplicate transition from %v on %v", from, event))
	}
	m.table[k] = transition[S]{to: to, guards: guards}
	return m
}

// Fire returns the target state for event fired from state from.
func (m *Machine[S, E]) Fire(from S, event E) (S, error) {
	t, ok := m.table[key[S, E]{from: from, event: event}]
	if !ok {
		var zero S
		return zero, &NoTransitionError{State: fmt.Sprint(from), Event: fmt.Sprint(event)}
	}

	for _, guard := range t.guards {
		if err := guard(from); err != nil {
			var zero S
			return zero, &RejectedError{State: fmt.Sprint(from), Event: fmt.Sprint(event), Err: err}
		}
	}

	return t.to, nil
}

// CanFire reports whether Fire would succeed.
func (m *Machine[S, E]) CanFire(from S, event E) bool {
	_, err := m.Fire(from, event)
	return err == nil
}

// Events lists the events with a transition defined from state.
func (m *Machine[S, E]) Events(from S) []E {
	var events []E
	for k := range m.table {
		if k.from == from {
			events = append(events, k.event)
		}
	}
	return events
}

// IsFinal reports whether state has no outgoing transitions.
func (m *Machine[S, E]) IsFinal(state S) bool {
	for k := range m.table {
		if k.from == state {
			return false
		}
	}
	return true
}
