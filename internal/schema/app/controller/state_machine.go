package controller

import (
	"fmt"
	"sort"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/domain/lifecycle"
)

// validTransitions defines valid state transitions
var validTransitions = map[lifecycle.State]map[lifecycle.Event]lifecycle.State{
	lifecycle.StateIdle: {
		lifecycle.EventBackup: lifecycle.StateBackedUp,
	},
	lifecycle.StateBackedUp: {
		// Re-snapshotting overwrites the previous snapshots.
		lifecycle.EventBackup:      lifecycle.StateBackedUp,
		lifecycle.EventDeprovision: lifecycle.StateDeprovisioned,
	},
	lifecycle.StateDeprovisioned: {
		lifecycle.EventProvision: lifecycle.StateReprovisioned,
	},
	lifecycle.StateReprovisioned: {
		lifecycle.EventRestore: lifecycle.StateRestored,
	},
	lifecycle.StateRestored: {
		lifecycle.EventBackup:  lifecycle.StateBackedUp,
		lifecycle.EventRestore: lifecycle.StateRestored,
	},
}

// Next returns the state reached from state on event, or an error matching
// index.ErrInvalidTransition.
func Next(state lifecycle.State, event lifecycle.Event) (lifecycle.State, error) {
	transitions, exists := validTransitions[state]
	if !exists {
		return "", fmt.Errorf("%w: unknown state %q", index.ErrInvalidTransition, state)
	}

	next, valid := transitions[event]
	if !valid {
		return "", fmt.Errorf("%w: cannot %s while %s (allowed: %v)", index.ErrInvalidTransition, event, state, AllowedEvents(state))
	}
	return next, nil
}

// CanTransition checks if event is valid from state
func CanTransition(state lifecycle.State, event lifecycle.Event) bool {
	_, err := Next(state, event)
	return err == nil
}

// AllowedEvents lists the commands accepted in state, sorted.
func AllowedEvents(state lifecycle.State) []lifecycle.Event {
	events := make([]lifecycle.Event, 0, len(validTransitions[state]))
	for event := range validTransitions[state] {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}
