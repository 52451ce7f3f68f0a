package sync

import (
	"slices"
	"time"
)

// State is the manager's position in the sync cycle.
type State string

const (
	StateIdle       State = "IDLE"
	StatePulling    State = "PULLING"
	StateCommitting State = "COMMITTING"
	StatePushing    State = "PUSHING"
	StateConflict   State = "CONFLICT"
	StateError      State = "ERROR"
)

// transitions lists the allowed successors of each state.
//
// Besides the cycle itself: IDLE and ERROR enter CONFLICT directly when
// preparing the repository finds an unmerged work tree or persisted
// conflicts, and COMMITTING returns to IDLE when git had nothing to commit.
var transitions = map[State][]State{
	StateIdle:       {StatePulling, StateConflict, StateError},
	StatePulling:    {StateIdle, StateCommitting, StateConflict, StateError},
	StateCommitting: {StatePushing, StateIdle, StateError},
	StatePushing:    {StateIdle, StateConflict, StateError},
	StateConflict:   {StateIdle, StateConflict, StateError},
	StateError:      {StateIdle, StateConflict, StateError},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Status is an immutable snapshot of a Manager, emitted on every transition.
type Status struct {
	State State
	// PendingChanges counts changed paths not yet committed.
	PendingChanges int
	// LastSyncedAt is the end of the last successful cycle (zero if never).
	LastSyncedAt time.Time
	// LastError is the failure that put the manager in ERROR.
	LastError error
	// Conflicts lists conflicted paths while in CONFLICT.
	Conflicts []string
	// Deferred lists paths skipped because another owner holds their lock.
	Deferred []string
}

func (s Status) clone() Status {
	s.Conflicts = slices.Clone(s.Conflicts)
	s.Deferred = slices.Clone(s.Deferred)
	return s
}

// EventKind identifies a Manager notification.
type EventKind string

const (
	// EventStatus carries a Status after each transition.
	EventStatus EventKind = "status"
	// EventError carries a cycle failure.
	EventError EventKind = "error"
	// EventConflict carries the conflicted paths when CONFLICT is entered.
	EventConflict EventKind = "conflict"
)

// Event is the payload delivered to subscribers. Only the field matching
// Kind is meaningful.
type Event struct {
	Kind      EventKind
	Status    Status
	Err       error
	Conflicts []string
}
