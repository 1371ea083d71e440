// Package state defines the per-run account state machine.
package state

import "fmt"

// RunState represents how far a single account run has progressed.
type RunState int

const (
	// StateInit is the initial state before any browser work happens.
	StateInit RunState = iota
	// StateNavigated indicates the messaging client's web root is open.
	StateNavigated
	// StateGroupJoined indicates the group invite was sent and the chat entry clicked.
	StateGroupJoined
	// StateAppOpened indicates the mini-app frame is open and focused.
	StateAppOpened
	// StateQuestsChecked indicates the one-time quests were executed or skipped.
	StateQuestsChecked
	// StateFarmed indicates the farming/claim pass finished.
	StateFarmed
	// StateBalanceRead indicates username and balance were read into the ledger.
	StateBalanceRead
	// StateDone is the normal terminal state.
	StateDone
	// StateErrored is the failure terminal state, reachable from any non-terminal state.
	StateErrored
)

// String returns the string representation of the state.
func (s RunState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateNavigated:
		return "Navigated"
	case StateGroupJoined:
		return "GroupJoined"
	case StateAppOpened:
		return "AppOpened"
	case StateQuestsChecked:
		return "QuestsChecked"
	case StateFarmed:
		return "Farmed"
	case StateBalanceRead:
		return "BalanceRead"
	case StateDone:
		return "Done"
	case StateErrored:
		return "Errored"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines the allowed state transitions.
// The happy path is strictly linear; Errored is reachable from every
// non-terminal state and is handled in CanTransitionTo.
var validTransitions = map[RunState][]RunState{
	StateInit:          {StateNavigated},
	StateNavigated:     {StateGroupJoined},
	StateGroupJoined:   {StateAppOpened},
	StateAppOpened:     {StateQuestsChecked},
	StateQuestsChecked: {StateFarmed},
	StateFarmed:        {StateBalanceRead},
	StateBalanceRead:   {StateDone},
	StateDone:          {},
	StateErrored:       {},
}

// CanTransitionTo checks if transitioning from the current state to the target state is valid.
func (s RunState) CanTransitionTo(target RunState) bool {
	if target == StateErrored {
		return !s.IsTerminal()
	}
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the state allows no further transitions.
func (s RunState) IsTerminal() bool {
	return s == StateDone || s == StateErrored
}

// Reached reports whether this state is at or past the given milestone
// on the happy path. Errored never counts as having reached anything.
func (s RunState) Reached(milestone RunState) bool {
	if s == StateErrored {
		return false
	}
	return s >= milestone
}

// TransitionError represents an invalid state transition attempt.
type TransitionError struct {
	From   RunState
	To     RunState
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid state transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to RunState, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Reason: reason}
}
