// Package event defines the events published during cohort processing.
package event

import "time"

// Event is the interface all events implement.
type Event interface {
	// EventName returns a stable name for logging and dispatch.
	EventName() string
	// Timestamp returns when the event was created.
	Timestamp() time.Time
}

// AccountEvent is an event tied to a specific account.
type AccountEvent interface {
	Event
	// AccountID returns the serial number of the account the event concerns.
	AccountID() string
}

// baseEvent provides the common timestamp implementation.
type baseEvent struct {
	ts time.Time
}

func newBase() baseEvent {
	return baseEvent{ts: time.Now()}
}

func (e baseEvent) Timestamp() time.Time {
	return e.ts
}

// baseAccountEvent provides the common account implementation.
type baseAccountEvent struct {
	baseEvent
	account string
}

func (e baseAccountEvent) AccountID() string {
	return e.account
}

// RunStarted is published when an account run begins.
type RunStarted struct {
	baseAccountEvent
}

// NewRunStarted creates a RunStarted event.
func NewRunStarted(account string) *RunStarted {
	return &RunStarted{baseAccountEvent{newBase(), account}}
}

func (e *RunStarted) EventName() string { return "run_started" }

// RunFinished is published when an account run ends, whatever the outcome.
type RunFinished struct {
	baseAccountEvent
	Status    string
	Balance   float64
	Scheduled bool
}

// NewRunFinished creates a RunFinished event.
func NewRunFinished(account, status string, balance float64, scheduled bool) *RunFinished {
	return &RunFinished{
		baseAccountEvent: baseAccountEvent{newBase(), account},
		Status:           status,
		Balance:          balance,
		Scheduled:        scheduled,
	}
}

func (e *RunFinished) EventName() string { return "run_finished" }

// ReleaseUncertain is published when a browser session could not be
// confirmed closed after all fallbacks.
type ReleaseUncertain struct {
	baseAccountEvent
	Err error
}

// NewReleaseUncertain creates a ReleaseUncertain event.
func NewReleaseUncertain(account string, err error) *ReleaseUncertain {
	return &ReleaseUncertain{baseAccountEvent{newBase(), account}, err}
}

func (e *ReleaseUncertain) EventName() string { return "release_uncertain" }

// CohortCompleted is published after a full cohort pass (including the
// retry pass) with the rendered summary attached.
type CohortCompleted struct {
	baseEvent
	Cycle        int
	TotalBalance float64
	Summary      string
	Retried      []string
}

// NewCohortCompleted creates a CohortCompleted event.
func NewCohortCompleted(cycle int, total float64, summary string, retried []string) *CohortCompleted {
	return &CohortCompleted{
		baseEvent:    newBase(),
		Cycle:        cycle,
		TotalBalance: total,
		Summary:      summary,
		Retried:      retried,
	}
}

func (e *CohortCompleted) EventName() string { return "cohort_completed" }
