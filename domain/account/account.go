// Package account defines accounts and their per-cohort run records.
package account

import (
	"fmt"
	"sync"
	"time"
)

// Account identifies one automated identity by its browser-profile serial
// number. The value is opaque to everything but the control API.
type Account string

// Status is the lifecycle status of an account within a cohort cycle.
type Status int

const (
	// StatusPending means the account has not been processed yet this cycle.
	StatusPending Status = iota
	// StatusScheduled means a next-run job was successfully armed.
	StatusScheduled
	// StatusCompleted means the run finished normally but produced no
	// remaining-time estimate, so no job was armed.
	StatusCompleted
	// StatusFailed means the run ended in an error or aborted early.
	StatusFailed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusScheduled:
		return "Scheduled"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// RunRecord tracks one account's progress through the current cohort cycle.
// Records are created Pending at cycle start, mutated in place by whichever
// run processes the account, and reset at the next cycle.
type RunRecord struct {
	Account  Account
	Username string
	Balance  float64
	NextRun  time.Time // zero means no run armed
	Status   Status
	Failures int // consecutive failed runs, survives retry passes
}

// NextRunDisplay renders the next-run column for the summary table.
func (r *RunRecord) NextRunDisplay() string {
	if !r.NextRun.IsZero() {
		return r.NextRun.Format("2006-01-02 15:04:05")
	}
	if r.Status == StatusCompleted {
		return "Immediate"
	}
	return "N/A"
}

// RecordSet holds the cohort's run records. It is mutated both by the
// synchronous cohort pass and by scheduler jobs firing on their own
// goroutines, so all access goes through the mutex.
type RecordSet struct {
	mu      sync.RWMutex
	order   []Account
	records map[Account]*RunRecord
}

// NewRecordSet creates an empty record set.
func NewRecordSet() *RecordSet {
	return &RecordSet{records: make(map[Account]*RunRecord)}
}

// Reset replaces all records with fresh Pending ones for the given accounts,
// preserving their order.
func (s *RecordSet) Reset(accounts []Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = make([]Account, len(accounts))
	copy(s.order, accounts)
	s.records = make(map[Account]*RunRecord, len(accounts))
	for _, acct := range accounts {
		s.records[acct] = &RunRecord{
			Account:  acct,
			Username: "N/A",
			Status:   StatusPending,
		}
	}
}

// Get returns the record for an account, or nil if the account is not part
// of the current cycle.
func (s *RecordSet) Get(acct Account) *RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[acct]
}

// Update applies fn to the account's record under the lock.
func (s *RecordSet) Update(acct Account, fn func(*RunRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[acct]; ok {
		fn(rec)
	}
}

// All returns copies of all records in cohort order.
func (s *RecordSet) All() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, 0, len(s.order))
	for _, acct := range s.order {
		if rec, ok := s.records[acct]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// NotScheduled returns, in cohort order, the accounts whose status is
// anything other than Scheduled. This drives the cohort retry pass.
func (s *RecordSet) NotScheduled() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Account
	for _, acct := range s.order {
		if rec, ok := s.records[acct]; ok && rec.Status != StatusScheduled {
			out = append(out, acct)
		}
	}
	return out
}
