// Package scheduler runs accounts and re-arms them when their farming
// window reopens. Pending runs live in a durable job queue consumed by
// a single loop, so timers survive restarts.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"questfarm-go/application/run"
	"questfarm-go/core/event"
	"questfarm-go/core/eventbus"
	"questfarm-go/core/state"
	"questfarm-go/domain/account"
	"questfarm-go/domain/ledger"
	"questfarm-go/infrastructure/browser"
	"questfarm-go/infrastructure/logging"
)

// inflightRetryDelay is how far a due job is pushed back when its
// account is still mid-run.
const inflightRetryDelay = time.Minute

// Session is an acquired browser session as the scheduler sees it.
type Session interface {
	Driver() browser.Driver
	Release() error
}

// Gateway acquires browser sessions.
type Gateway interface {
	Acquire(ctx context.Context, acct string, questComplete bool) (Session, error)
}

// Runner performs one account visit on an acquired driver.
type Runner interface {
	Run(ctx context.Context, drv browser.Driver, acct string) (*run.Result, error)
}

// Config holds scheduler dependencies.
type Config struct {
	Gateway    Gateway
	Runner     Runner
	Records    *account.RecordSet
	Completion *ledger.CompletionLedger
	Jobs       *JobStore
	Bus        eventbus.EventBus
	Logger     *slog.Logger
}

// Scheduler executes account runs and keeps the re-run queue.
type Scheduler struct {
	gateway    Gateway
	runner     Runner
	records    *account.RecordSet
	completion *ledger.CompletionLedger
	store      *JobStore
	bus        eventbus.EventBus
	log        *slog.Logger

	mu       sync.Mutex
	jobs     []Job
	inflight map[string]bool
	wake     chan struct{}

	now func() time.Time
}

// New creates a scheduler and loads any persisted jobs.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	jobs, err := cfg.Jobs.Load()
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 {
		logger.Info("restored pending jobs", "count", len(jobs))
	}
	return &Scheduler{
		gateway:    cfg.Gateway,
		runner:     cfg.Runner,
		records:    cfg.Records,
		completion: cfg.Completion,
		store:      cfg.Jobs,
		bus:        cfg.Bus,
		log:        logger,
		jobs:       jobs,
		inflight:   make(map[string]bool),
		wake:       make(chan struct{}, 1),
		now:        time.Now,
	}, nil
}

// RunOnce takes an account through one full visit: acquire a session,
// run, release exactly once, then record the status and arm the next
// run when a farming timer was read.
func (s *Scheduler) RunOnce(ctx context.Context, acct string) account.Status {
	if !s.markInflight(acct) {
		s.log.Warn("run already in flight, skipping", "account", acct)
		return account.StatusPending
	}
	defer s.clearInflight(acct)

	log := s.log.With("account", acct)
	s.publish(event.NewRunStarted(acct))

	sess, err := s.gateway.Acquire(ctx, acct, s.completion.Contains(acct))
	if err != nil {
		log.Warn("session acquire failed", "error", err)
		s.recordStatus(acct, nil, account.StatusFailed, ctx.Err() != nil)
		s.publish(event.NewRunFinished(acct, account.StatusFailed.String(), 0, false))
		return account.StatusFailed
	}

	var releaseDone bool
	release := func() {
		if releaseDone {
			return
		}
		releaseDone = true
		if err := sess.Release(); err != nil {
			log.Error("session release uncertain", "error", err)
			s.publish(event.NewReleaseUncertain(acct, err))
		}
	}
	defer release()

	res, runErr := s.runGuarded(ctx, sess, acct)
	release()

	status := account.StatusFailed
	switch {
	case runErr != nil:
		log.Warn("run cancelled", "error", runErr)
	case res == nil:
		// Panic inside the run; already logged.
	case res.Remaining != nil:
		status = account.StatusScheduled
		s.arm(acct, s.now().Add(*res.Remaining))
	case res.Final.Reached(state.StateDone):
		status = account.StatusCompleted
	}

	s.recordStatus(acct, res, status, runErr != nil)

	var balance float64
	if res != nil {
		balance = res.Balance
	}
	s.publish(event.NewRunFinished(acct, status.String(), balance, status == account.StatusScheduled))
	log.Info("run finished", "status", status)
	return status
}

// runGuarded isolates the runner so a panic cannot skip the release.
func (s *Scheduler) runGuarded(ctx context.Context, sess Session, acct string) (res *run.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("run panicked", "account", acct, "panic", r)
			res = nil
			err = nil
		}
	}()
	return s.runner.Run(ctx, sess.Driver(), acct)
}

// recordStatus updates the account's run record. A cancelled run counts
// as failed for reporting but leaves the consecutive-failure counter
// alone: an interrupt says nothing about the account itself.
func (s *Scheduler) recordStatus(acct string, res *run.Result, status account.Status, cancelled bool) {
	s.records.Update(account.Account(acct), func(r *account.RunRecord) {
		r.Status = status
		if res != nil {
			r.Username = res.Username
			r.Balance = res.Balance
			if res.Remaining != nil {
				r.NextRun = s.now().Add(*res.Remaining)
			}
		}
		switch {
		case cancelled:
		case status == account.StatusFailed:
			r.Failures++
		default:
			r.Failures = 0
		}
	})
}

// arm queues a job, persists the queue and pokes the loop.
func (s *Scheduler) arm(acct string, due time.Time) {
	s.mu.Lock()
	filtered := s.jobs[:0]
	for _, j := range s.jobs {
		if j.Account != acct {
			filtered = append(filtered, j)
		}
	}
	s.jobs = append(filtered, Job{Account: acct, Due: due})
	snapshot := make([]Job, len(s.jobs))
	copy(snapshot, s.jobs)
	s.mu.Unlock()

	if err := s.store.Save(snapshot); err != nil {
		s.log.Error("could not persist schedule", "error", err)
	}
	s.poke()
	s.log.Info("next run armed", "account", acct, "due", due.Format("2006-01-02 15:04:05"))
}

// Jobs returns a snapshot of the pending queue.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Loop consumes the job queue until the context ends, running each job
// when it comes due.
func (s *Scheduler) Loop(ctx context.Context) error {
	for {
		next, ok := s.nextDue()

		var timerC <-chan time.Time
		var timer *time.Timer
		if ok {
			timer = time.NewTimer(next.Sub(s.now()))
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
			for _, job := range s.takeDue() {
				acct := job.Account
				go func() {
					// An inflight run already owns the account; push
					// the job back instead of losing it.
					if s.RunOnce(ctx, acct) == account.StatusPending {
						s.arm(acct, s.now().Add(inflightRetryDelay))
					}
				}()
			}
		}
	}
}

func (s *Scheduler) nextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest time.Time
	found := false
	for _, j := range s.jobs {
		if !found || j.Due.Before(earliest) {
			earliest = j.Due
			found = true
		}
	}
	return earliest, found
}

// takeDue removes and returns every job due by now, persisting the rest.
func (s *Scheduler) takeDue() []Job {
	s.mu.Lock()
	now := s.now()
	var due []Job
	remaining := s.jobs[:0]
	for _, j := range s.jobs {
		if !j.Due.After(now) {
			due = append(due, j)
		} else {
			remaining = append(remaining, j)
		}
	}
	s.jobs = remaining
	snapshot := make([]Job, len(s.jobs))
	copy(snapshot, s.jobs)
	s.mu.Unlock()

	if len(due) > 0 {
		if err := s.store.Save(snapshot); err != nil {
			s.log.Error("could not persist schedule", "error", err)
		}
	}
	return due
}

func (s *Scheduler) markInflight(acct string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[acct] {
		return false
	}
	s.inflight[acct] = true
	return true
}

func (s *Scheduler) clearInflight(acct string) {
	s.mu.Lock()
	delete(s.inflight, acct)
	s.mu.Unlock()
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
