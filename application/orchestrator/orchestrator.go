// Package orchestrator drives full cohort cycles: every account once,
// a retry pass for the stragglers, a summary, then a long cooldown.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"questfarm-go/core/event"
	"questfarm-go/core/eventbus"
	"questfarm-go/domain/account"
	"questfarm-go/domain/ledger"
	"questfarm-go/infrastructure/logging"
	"questfarm-go/infrastructure/report"
)

// Scheduler runs a single account visit and reports the resulting status.
type Scheduler interface {
	RunOnce(ctx context.Context, acct string) account.Status
}

// Config holds orchestrator dependencies.
type Config struct {
	Scheduler Scheduler
	Accounts  *account.Store
	Records   *account.RecordSet
	Balances  *ledger.BalanceLedger
	Bus       eventbus.EventBus

	BalancesCSV      string
	CooldownMinHours int
	CooldownMaxHours int
	MaxFailures      int

	Logger *slog.Logger
}

// Orchestrator owns the cycle loop.
type Orchestrator struct {
	scheduler Scheduler
	accounts  *account.Store
	records   *account.RecordSet
	balances  *ledger.BalanceLedger
	bus       eventbus.EventBus
	log       *slog.Logger

	balancesCSV string
	cooldownMin int
	cooldownMax int
	maxFailures int

	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator from the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Scheduler == nil || cfg.Accounts == nil || cfg.Records == nil || cfg.Balances == nil {
		return nil, fmt.Errorf("orchestrator: scheduler, accounts, records and balances are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &Orchestrator{
		scheduler:   cfg.Scheduler,
		accounts:    cfg.Accounts,
		records:     cfg.Records,
		balances:    cfg.Balances,
		bus:         cfg.Bus,
		log:         logger,
		balancesCSV: cfg.BalancesCSV,
		cooldownMin: cfg.CooldownMinHours,
		cooldownMax: cfg.CooldownMaxHours,
		maxFailures: maxFailures,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       sleepCtx,
	}, nil
}

// RunForever executes cohort cycles until the context ends.
func (o *Orchestrator) RunForever(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		if err := o.RunCycle(ctx, cycle); err != nil {
			return err
		}
		if err := o.cooldown(ctx); err != nil {
			return err
		}
	}
}

// RunCycle processes every account once, retries the ones that did not
// land a scheduled next run, then reports and exports balances.
func (o *Orchestrator) RunCycle(ctx context.Context, cycle int) error {
	log := o.log.With("cycle", cycle)
	log.Info("cycle starting")

	accounts, err := o.accounts.Load()
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if len(accounts) == 0 {
		log.Warn("no accounts configured, nothing to do")
		return nil
	}

	// The visit order is shuffled each cycle and written back so a
	// restart resumes with the same order.
	account.Shuffle(accounts, o.rng)
	if err := o.accounts.Save(accounts); err != nil {
		log.Warn("could not persist shuffled order", "error", err)
	}

	o.balances.Reset()
	o.records.Reset(accounts)

	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.scheduler.RunOnce(ctx, string(acct))
	}

	retried, err := o.retryPass(ctx)
	if err != nil {
		return err
	}

	summary := report.CycleSummary(o.records.All())
	log.Info("cycle finished\n" + summary)
	log.Info(report.RetryList(retried))

	if o.balancesCSV != "" {
		if err := o.balances.ExportCSV(o.balancesCSV); err != nil {
			log.Error("balance export failed", "error", err)
		}
	}

	if o.bus != nil {
		names := make([]string, len(retried))
		for i, a := range retried {
			names[i] = string(a)
		}
		o.bus.Publish(event.NewCohortCompleted(cycle, o.balances.Total(), summary, names))
	}
	return nil
}

// retryPass gives accounts without a scheduled next run one more visit,
// skipping any account that has failed too many times in a row.
func (o *Orchestrator) retryPass(ctx context.Context) ([]account.Account, error) {
	var retried []account.Account
	for _, acct := range o.records.NotScheduled() {
		if err := ctx.Err(); err != nil {
			return retried, err
		}
		rec := o.records.Get(acct)
		if rec != nil && rec.Failures >= o.maxFailures {
			o.log.Warn("skipping retry, too many consecutive failures",
				"account", string(acct), "failures", rec.Failures)
			continue
		}
		retried = append(retried, acct)
		o.scheduler.RunOnce(ctx, string(acct))
	}
	return retried, nil
}

// cooldown sleeps a random number of hours between cycles, waking every
// hour so cancellation is never far away.
func (o *Orchestrator) cooldown(ctx context.Context) error {
	hours := o.cooldownMin
	if o.cooldownMax > o.cooldownMin {
		hours += o.rng.Intn(o.cooldownMax - o.cooldownMin + 1)
	}
	o.log.Info("cooling down until next cycle", "hours", hours)

	remaining := time.Duration(hours) * time.Hour
	for remaining > 0 {
		chunk := time.Hour
		if remaining < chunk {
			chunk = remaining
		}
		if err := o.sleep(ctx, chunk); err != nil {
			return err
		}
		remaining -= chunk
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
