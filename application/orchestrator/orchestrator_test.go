package orchestrator

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"questfarm-go/core/event"
	"questfarm-go/core/eventbus"
	"questfarm-go/domain/account"
	"questfarm-go/domain/ledger"
)

type fakeScheduler struct {
	records  *account.RecordSet
	statuses map[string]account.Status
	calls    []string
}

func (s *fakeScheduler) RunOnce(ctx context.Context, acct string) account.Status {
	s.calls = append(s.calls, acct)
	status, ok := s.statuses[acct]
	if !ok {
		status = account.StatusScheduled
	}
	s.records.Update(account.Account(acct), func(r *account.RunRecord) {
		r.Status = status
		if status == account.StatusFailed {
			r.Failures++
		} else {
			r.Failures = 0
		}
	})
	return status
}

type captureBus struct {
	published []event.Event
}

func (b *captureBus) Publish(e event.Event) { b.published = append(b.published, e) }
func (b *captureBus) Subscribe(eventbus.EventHandler) string {
	return ""
}
func (b *captureBus) SubscribeAccount(string, eventbus.EventHandler) string { return "" }
func (b *captureBus) Unsubscribe(string)                                    {}
func (b *captureBus) Close()                                                {}

func writeAccounts(t *testing.T, lines string) *account.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.txt")
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}
	return account.NewStore(path)
}

func newTestOrchestrator(t *testing.T, store *account.Store, statuses map[string]account.Status, bus eventbus.EventBus) (*Orchestrator, *fakeScheduler, string) {
	t.Helper()
	records := account.NewRecordSet()
	sched := &fakeScheduler{records: records, statuses: statuses}
	csvPath := filepath.Join(t.TempDir(), "balances.csv")
	o, err := New(Config{
		Scheduler:        sched,
		Accounts:         store,
		Records:          records,
		Balances:         ledger.NewBalanceLedger(),
		Bus:              bus,
		BalancesCSV:      csvPath,
		CooldownMinHours: 1,
		CooldownMaxHours: 1,
		MaxFailures:      3,
	})
	if err != nil {
		t.Fatal(err)
	}
	o.rng = rand.New(rand.NewSource(1))
	return o, sched, csvPath
}

func countCalls(calls []string, acct string) int {
	n := 0
	for _, c := range calls {
		if c == acct {
			n++
		}
	}
	return n
}

func TestRunCycle_RetriesUnscheduledAccounts(t *testing.T) {
	store := writeAccounts(t, "101\n102\n103\n")
	bus := &captureBus{}
	o, sched, csvPath := newTestOrchestrator(t, store, map[string]account.Status{
		"101": account.StatusScheduled,
		"102": account.StatusFailed,
		"103": account.StatusCompleted,
	}, bus)

	if err := o.RunCycle(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	// First pass touches everyone, the retry pass only the two accounts
	// that did not land a scheduled next run.
	if got := countCalls(sched.calls, "101"); got != 1 {
		t.Errorf("calls for 101 = %d, want 1", got)
	}
	if got := countCalls(sched.calls, "102"); got != 2 {
		t.Errorf("calls for 102 = %d, want 2", got)
	}
	if got := countCalls(sched.calls, "103"); got != 2 {
		t.Errorf("calls for 103 = %d, want 2", got)
	}

	if _, err := os.Stat(csvPath); err != nil {
		t.Errorf("balance export missing: %v", err)
	}

	if len(bus.published) != 1 {
		t.Fatalf("published = %d events, want 1", len(bus.published))
	}
	done, ok := bus.published[0].(*event.CohortCompleted)
	if !ok {
		t.Fatalf("published %T, want *event.CohortCompleted", bus.published[0])
	}
	if done.Cycle != 1 || len(done.Retried) != 2 {
		t.Errorf("event = %+v", done)
	}
}

func TestRunCycle_SkipsAccountsOverFailureCap(t *testing.T) {
	store := writeAccounts(t, "101\n")
	o, sched, _ := newTestOrchestrator(t, store, map[string]account.Status{
		"101": account.StatusFailed,
	}, nil)
	o.maxFailures = 1

	if err := o.RunCycle(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	// The first pass already puts the account at the cap, so the retry
	// pass must leave it alone.
	if got := countCalls(sched.calls, "101"); got != 1 {
		t.Errorf("calls for 101 = %d, want 1", got)
	}
}

func TestRunCycle_PersistsShuffledOrder(t *testing.T) {
	store := writeAccounts(t, "101\n102\n103\n104\n105\n")
	o, _, _ := newTestOrchestrator(t, store, nil, nil)

	if err := o.RunCycle(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	saved, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 5 {
		t.Fatalf("saved %d accounts, want 5", len(saved))
	}
	recs := o.records.All()
	for i, rec := range recs {
		if rec.Account != saved[i] {
			t.Errorf("record order %d = %s, persisted %s", i, rec.Account, saved[i])
		}
	}
}

func TestRunCycle_NoAccounts(t *testing.T) {
	store := writeAccounts(t, "")
	o, sched, _ := newTestOrchestrator(t, store, nil, nil)

	if err := o.RunCycle(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if len(sched.calls) != 0 {
		t.Errorf("calls = %v, want none", sched.calls)
	}
}

func TestRunCycle_Cancelled(t *testing.T) {
	store := writeAccounts(t, "101\n102\n")
	o, _, _ := newTestOrchestrator(t, store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.RunCycle(ctx, 1); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCooldown_SleepsInHourChunks(t *testing.T) {
	store := writeAccounts(t, "101\n")
	o, _, _ := newTestOrchestrator(t, store, nil, nil)
	o.cooldownMin = 3
	o.cooldownMax = 3

	var chunks []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		chunks = append(chunks, d)
		return nil
	}

	if err := o.cooldown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %v, want 3 one hour sleeps", chunks)
	}
	for _, c := range chunks {
		if c != time.Hour {
			t.Errorf("chunk = %v, want 1h", c)
		}
	}
}

func TestCooldown_Cancellable(t *testing.T) {
	store := writeAccounts(t, "101\n")
	o, _, _ := newTestOrchestrator(t, store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.cooldown(ctx); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
