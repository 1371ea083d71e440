package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"questfarm-go/core/event"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	var received atomic.Int32
	bus.Subscribe(func(e event.Event) {
		if e.EventName() == "run_started" {
			received.Add(1)
		}
	})

	bus.Publish(event.NewRunStarted("101"))
	waitFor(t, func() bool { return received.Load() == 1 })
}

func TestEventBus_AccountFilter(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	bus.SubscribeAccount("101", func(e event.Event) {
		mu.Lock()
		got = append(got, e.(event.AccountEvent).AccountID())
		mu.Unlock()
	})

	bus.Publish(event.NewRunStarted("101"))
	bus.Publish(event.NewRunStarted("202"))
	bus.Publish(event.NewRunFinished("101", "Scheduled", 12.5, true))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	for _, acc := range got {
		if acc != "101" {
			t.Errorf("received event for account %s, filter was 101", acc)
		}
	}
}

func TestEventBus_AccountFilterSkipsCohortEvents(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	var filtered atomic.Int32
	var all atomic.Int32
	bus.SubscribeAccount("101", func(e event.Event) { filtered.Add(1) })
	bus.Subscribe(func(e event.Event) { all.Add(1) })

	// Cohort-wide event carries no account; only the unfiltered
	// subscription may see it.
	bus.Publish(event.NewCohortCompleted(1, 42.0, "summary", nil))
	waitFor(t, func() bool { return all.Load() == 1 })

	if filtered.Load() != 0 {
		t.Errorf("account-filtered handler received %d cohort events", filtered.Load())
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	var received atomic.Int32
	id := bus.Subscribe(func(e event.Event) { received.Add(1) })

	bus.Publish(event.NewRunStarted("101"))
	waitFor(t, func() bool { return received.Load() == 1 })

	bus.Unsubscribe(id)
	bus.Publish(event.NewRunStarted("101"))

	time.Sleep(50 * time.Millisecond)
	if received.Load() != 1 {
		t.Errorf("received %d events after unsubscribe, want 1", received.Load())
	}
}

func TestEventBus_PublishAfterClose(t *testing.T) {
	bus := New(10)
	bus.Close()

	// Must not panic
	bus.Publish(event.NewRunStarted("101"))
}

func TestEventBus_PanickingHandler(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	var received atomic.Int32
	bus.Subscribe(func(e event.Event) { panic("bad handler") })
	bus.Subscribe(func(e event.Event) { received.Add(1) })

	bus.Publish(event.NewRunStarted("101"))
	waitFor(t, func() bool { return received.Load() == 1 })
}
