// Package eventbus provides asynchronous event distribution between the
// scheduler, the orchestrator and the reporting sinks.
package eventbus

import "questfarm-go/core/event"

// EventHandler is a function that handles an event.
type EventHandler func(e event.Event)

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers. Never blocks;
	// events are dropped if the buffer is full.
	Publish(e event.Event)

	// Subscribe registers a handler for all events and returns a
	// subscription ID.
	Subscribe(handler EventHandler) string

	// SubscribeAccount registers a handler for events of one account.
	SubscribeAccount(account string, handler EventHandler) string

	// Unsubscribe removes a subscription.
	Unsubscribe(subscriptionID string)

	// Close shuts down the bus and waits for the dispatch loop to drain.
	Close()
}
