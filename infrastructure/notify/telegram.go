// Package notify pushes cycle summaries to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"

	"questfarm-go/core/event"
	"questfarm-go/core/eventbus"
	"questfarm-go/infrastructure/logging"
)

// TelegramNotifier sends the end-of-cycle summary to a configured chat.
// A notifier with no token is disabled and ignores all events.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID string

	send  func(ctx context.Context, text string) error
	sleep func(d time.Duration)
	subID string
}

// NewTelegramNotifier builds a notifier. An empty token returns a
// disabled notifier and no error.
func NewTelegramNotifier(token, chatID string) (*TelegramNotifier, error) {
	n := &TelegramNotifier{
		chatID: chatID,
		sleep:  time.Sleep,
	}
	if token == "" {
		return n, nil
	}

	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	n.bot = b
	n.send = func(ctx context.Context, text string) error {
		_, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		return err
	}
	return n, nil
}

// Enabled reports whether the notifier has credentials to send with.
func (n *TelegramNotifier) Enabled() bool {
	return n.send != nil
}

// Attach subscribes the notifier to cycle completion events on the bus.
func (n *TelegramNotifier) Attach(bus eventbus.EventBus) {
	n.subID = bus.Subscribe(func(e event.Event) {
		completed, ok := e.(*event.CohortCompleted)
		if !ok {
			return
		}
		n.NotifyCycle(context.Background(), completed)
	})
}

// Detach removes the bus subscription.
func (n *TelegramNotifier) Detach(bus eventbus.EventBus) {
	if n.subID != "" {
		bus.Unsubscribe(n.subID)
		n.subID = ""
	}
}

// NotifyCycle sends the cycle summary, retrying a few times on transient
// send failures.
func (n *TelegramNotifier) NotifyCycle(ctx context.Context, completed *event.CohortCompleted) {
	if n.send == nil {
		return
	}

	text := fmt.Sprintf("Cycle %d finished\nTotal balance: %.2f\n\n%s",
		completed.Cycle, completed.TotalBalance, completed.Summary)
	if len(completed.Retried) > 0 {
		text += fmt.Sprintf("\nRetried accounts: %v", completed.Retried)
	}

	const maxRetries = 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := n.send(ctx, text)
		if err == nil {
			return
		}
		if attempt == maxRetries {
			logging.L().Error("failed to send telegram summary after retries",
				"attempts", attempt, "error", err)
			return
		}
		logging.L().Warn("failed to send telegram summary, retrying",
			"attempt", attempt, "error", err)
		n.sleep(time.Second * time.Duration(attempt))
	}
}
