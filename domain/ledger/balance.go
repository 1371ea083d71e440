// Package ledger holds the per-cycle balance ledger and the durable
// completion and registration records that survive restarts.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// BalanceEntry is a single row of the balance ledger.
type BalanceEntry struct {
	Account  string
	Username string
	Balance  float64
}

// BalanceLedger accumulates the balance read from each account during a
// cycle. Entries keep insertion order; writing the same account again
// replaces its row in place.
type BalanceLedger struct {
	mu      sync.Mutex
	order   []string
	entries map[string]BalanceEntry
}

func NewBalanceLedger() *BalanceLedger {
	return &BalanceLedger{entries: make(map[string]BalanceEntry)}
}

// Upsert records the balance for an account, replacing any earlier row.
func (l *BalanceLedger) Upsert(account, username string, balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[account]; !ok {
		l.order = append(l.order, account)
	}
	l.entries[account] = BalanceEntry{Account: account, Username: username, Balance: balance}
}

// All returns the entries in insertion order.
func (l *BalanceLedger) All() []BalanceEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]BalanceEntry, 0, len(l.order))
	for _, acct := range l.order {
		out = append(out, l.entries[acct])
	}
	return out
}

// Total sums the balances of all entries.
func (l *BalanceLedger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, e := range l.entries {
		total += e.Balance
	}
	return total
}

// Reset drops all entries. Called at the start of each cycle.
func (l *BalanceLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = l.order[:0]
	l.entries = make(map[string]BalanceEntry)
}

// ExportCSV writes the ledger to path, overwriting any previous export.
func (l *BalanceLedger) ExportCSV(path string) error {
	entries := l.All()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export balance ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"account", "username", "balance"}); err != nil {
		return fmt.Errorf("export balance ledger: %w", err)
	}
	for _, e := range entries {
		row := []string{e.Account, e.Username, strconv.FormatFloat(e.Balance, 'f', -1, 64)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("export balance ledger: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
