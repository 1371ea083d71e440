package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// CompletionLedger is the durable set of accounts that have finished all
// quests. Membership is append-only: once an account is marked complete
// it stays complete across restarts.
type CompletionLedger struct {
	mu   sync.Mutex
	path string
	done map[string]struct{}
}

// LoadCompletionLedger reads the ledger file at path. A missing file is
// treated as an empty ledger.
func LoadCompletionLedger(path string) (*CompletionLedger, error) {
	l := &CompletionLedger{path: path, done: make(map[string]struct{})}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("load completion ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.done[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load completion ledger: %w", err)
	}
	return l, nil
}

// Contains reports whether the account has finished all quests.
func (l *CompletionLedger) Contains(account string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.done[account]
	return ok
}

// MarkComplete records the account as done and appends it to the ledger
// file. Marking an already complete account is a no-op.
func (l *CompletionLedger) MarkComplete(account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.done[account]; ok {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, account); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	l.done[account] = struct{}{}
	return nil
}

// Len returns the number of completed accounts.
func (l *CompletionLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.done)
}
