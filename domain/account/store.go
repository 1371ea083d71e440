package account

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
)

// Store reads and rewrites the flat account-list file: one serial number per
// line, blank lines and #-comments skipped. The file is rewritten after every
// shuffle so the persisted order matches the processing order.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store over the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads all accounts from the file.
func (s *Store) Load() ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	defer file.Close()

	var accounts []Account
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		accounts = append(accounts, Account(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	return accounts, nil
}

// Save rewrites the file with the given accounts in order.
func (s *Store) Save(accounts []Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create accounts file: %w", err)
	}

	w := bufio.NewWriter(file)
	for _, acct := range accounts {
		fmt.Fprintln(w, string(acct))
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("write accounts file: %w", err)
	}
	return file.Close()
}

// Shuffle randomizes the order of accounts in place using the given source.
func Shuffle(accounts []Account, rng *rand.Rand) {
	rng.Shuffle(len(accounts), func(i, j int) {
		accounts[i], accounts[j] = accounts[j], accounts[i]
	})
}
