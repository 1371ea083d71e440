package ledger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// RegistrationLog appends a human-readable record for every wallet
// registration so credentials are never lost.
type RegistrationLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewRegistrationLog(path string) *RegistrationLog {
	return &RegistrationLog{path: path, now: time.Now}
}

// Append writes one registration block to the log file.
func (r *RegistrationLog) Append(nickname, seedPhrase string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("registration log: %w", err)
	}
	defer f.Close()

	stamp := r.now().Format("2006-01-02 15:04:05")
	_, err = fmt.Fprintf(f, "Nickname: %s\nSeed phrase: %s\nRegistered at: %s\n\n", nickname, seedPhrase, stamp)
	if err != nil {
		return fmt.Errorf("registration log: %w", err)
	}
	return nil
}
