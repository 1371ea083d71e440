package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Job is one pending re-run of an account, due when its farming window
// reopens.
type Job struct {
	Account string    `json:"account"`
	Due     time.Time `json:"due"`
}

// JobStore persists the pending job queue so timers survive restarts.
type JobStore struct {
	mu   sync.Mutex
	path string
}

func NewJobStore(path string) *JobStore {
	return &JobStore{path: path}
}

// Load reads the persisted queue. A missing file is an empty queue.
func (s *JobStore) Load() ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	return jobs, nil
}

// Save rewrites the persisted queue.
func (s *JobStore) Save(jobs []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobs == nil {
		jobs = []Job{}
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}
