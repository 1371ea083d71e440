// Package quest holds the static quest knowledge: the question-answer table,
// the quest catalog and the remaining-time parser.
package quest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// AnswerTable maps question substrings to answers. Questions in the app are
// free text, so lookup is by substring containment with longest-key-first
// ordering: a more specific question always wins over a shorter one that
// happens to be contained in it.
type AnswerTable struct {
	answers map[string]string
	// keys sorted by length descending, precomputed at load time
	sortedKeys []string
}

// LoadAnswers reads the question-answer JSON file.
func LoadAnswers(path string) (*AnswerTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers file: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse answers file: %w", err)
	}
	return NewAnswerTable(raw), nil
}

// NewAnswerTable builds a table from an in-memory map.
func NewAnswerTable(answers map[string]string) *AnswerTable {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j] // stable order among equal lengths
	})
	return &AnswerTable{answers: answers, sortedKeys: keys}
}

// Lookup returns the answer for the first (longest) key contained in the
// question text, case-insensitively. Returns false when nothing matches.
func (t *AnswerTable) Lookup(question string) (string, bool) {
	q := strings.ToLower(question)
	for _, key := range t.sortedKeys {
		if strings.Contains(q, strings.ToLower(key)) {
			return t.answers[key], true
		}
	}
	return "", false
}

// Len returns the number of entries in the table.
func (t *AnswerTable) Len() int {
	return len(t.answers)
}
