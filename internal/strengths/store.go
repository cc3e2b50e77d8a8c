// Package strengths accumulates the strengths the model detects during a
// conversation and mediates the save_strength tool-call round-trips that
// record them.
package strengths

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is a single detected strength.
type Record struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Store accumulates strength records for the lifetime of the process.
// Records survive disconnects; Reset is the only way to clear them.
// Thread-safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records []Record
	journal string
}

// NewStore creates an in-memory Store.
func NewStore() *Store {
	return &Store{}
}

// NewJournaledStore creates a Store that additionally appends every record as
// a JSON line to the file at path. The file is created if it does not exist.
func NewJournaledStore(path string) *Store {
	return &Store{journal: path}
}

// Add appends a strength with a fresh ID and returns the stored record.
func (s *Store) Add(title, description string) (Record, error) {
	rec := Record{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		RecordedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)

	if s.journal != "" {
		if err := appendJournal(s.journal, rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// All returns a snapshot of the accumulated records in insertion order.
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len reports the number of accumulated records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Reset discards all accumulated records. The journal file is left untouched.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

func appendJournal(path string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("strengths: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("strengths: open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("strengths: write journal: %w", err)
	}
	return nil
}
