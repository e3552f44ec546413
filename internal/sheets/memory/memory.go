// Package memory is an in-process sheets.Mirror used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cuentas/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	records []sheets.BatchRecord
	index   map[string]int
}

var _ sheets.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{index: map[string]int{}}
}

// AppendBatch stores the record and returns a synthetic row reference.
func (s *Store) AppendBatch(_ context.Context, rec sheets.BatchRecord) (string, error) {
	if rec.BatchID == "" {
		return "", errors.New("batch id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	s.index[key(rec.Date.Year(), rec.BatchID)] = len(s.records)
	return fmt.Sprintf("mem:%d", len(s.records)), nil
}

func (s *Store) HasBatch(_ context.Context, year int, batchID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[key(year, batchID)]
	return ok, nil
}

// Records returns a copy of everything appended so far.
func (s *Store) Records() []sheets.BatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.BatchRecord(nil), s.records...)
}

func key(year int, batchID string) string {
	return fmt.Sprintf("%d/%s", year, batchID)
}
