package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Epistemic-Technology/doc-commenter/models"
)

// DefaultCapacity is the number of runs a MemoryStore keeps by default.
const DefaultCapacity = 100

// MemoryStore implements the Store interface in memory. Once full, saving a
// new run evicts the oldest one.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string // oldest first
	runs     map[string]*models.RunReport
}

// NewMemoryStore creates a store holding at most capacity runs. A
// non-positive capacity selects DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		runs:     make(map[string]*models.RunReport),
	}
}

func (s *MemoryStore) SaveRun(ctx context.Context, report *models.RunReport) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("run report without ID")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[report.RunID]; ok {
		s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == report.RunID })
	}
	for len(s.order) >= s.capacity {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	s.order = append(s.order, report.RunID)
	s.runs[report.RunID] = report
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*models.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return report, nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, runID string, entry int) (*models.EntryReport, error) {
	report, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if entry < 1 || entry > len(report.Entries) {
		return nil, fmt.Errorf("entry %d out of range (run has %d entries)", entry, len(report.Entries))
	}
	return &report.Entries[entry-1], nil
}

func (s *MemoryStore) ListRuns(ctx context.Context) ([]models.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]models.RunInfo, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		infos = append(infos, s.runs[s.order[i]].Info())
	}
	return infos, nil
}

func (s *MemoryStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	delete(s.runs, runID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == runID })
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]*models.RunReport)
	s.order = nil
	return nil
}
