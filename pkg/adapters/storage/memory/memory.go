package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/dagent/pkg/domain"
)

// InMemoryStateStorage implements StateStorage using an in-memory map.
// Runs are copied on the way in and out.
type InMemoryStateStorage struct {
	runs map[string]*domain.RunState
	mu   sync.RWMutex
}

// NewInMemoryStateStorage creates a new in-memory state storage
func NewInMemoryStateStorage() *InMemoryStateStorage {
	return &InMemoryStateStorage{
		runs: make(map[string]*domain.RunState),
	}
}

// SaveRun stores a copy of run
func (s *InMemoryStateStorage) SaveRun(ctx context.Context, run *domain.RunState) error {
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = copyRun(run)
	return nil
}

// GetRun returns a copy of the stored run
func (s *InMemoryStateStorage) GetRun(ctx context.Context, runID string) (*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	return copyRun(run), nil
}

// DeleteRun removes a run
func (s *InMemoryStateStorage) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)
	return nil
}

// ListRuns returns all stored run ids, sorted
func (s *InMemoryStateStorage) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func copyRun(run *domain.RunState) *domain.RunState {
	c := *run
	if run.State != nil {
		c.State = run.State.Clone()
	}
	c.Steps = append([]string(nil), run.Steps...)
	return &c
}
