package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"
)

// Store implements ports.Store in memory.
// Safe for concurrent use.
type Store struct {
	graphs map[string]*domain.Graph
	runs   map[string]*domain.Run
	mu     sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		graphs: make(map[string]*domain.Graph),
		runs:   make(map[string]*domain.Run),
	}
}

// CreateGraph stores the graph. Graphs are immutable so no copy is needed.
func (s *Store) CreateGraph(ctx context.Context, graph *domain.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.graphs[graph.ID()]; exists {
		return fmt.Errorf("%w: %s", domain.ErrGraphExists, graph.ID())
	}
	s.graphs[graph.ID()] = graph
	return nil
}

// GetGraph retrieves a graph.
func (s *Store) GetGraph(ctx context.Context, graphID string) (*domain.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[graphID]
	if !ok {
		return nil, domain.ErrGraphNotFound
	}
	return g, nil
}

// ListGraphs returns the sorted graph IDs.
func (s *Store) ListGraphs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.graphs))
	for id := range s.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// CreateRun stores a deep copy of the run.
func (s *Store) CreateRun(ctx context.Context, run *domain.Run) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := run.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrRunExists, run.ID)
	}
	s.runs[run.ID] = copied
	return nil
}

// SaveRun replaces the stored copy of an existing run.
func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	copied := run.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return domain.ErrRunNotFound
	}
	s.runs[run.ID] = copied
	return nil
}

// GetRun retrieves a run.
func (s *Store) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}

	// Copy on read so the caller can't mutate store state through the pointer
	return run.Clone(), nil
}

// ListRuns returns copies of the matching runs, oldest first.
func (s *Store) ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.Run, 0, len(s.runs))
	for _, r := range s.runs {
		if filter.Matches(r) {
			runs = append(runs, r.Clone())
		}
	}
	ports.SortRuns(runs)
	return runs, nil
}
