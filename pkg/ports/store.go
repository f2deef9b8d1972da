package ports

import (
	"context"
	"sort"

	"github.com/aretw0/flowline/pkg/domain"
)

// GraphStore defines the interface for persisting validated graphs.
// Graphs are immutable once stored.
type GraphStore interface {
	// CreateGraph stores a graph under its ID.
	// Returns domain.ErrGraphExists if the ID is already taken.
	CreateGraph(ctx context.Context, graph *domain.Graph) error

	// GetGraph retrieves a graph by ID.
	// Returns domain.ErrGraphNotFound if the graph does not exist.
	GetGraph(ctx context.Context, graphID string) (*domain.Graph, error)

	// ListGraphs returns the IDs of all stored graphs, sorted.
	ListGraphs(ctx context.Context) ([]string, error)
}

// RunFilter narrows a run listing. The zero value matches every run.
type RunFilter struct {
	GraphID string
}

// Matches reports whether run passes the filter.
func (f RunFilter) Matches(run *domain.Run) bool {
	return f.GraphID == "" || f.GraphID == run.GraphID
}

// RunStore defines the interface for persisting run records.
// Implementations only need single-key atomicity.
type RunStore interface {
	// CreateRun stores a new run.
	// Returns domain.ErrRunExists if the ID is already taken.
	CreateRun(ctx context.Context, run *domain.Run) error

	// SaveRun replaces the stored record of an existing run.
	// Returns domain.ErrRunNotFound if the run was never created.
	SaveRun(ctx context.Context, run *domain.Run) error

	// GetRun retrieves a run by ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	GetRun(ctx context.Context, runID string) (*domain.Run, error)

	// ListRuns returns runs matching the filter ordered by creation time.
	ListRuns(ctx context.Context, filter RunFilter) ([]*domain.Run, error)
}

// Store groups both persistence ports. Every adapter implements it.
type Store interface {
	GraphStore
	RunStore
}

// SortRuns orders runs by creation time, then by ID.
func SortRuns(runs []*domain.Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
