package ports

import (
	"context"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/registry"
)

// ToolDispatcher defines how the engine invokes tools.
// *registry.Registry is the default implementation.
type ToolDispatcher interface {
	// Execute runs the named tool. It returns an error wrapping
	// domain.ErrToolNotFound when no tool has that name.
	Execute(ctx context.Context, name string, state domain.State) (domain.State, error)
}

// WorkflowService is the create/run/inspect surface exposed to transports
// (HTTP, CLI). The root flowline.Engine implements it.
type WorkflowService interface {
	CreateGraph(ctx context.Context, def domain.GraphDefinition) (string, error)
	GetGraph(ctx context.Context, graphID string) (*domain.Graph, error)
	ListGraphs(ctx context.Context) ([]string, error)
	RunGraph(ctx context.Context, graphID string, initial domain.State) (*domain.Run, error)
	GetRunState(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, graphID string) ([]*domain.Run, error)
	Tools() []registry.ToolInfo
}
