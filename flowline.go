package flowline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/flowline/internal/logging"
	"github.com/aretw0/flowline/internal/runtime"
	"github.com/aretw0/flowline/pkg/adapters/memory"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ledger"
	"github.com/aretw0/flowline/pkg/ports"
	"github.com/aretw0/flowline/pkg/registry"
	"github.com/aretw0/flowline/pkg/workflows/codereview"
	"github.com/google/uuid"
)

// Issue is a lint finding on a stored or candidate graph.
type Issue = runtime.Issue

// Engine is the high-level entry point of the library. It stores graphs,
// executes runs through the runtime, and persists every step.
type Engine struct {
	runtime   *runtime.Engine
	store     ports.Store
	ledger    *ledger.Ledger
	tools     *registry.Registry
	evaluator runtime.ConditionEvaluator
	locker    ports.DistributedLocker
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	maxSteps  int
	now       func() time.Time
	newID     func() string
}

var _ ports.WorkflowService = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the graph and run store. Defaults to an in-memory store.
func WithStore(s ports.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithRegistry sets the tool registry. The default registry carries the
// code review tools.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		e.tools = r
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConditionEvaluator replaces the built-in expression evaluator.
func WithConditionEvaluator(eval runtime.ConditionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = eval
	}
}

// WithLocker serialises run writes across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithMaxSteps bounds the steps of a single run (default runtime.DefaultMaxSteps).
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithClock sets the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator sets how graph and run IDs are minted. Defaults to UUIDv4.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// New initializes a new Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.tools == nil {
		eng.tools = registry.NewRegistry()
		codereview.Register(eng.tools)
	}
	if eng.now == nil || eng.newID == nil {
		return nil, fmt.Errorf("clock and id generator must not be nil")
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(eng.logger)}
	if eng.locker != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithLocker(eng.locker))
	}
	eng.ledger = ledger.New(eng.store, ledgerOpts...)

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithRecorder(eng.ledger),
		runtime.WithClock(eng.now),
		runtime.WithMaxSteps(eng.maxSteps),
	}
	if eng.evaluator != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithConditionEvaluator(eng.evaluator))
	}
	eng.runtime = runtime.NewEngine(eng.tools, runtimeOpts...)

	return eng, nil
}

// CreateGraph validates def and stores it under a fresh ID.
// Validation failures are joined *domain.ValidationError values; nothing is stored.
func (e *Engine) CreateGraph(ctx context.Context, def domain.GraphDefinition) (string, error) {
	g, err := domain.NewGraph(e.newID(), def)
	if err != nil {
		return "", err
	}
	if err := e.store.CreateGraph(ctx, g); err != nil {
		return "", fmt.Errorf("failed to store graph: %w", err)
	}
	e.logger.InfoContext(ctx, "graph created", "graph_id", g.ID(), "nodes", len(g.Nodes()))
	return g.ID(), nil
}

// GetGraph returns a stored graph. Returns domain.ErrGraphNotFound if absent.
func (e *Engine) GetGraph(ctx context.Context, graphID string) (*domain.Graph, error) {
	return e.store.GetGraph(ctx, graphID)
}

// ListGraphs returns the stored graph IDs, sorted.
func (e *Engine) ListGraphs(ctx context.Context) ([]string, error) {
	return e.store.ListGraphs(ctx)
}

// RunGraph executes a stored graph from initial and returns the finished run.
// A run that fails structurally is returned with status failed and a nil
// error; errors are reserved for unknown graphs and storage failures before
// the first step.
func (e *Engine) RunGraph(ctx context.Context, graphID string, initial domain.State) (*domain.Run, error) {
	g, err := e.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, g, initial)
}

// Execute runs graph without requiring it to be stored. The run is still
// recorded, so GetRunState can retrieve it.
func (e *Engine) Execute(ctx context.Context, graph *domain.Graph, initial domain.State) (*domain.Run, error) {
	run := domain.NewRun(e.newID(), graph.ID(), initial, e.now())
	if err := e.ledger.Open(ctx, run); err != nil {
		return nil, err
	}
	if err := e.runtime.Execute(ctx, graph, run); err != nil {
		return nil, err
	}
	return run.Clone(), nil
}

// GetRunState returns the latest record of a run.
// Returns domain.ErrRunNotFound if absent.
func (e *Engine) GetRunState(ctx context.Context, runID string) (*domain.Run, error) {
	return e.ledger.Load(ctx, runID)
}

// ListRuns returns the runs of graphID (all runs when empty), oldest first.
func (e *Engine) ListRuns(ctx context.Context, graphID string) ([]*domain.Run, error) {
	return e.ledger.List(ctx, ports.RunFilter{GraphID: graphID})
}

// Tools lists the registered tools.
func (e *Engine) Tools() []registry.ToolInfo {
	return e.tools.List()
}

// Registry exposes the tool registry so hosts can register their own tools.
func (e *Engine) Registry() *registry.Registry {
	return e.tools
}

// Lint reports problems that surface only at run time: malformed
// conditions, unregistered tools and unreachable nodes.
func (e *Engine) Lint(graph *domain.Graph) []Issue {
	return runtime.Lint(graph, func(name string) bool {
		_, ok := e.tools.Lookup(name)
		return ok
	})
}

// Close releases the store if it holds resources.
func (e *Engine) Close() error {
	if c, ok := e.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
