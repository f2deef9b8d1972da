package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/flowline/internal/logging"
	"github.com/aretw0/flowline/pkg/condition"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"
)

// DefaultMaxSteps is the step limit applied when none is configured.
// It stops runs that cycle through plain edges forever.
const DefaultMaxSteps = 1000

// ErrRunNotPending is returned by Execute for runs that already started.
var ErrRunNotPending = errors.New("run is not pending")

// ConditionEvaluator decides conditional edges and loop conditions.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, expr string, state map[string]any) (bool, error)
}

// ConditionFunc adapts a plain function to ConditionEvaluator.
type ConditionFunc func(ctx context.Context, expr string, state map[string]any) (bool, error)

func (f ConditionFunc) Evaluate(ctx context.Context, expr string, state map[string]any) (bool, error) {
	return f(ctx, expr, state)
}

// Recorder persists run progress. The engine checkpoints after every step
// and once more when the run reaches a terminal status.
type Recorder interface {
	Checkpoint(ctx context.Context, run *domain.Run) error
}

// Engine walks a graph for one run at a time. It holds no per-run state,
// so a single Engine can execute many runs concurrently.
type Engine struct {
	tools     ports.ToolDispatcher
	evaluator ConditionEvaluator
	recorder  Recorder
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	maxSteps  int
	now       func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithConditionEvaluator replaces the default expression evaluator.
func WithConditionEvaluator(eval ConditionEvaluator) EngineOption {
	return func(e *Engine) {
		if eval != nil {
			e.evaluator = eval
		}
	}
}

// WithRecorder enables progressive persistence of runs.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithMaxSteps bounds the number of steps of a single run.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithClock sets the time source used for log timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine that invokes tools through the given dispatcher.
// A nil dispatcher makes every tool lookup fail (absorbed as tool errors).
func NewEngine(tools ports.ToolDispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		tools:     tools,
		evaluator: condition.NewEvaluator(),
		logger:    logging.NewNop(),
		maxSteps:  DefaultMaxSteps,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute drives run through graph until it reaches a terminal status.
//
// Structural problems (evaluation errors, dangling targets, storage
// failures, cancellation, the step limit) end the run as failed; tool
// errors are absorbed into the state and the log. The returned error only
// reports misuse: nil arguments or a run that is not pending. The run is
// always left in a terminal status when the error is nil.
func (e *Engine) Execute(ctx context.Context, graph *domain.Graph, run *domain.Run) error {
	if graph == nil {
		return fmt.Errorf("cannot execute nil graph")
	}
	if run == nil {
		return fmt.Errorf("cannot execute nil run")
	}
	if run.Status != domain.RunPending {
		return fmt.Errorf("%w: %s is %s", ErrRunNotPending, run.ID, run.Status)
	}
	if run.GraphID == "" {
		run.GraphID = graph.ID()
	}
	if run.State == nil {
		run.State = domain.State{}
	}
	if run.Iterations == nil {
		run.Iterations = make(map[string]int)
	}

	logger := e.logger.With("run_id", run.ID, "graph_id", graph.ID())
	started := e.now()
	if err := run.Transition(domain.RunRunning, started); err != nil {
		return err
	}
	if e.hooks.OnRunStart != nil {
		e.hooks.OnRunStart(ctx, &domain.RunEvent{
			EventBase: e.base(domain.EventRunStart, run),
			Status:    run.Status,
		})
	}
	logger.DebugContext(ctx, "run started", "start_node", graph.StartNode())

	current := graph.StartNode()
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			e.fail(ctx, run, domain.ReasonCanceled, err)
			break
		}
		if step >= e.maxSteps {
			e.fail(ctx, run, domain.ReasonStepLimitExceeded,
				fmt.Errorf("%w: %d steps", domain.ErrStepLimitExceeded, e.maxSteps))
			break
		}
		node, ok := graph.Node(current)
		if !ok {
			e.fail(ctx, run, domain.ReasonDanglingEdgeTarget,
				fmt.Errorf("%w: node %q is not in graph %q", domain.ErrDanglingEdgeTarget, current, graph.ID()))
			break
		}

		next, err := e.step(ctx, logger, graph, run, node, step)
		if err != nil {
			reason := domain.ReasonEvaluationError
			if ctx.Err() != nil {
				reason = domain.ReasonCanceled
			}
			e.fail(ctx, run, reason, err)
			break
		}

		if err := e.checkpoint(ctx, run); err != nil {
			reason := domain.ReasonStorageError
			if ctx.Err() != nil {
				reason = domain.ReasonCanceled
			}
			e.fail(ctx, run, reason, fmt.Errorf("checkpoint after step %d: %w", step, err))
			break
		}

		if next == "" {
			e.complete(ctx, run)
			break
		}
		current = next
	}

	if run.Status == domain.RunCompleted {
		logger.InfoContext(ctx, "run completed",
			"steps", len(run.Log),
			"reason", run.TerminationReason,
			"duration", time.Since(started))
	} else {
		logger.WarnContext(ctx, "run failed",
			"steps", len(run.Log),
			"reason", run.TerminationReason,
			"err", run.Error)
	}

	if e.hooks.OnRunFinish != nil {
		e.hooks.OnRunFinish(ctx, &domain.RunEvent{
			EventBase: e.base(domain.EventRunFinish, run),
			Status:    run.Status,
			Reason:    run.TerminationReason,
			Steps:     len(run.Log),
			Duration:  e.now().Sub(started),
		})
	}
	return nil
}

// step executes one node and resolves its successor. The log entry is
// appended even when resolution fails; the returned error aborts the run.
func (e *Engine) step(ctx context.Context, logger *slog.Logger, graph *domain.Graph, run *domain.Run, node domain.NodeConfig, index int) (string, error) {
	run.CurrentNode = node.Name
	entry := domain.LogEntry{
		Step:        index,
		Node:        node.Name,
		StateBefore: run.State.Clone(),
	}
	if node.IsLoop() {
		if run.Iterations[node.Name] >= node.MaxIterations {
			entry.Skipped = true
		} else {
			run.Iterations[node.Name]++
		}
		entry.Iteration = run.Iterations[node.Name]
	}

	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
			EventBase: e.base(domain.EventNodeEnter, run),
			NodeID:    node.Name,
			NodeType:  node.Type,
			Iteration: entry.Iteration,
		})
	}
	logger.DebugContext(ctx, "executing node", "step", index, "node", node.Name, "type", node.Type, "iteration", entry.Iteration)

	if entry.Skipped {
		logger.DebugContext(ctx, "loop budget spent, passing through", "node", node.Name, "max_iterations", node.MaxIterations)
	} else if node.Tool != "" {
		if err := e.invoke(ctx, run, node); err != nil {
			var te *ToolError
			if errors.As(err, &te) {
				run.State[domain.KeyError] = te.Error()
			}
			entry.Errored = true
			entry.ErrorDetail = err.Error()
			logger.WarnContext(ctx, "tool failed, continuing", "node", node.Name, "tool", node.Tool, "err", err)
		}
	}

	next, resolveErr := e.resolve(ctx, graph, run, node, &entry)
	if resolveErr != nil {
		entry.Errored = true
		if entry.ErrorDetail != "" {
			entry.ErrorDetail += "; "
		}
		entry.ErrorDetail += resolveErr.Error()
		next = ""
	}

	entry.Next = next
	entry.StateAfter = run.State.Clone()
	entry.Timestamp = e.now()
	run.Append(entry)

	if e.hooks.OnNodeLeave != nil {
		e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
			EventBase: e.base(domain.EventNodeLeave, run),
			NodeID:    node.Name,
			NodeType:  node.Type,
			Iteration: entry.Iteration,
			Next:      next,
		})
	}
	return next, resolveErr
}

func (e *Engine) complete(ctx context.Context, run *domain.Run) {
	final := run.Clone()
	if final.TerminationReason == "" {
		final.TerminationReason = domain.ReasonCompleted
	}
	_ = final.Transition(domain.RunCompleted, e.now())

	if err := e.checkpoint(context.WithoutCancel(ctx), final); err != nil {
		e.fail(ctx, run, domain.ReasonStorageError, fmt.Errorf("final checkpoint: %w", err))
		return
	}
	*run = *final
}

// fail moves the run to failed and records the cause. Persisting the
// failure is best effort.
func (e *Engine) fail(ctx context.Context, run *domain.Run, reason domain.TerminationReason, cause error) {
	if run.Status.IsTerminal() {
		return
	}
	run.TerminationReason = reason
	run.Error = cause.Error()
	_ = run.Transition(domain.RunFailed, e.now())

	if err := e.checkpoint(context.WithoutCancel(ctx), run); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist failed run", "run_id", run.ID, "err", err)
	}
}

func (e *Engine) checkpoint(ctx context.Context, run *domain.Run) error {
	if e.recorder == nil {
		return nil
	}
	return e.recorder.Checkpoint(ctx, run)
}

func (e *Engine) base(t domain.EventType, run *domain.Run) domain.EventBase {
	return domain.EventBase{
		Timestamp: e.now(),
		Type:      t,
		RunID:     run.ID,
		GraphID:   run.GraphID,
	}
}
