package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/flowline/pkg/domain"
)

// resolve determines the node that follows node.
// An empty name means the run has reached a terminal node.
func (e *Engine) resolve(ctx context.Context, graph *domain.Graph, run *domain.Run, node domain.NodeConfig, entry *domain.LogEntry) (string, error) {
	// 1. Loop nodes re-enter themselves while the condition holds and budget remains
	if node.IsLoop() {
		again, err := e.evaluator.Evaluate(ctx, node.LoopCondition, run.State)
		if err != nil {
			return "", fmt.Errorf("loop condition of node %q: %w", node.Name, err)
		}
		if again {
			if run.Iterations[node.Name] < node.MaxIterations {
				return node.Name, nil
			}
			entry.LoopCapReached = true
			run.TerminationReason = domain.ReasonMaxIterationsExceeded
			e.logger.WarnContext(ctx, "loop reached max_iterations while its condition still holds",
				"run_id", run.ID,
				"node", node.Name,
				"max_iterations", node.MaxIterations)
		}
	}

	// 2. Outgoing edge
	edge, ok := graph.Edge(node.Name)
	if !ok {
		return "", nil
	}

	switch edge.Kind {
	case domain.EdgeConditional:
		ok, err := e.evaluator.Evaluate(ctx, edge.Condition, run.State)
		if err != nil {
			return "", fmt.Errorf("edge condition of node %q: %w", node.Name, err)
		}
		if ok {
			return edge.IfTrue, nil
		}
		return edge.IfFalse, nil
	default:
		return edge.Target, nil
	}
}
