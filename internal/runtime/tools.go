package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/flowline/pkg/domain"
)

// ToolError reports a failed tool invocation. Its message is what the
// engine stores under domain.KeyError.
type ToolError struct {
	Node string
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("Error in node '%s': %v", e.Node, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// invoke runs the node's tool on a private copy of the state. On success
// the returned state replaces the run state; a nil result keeps it.
func (e *Engine) invoke(ctx context.Context, run *domain.Run, node domain.NodeConfig) error {
	if e.hooks.OnToolCall != nil {
		e.hooks.OnToolCall(ctx, &domain.ToolEvent{
			EventBase: e.base(domain.EventToolCall, run),
			NodeID:    node.Name,
			ToolName:  node.Tool,
		})
	}

	started := e.now()
	out, err := e.call(ctx, node.Tool, run.State.Clone())

	if e.hooks.OnToolReturn != nil {
		ev := &domain.ToolEvent{
			EventBase: e.base(domain.EventToolReturn, run),
			NodeID:    node.Name,
			ToolName:  node.Tool,
			IsError:   err != nil,
			Duration:  e.now().Sub(started),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		e.hooks.OnToolReturn(ctx, ev)
	}

	if err != nil {
		return &ToolError{Node: node.Name, Tool: node.Tool, Err: err}
	}
	if out != nil {
		run.State = out.Clone()
	}
	return nil
}

// call shields the engine from panicking tools.
func (e *Engine) call(ctx context.Context, name string, state domain.State) (out domain.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("tool %q panicked: %v", name, r)
		}
	}()
	if e.tools == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	return e.tools.Execute(ctx, name, state)
}
