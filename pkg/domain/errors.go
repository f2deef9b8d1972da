package domain

import (
	"errors"
	"fmt"
)

// ErrGraphNotFound is returned when a graph ID cannot be found in the store.
var ErrGraphNotFound = errors.New("graph not found")

// ErrRunNotFound is returned when a run ID cannot be found in the store.
var ErrRunNotFound = errors.New("run not found")

// ErrGraphExists is returned when a graph is created twice with the same ID.
var ErrGraphExists = errors.New("graph already exists")

// ErrRunExists is returned when a run is created twice with the same ID.
var ErrRunExists = errors.New("run already exists")

// ErrInvalidTransition is returned when a run status change is not allowed.
var ErrInvalidTransition = errors.New("invalid run status transition")

// ErrToolNotFound is returned when a node references an unregistered tool.
var ErrToolNotFound = errors.New("tool not found")

// ErrStepLimitExceeded is recorded when a run exceeds the engine step limit.
var ErrStepLimitExceeded = errors.New("step limit exceeded")

// Graph validation kinds. A *ValidationError always wraps exactly one of these.
var (
	ErrDuplicateNode      = errors.New("duplicate node")
	ErrUnknownStartNode   = errors.New("unknown start node")
	ErrDanglingEdgeTarget = errors.New("dangling edge target")
	ErrInvalidLoopConfig  = errors.New("invalid loop config")
	ErrEmptyNodeName      = errors.New("empty node name")
	ErrUnknownNode        = errors.New("unknown node")
	ErrInvalidNodeType    = errors.New("invalid node type")
)

// ValidationError reports a single graph invariant violation.
type ValidationError struct {
	Kind   error  // One of the Err* validation kinds
	Node   string // Offending node, if any
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%v: node %q: %s", e.Kind, e.Node, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// ValidationErrors flattens a joined validation error into its parts.
// It returns nil if err carries no *ValidationError.
func ValidationErrors(err error) []*ValidationError {
	if err == nil {
		return nil
	}
	var out []*ValidationError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, ValidationErrors(e)...)
		}
		return out
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		out = append(out, ve)
	}
	return out
}
