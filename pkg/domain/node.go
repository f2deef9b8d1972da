package domain

import (
	"fmt"
	"strings"
)

// NodeType defines the control flow behavior of a node.
type NodeType string

const (
	// NodeTypeNormal runs its tool (if any) and follows its outgoing edge.
	NodeTypeNormal NodeType = "normal"
	// NodeTypeConditional marks a branching point. Routing is driven by its edge.
	NodeTypeConditional NodeType = "conditional"
	// NodeTypeLoop re-executes itself while its loop condition holds, up to MaxIterations.
	NodeTypeLoop NodeType = "loop"
)

// ParseNodeType normalizes a wire value into a NodeType.
// An empty value and the legacy "standard" name both map to NodeTypeNormal.
func ParseNodeType(s string) (NodeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "standard":
		return NodeTypeNormal, nil
	case "conditional":
		return NodeTypeConditional, nil
	case "loop":
		return NodeTypeLoop, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidNodeType, s)
}

// NodeConfig describes how a node executes.
type NodeConfig struct {
	Name string   `json:"name" yaml:"name"`
	Type NodeType `json:"type" yaml:"type"`

	// Tool is resolved through the tool registry at run time. Empty means no-op.
	Tool        string `json:"tool,omitempty" yaml:"tool,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Loop configuration (only used if Type == NodeTypeLoop)
	LoopCondition string `json:"loop_condition,omitempty" yaml:"loop_condition,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

// IsLoop reports whether the node re-enters itself under its loop condition.
func (n NodeConfig) IsLoop() bool {
	return n.Type == NodeTypeLoop
}
