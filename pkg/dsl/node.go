package dsl

import "github.com/aretw0/flowline/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	config     domain.NodeConfig
	configured bool
	edge       *domain.Edge
	builder    *Builder
}

func (n *NodeBuilder) set(fn func(*domain.NodeConfig)) *NodeBuilder {
	fn(&n.config)
	n.configured = true
	return n
}

// Do configures the tool the node runs.
func (n *NodeBuilder) Do(tool string) *NodeBuilder {
	return n.set(func(c *domain.NodeConfig) { c.Tool = tool })
}

// Describe sets a human readable description.
func (n *NodeBuilder) Describe(text string) *NodeBuilder {
	return n.set(func(c *domain.NodeConfig) { c.Description = text })
}

// Loop makes the node re-enter itself while condition holds, at most max times.
func (n *NodeBuilder) Loop(condition string, max int) *NodeBuilder {
	return n.set(func(c *domain.NodeConfig) {
		c.Type = domain.NodeTypeLoop
		c.LoopCondition = condition
		c.MaxIterations = max
	})
}

// Go adds an unconditional edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	e := domain.Simple(target)
	n.edge = &e
	return n
}

// Branch adds a conditional edge. A node whose only role is branching is
// marked conditional.
func (n *NodeBuilder) Branch(condition, ifTrue, ifFalse string) *NodeBuilder {
	e := domain.Conditional(condition, ifTrue, ifFalse)
	n.edge = &e
	if n.config.Type == "" && n.config.Tool == "" {
		n.set(func(c *domain.NodeConfig) { c.Type = domain.NodeTypeConditional })
	}
	return n
}

// Terminal removes the outgoing edge (end of the flow).
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.edge = nil
	return n
}

// Then returns to the graph builder so another node can be added.
func (n *NodeBuilder) Then() *Builder {
	return n.builder
}

// Config returns the node configuration built so far.
func (n *NodeBuilder) Config() domain.NodeConfig {
	return n.config
}
