package dsl

import (
	"github.com/aretw0/flowline/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	order []string
	nodes map[string]*NodeBuilder
	start string
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a new node in the graph. The first node added is the start
// node unless Start says otherwise.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		config:  domain.NodeConfig{Name: id},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	if b.start == "" {
		b.start = id
	}
	return nb
}

// Start sets the entry node.
func (b *Builder) Start(id string) *Builder {
	b.start = id
	return b
}

// Definition returns the definition built so far, without validating it.
// Nodes keep the order in which they were added.
func (b *Builder) Definition() domain.GraphDefinition {
	def := domain.GraphDefinition{
		Nodes:     append([]string(nil), b.order...),
		StartNode: b.start,
	}
	for _, id := range b.order {
		nb := b.nodes[id]
		if nb.edge != nil {
			if def.Edges == nil {
				def.Edges = make(map[string]domain.Edge)
			}
			def.Edges[id] = *nb.edge
		}
		if nb.configured {
			if def.NodeConfigs == nil {
				def.NodeConfigs = make(map[string]domain.NodeConfig)
			}
			def.NodeConfigs[id] = nb.config
		}
	}
	return def
}

// Build validates the graph under id.
func (b *Builder) Build(id string) (*domain.Graph, error) {
	return domain.NewGraph(id, b.Definition())
}
