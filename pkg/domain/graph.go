package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// GraphDefinition is the raw, unvalidated shape of a graph as supplied by a caller.
type GraphDefinition struct {
	Nodes       []string              `json:"nodes" yaml:"nodes"`
	Edges       map[string]Edge       `json:"edges" yaml:"edges"`
	StartNode   string                `json:"start_node" yaml:"start_node"`
	NodeConfigs map[string]NodeConfig `json:"node_configs,omitempty" yaml:"node_configs,omitempty"`
}

// Graph is a validated, immutable graph definition.
// It is safe for concurrent reads; no accessor exposes internal maps.
type Graph struct {
	id    string
	order []string
	nodes map[string]NodeConfig
	edges map[string]Edge
	start string
}

// NewGraph validates def and builds an immutable Graph.
// All invariant violations are reported together as joined *ValidationError values.
func NewGraph(id string, def GraphDefinition) (*Graph, error) {
	var errs []error
	fail := func(kind error, node, format string, args ...any) {
		errs = append(errs, &ValidationError{Kind: kind, Node: node, Detail: fmt.Sprintf(format, args...)})
	}

	g := &Graph{
		id:    id,
		order: make([]string, 0, len(def.Nodes)),
		nodes: make(map[string]NodeConfig, len(def.Nodes)),
		edges: make(map[string]Edge, len(def.Edges)),
		start: def.StartNode,
	}

	// 1. Node set
	for _, name := range def.Nodes {
		if name == "" {
			fail(ErrEmptyNodeName, "", "node names must not be empty")
			continue
		}
		if _, dup := g.nodes[name]; dup {
			fail(ErrDuplicateNode, name, "declared more than once")
			continue
		}
		g.order = append(g.order, name)
		g.nodes[name] = NodeConfig{Name: name, Type: NodeTypeNormal}
	}

	if _, ok := g.nodes[def.StartNode]; !ok {
		fail(ErrUnknownStartNode, def.StartNode, "start node is not declared")
	}

	// 2. Node configs
	for _, name := range sortedKeys(def.NodeConfigs) {
		cfg := def.NodeConfigs[name]
		if _, ok := g.nodes[name]; !ok {
			fail(ErrUnknownNode, name, "node config refers to an undeclared node")
			continue
		}
		typ, err := ParseNodeType(string(cfg.Type))
		if err != nil {
			fail(ErrInvalidNodeType, name, "unsupported type %q", cfg.Type)
			continue
		}
		cfg.Type = typ
		cfg.Name = name
		if typ == NodeTypeLoop {
			if cfg.MaxIterations < 1 {
				fail(ErrInvalidLoopConfig, name, "max_iterations must be >= 1, got %d", cfg.MaxIterations)
			}
			if cfg.LoopCondition == "" {
				fail(ErrInvalidLoopConfig, name, "loop_condition is required")
			}
		}
		g.nodes[name] = cfg
	}

	// 3. Edges
	for _, from := range sortedKeys(def.Edges) {
		edge := def.Edges[from]
		if edge.Kind == 0 && edge.Target != "" {
			edge.Kind = EdgeSimple
		}
		if _, ok := g.nodes[from]; !ok {
			fail(ErrUnknownNode, from, "edge source is not declared")
			continue
		}
		switch edge.Kind {
		case EdgeSimple:
		case EdgeConditional:
			if edge.Condition == "" {
				fail(ErrDanglingEdgeTarget, from, "conditional edge has an empty condition")
				continue
			}
		default:
			fail(ErrDanglingEdgeTarget, from, "edge has no target")
			continue
		}
		dangling := false
		for _, target := range edge.Targets() {
			if _, ok := g.nodes[target]; !ok {
				fail(ErrDanglingEdgeTarget, from, "target %q is not declared", target)
				dangling = true
			}
		}
		if !dangling {
			g.edges[from] = edge
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

// ID returns the graph identifier.
func (g *Graph) ID() string { return g.id }

// StartNode returns the entry node name.
func (g *Graph) StartNode() string { return g.start }

// Nodes returns the node names in declaration order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Node returns the configuration of a node.
func (g *Graph) Node(name string) (NodeConfig, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Edge returns the outgoing edge of a node. ok is false for terminal nodes.
func (g *Graph) Edge(name string) (Edge, bool) {
	e, ok := g.edges[name]
	return e, ok
}

// Definition returns a copy of the validated definition, normalized
// (every declared node has a config entry).
func (g *Graph) Definition() GraphDefinition {
	def := GraphDefinition{
		Nodes:       g.Nodes(),
		Edges:       make(map[string]Edge, len(g.edges)),
		StartNode:   g.start,
		NodeConfigs: make(map[string]NodeConfig, len(g.nodes)),
	}
	for k, v := range g.edges {
		def.Edges[k] = v
	}
	for k, v := range g.nodes {
		def.NodeConfigs[k] = v
	}
	return def
}

// LoopBudget returns the sum of max_iterations over all loop nodes.
func (g *Graph) LoopBudget() int {
	total := 0
	for _, n := range g.nodes {
		if n.IsLoop() {
			total += n.MaxIterations
		}
	}
	return total
}

type graphJSON struct {
	ID string `json:"graph_id"`
	GraphDefinition
}

// MarshalJSON encodes the graph with its ID and normalized definition.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{ID: g.id, GraphDefinition: g.Definition()})
}

// UnmarshalJSON decodes and re-validates a graph.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewGraph(raw.ID, raw.GraphDefinition)
	if err != nil {
		return err
	}
	*g = *built
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
