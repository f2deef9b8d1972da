package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() domain.GraphDefinition {
	return domain.GraphDefinition{
		Nodes:     []string{"check", "high", "low", "process"},
		StartNode: "check",
		Edges: map[string]domain.Edge{
			"check":   domain.Conditional("value > 10", "high", "low"),
			"low":     domain.Simple("process"),
			"process": domain.Simple("high"),
		},
		NodeConfigs: map[string]domain.NodeConfig{
			"check": {Type: domain.NodeTypeConditional},
			"process": {
				Type:          domain.NodeTypeLoop,
				Tool:          "increment",
				LoopCondition: "count < 3",
				MaxIterations: 5,
			},
		},
	}
}

func TestNewGraph_Valid(t *testing.T) {
	g, err := domain.NewGraph("g1", validDefinition())
	require.NoError(t, err)

	assert.Equal(t, "g1", g.ID())
	assert.Equal(t, "check", g.StartNode())
	assert.Equal(t, []string{"check", "high", "low", "process"}, g.Nodes())

	// Unconfigured nodes default to normal without a tool
	high, ok := g.Node("high")
	require.True(t, ok)
	assert.Equal(t, domain.NodeTypeNormal, high.Type)
	assert.Empty(t, high.Tool)

	proc, _ := g.Node("process")
	assert.Equal(t, "process", proc.Name)
	assert.True(t, proc.IsLoop())
	assert.Equal(t, 5, g.LoopBudget())

	_, ok = g.Edge("high")
	assert.False(t, ok, "high is terminal")

	// Every edge target resolves to a real node
	for _, name := range g.Nodes() {
		if e, ok := g.Edge(name); ok {
			for _, target := range e.Targets() {
				_, exists := g.Node(target)
				assert.True(t, exists, "target %s of %s must exist", target, name)
			}
		}
	}
}

func TestNewGraph_ValidationKinds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.GraphDefinition)
		want   error
	}{
		{
			name:   "Duplicate Node",
			mutate: func(d *domain.GraphDefinition) { d.Nodes = append(d.Nodes, "low") },
			want:   domain.ErrDuplicateNode,
		},
		{
			name:   "Unknown Start Node",
			mutate: func(d *domain.GraphDefinition) { d.StartNode = "ghost" },
			want:   domain.ErrUnknownStartNode,
		},
		{
			name:   "Dangling Simple Target",
			mutate: func(d *domain.GraphDefinition) { d.Edges["high"] = domain.Simple("ghost") },
			want:   domain.ErrDanglingEdgeTarget,
		},
		{
			name:   "Dangling Conditional Branch",
			mutate: func(d *domain.GraphDefinition) { d.Edges["check"] = domain.Conditional("x", "high", "ghost") },
			want:   domain.ErrDanglingEdgeTarget,
		},
		{
			name: "Loop Without Cap",
			mutate: func(d *domain.GraphDefinition) {
				cfg := d.NodeConfigs["process"]
				cfg.MaxIterations = 0
				d.NodeConfigs["process"] = cfg
			},
			want: domain.ErrInvalidLoopConfig,
		},
		{
			name: "Loop Without Condition",
			mutate: func(d *domain.GraphDefinition) {
				cfg := d.NodeConfigs["process"]
				cfg.LoopCondition = ""
				d.NodeConfigs["process"] = cfg
			},
			want: domain.ErrInvalidLoopConfig,
		},
		{
			name:   "Empty Node Name",
			mutate: func(d *domain.GraphDefinition) { d.Nodes = append(d.Nodes, "") },
			want:   domain.ErrEmptyNodeName,
		},
		{
			name:   "Edge From Undeclared Node",
			mutate: func(d *domain.GraphDefinition) { d.Edges["ghost"] = domain.Simple("high") },
			want:   domain.ErrUnknownNode,
		},
		{
			name: "Config For Undeclared Node",
			mutate: func(d *domain.GraphDefinition) {
				d.NodeConfigs["ghost"] = domain.NodeConfig{}
			},
			want: domain.ErrUnknownNode,
		},
		{
			name: "Unknown Node Type",
			mutate: func(d *domain.GraphDefinition) {
				d.NodeConfigs["high"] = domain.NodeConfig{Type: "parallel"}
			},
			want: domain.ErrInvalidNodeType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(&def)

			g, err := domain.NewGraph("g", def)
			require.Error(t, err)
			assert.Nil(t, g, "graph must never be partially built")
			assert.True(t, errors.Is(err, tt.want), "expected %v, got %v", tt.want, err)

			var ve *domain.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestNewGraph_ReportsAllViolations(t *testing.T) {
	def := domain.GraphDefinition{
		Nodes:     []string{"a", "a"},
		StartNode: "missing",
		Edges:     map[string]domain.Edge{"a": domain.Simple("nowhere")},
	}

	_, err := domain.NewGraph("g", def)
	require.Error(t, err)

	errs := domain.ValidationErrors(err)
	assert.Len(t, errs, 3)
	assert.ErrorIs(t, err, domain.ErrDuplicateNode)
	assert.ErrorIs(t, err, domain.ErrUnknownStartNode)
	assert.ErrorIs(t, err, domain.ErrDanglingEdgeTarget)
}

func TestNewGraph_LegacyStandardType(t *testing.T) {
	def := domain.GraphDefinition{
		Nodes:       []string{"a"},
		StartNode:   "a",
		NodeConfigs: map[string]domain.NodeConfig{"a": {Type: "standard", Tool: "t"}},
	}
	g, err := domain.NewGraph("g", def)
	require.NoError(t, err)
	n, _ := g.Node("a")
	assert.Equal(t, domain.NodeTypeNormal, n.Type)
}

func TestGraph_IsImmutable(t *testing.T) {
	def := validDefinition()
	g, err := domain.NewGraph("g", def)
	require.NoError(t, err)

	// Mutating the input definition or returned copies must not affect the graph
	def.Nodes[0] = "mutated"
	def.Edges["check"] = domain.Simple("low")
	nodes := g.Nodes()
	nodes[0] = "mutated"
	copyDef := g.Definition()
	copyDef.Edges["check"] = domain.Simple("low")

	assert.Equal(t, "check", g.Nodes()[0])
	e, _ := g.Edge("check")
	assert.Equal(t, domain.EdgeConditional, e.Kind)
}

func TestGraph_JSONRoundTrip(t *testing.T) {
	g, err := domain.NewGraph("g1", validDefinition())
	require.NoError(t, err)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"check":{"condition":"value > 10","true":"high","false":"low"}`)
	assert.Contains(t, string(data), `"low":"process"`)

	var decoded domain.Graph
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, g.Definition(), decoded.Definition())
	assert.Equal(t, "g1", decoded.ID())

	// Decoding re-validates
	bad := []byte(`{"graph_id":"x","nodes":["a"],"start_node":"b","edges":{}}`)
	assert.ErrorIs(t, json.Unmarshal(bad, &decoded), domain.ErrUnknownStartNode)
}

func TestEdge_UnmarshalJSON(t *testing.T) {
	var edges map[string]domain.Edge
	err := json.Unmarshal([]byte(`{"a":"b","c":{"condition":"x > 1","true":"d","false":"e"}}`), &edges)
	require.NoError(t, err)

	assert.Equal(t, domain.Simple("b"), edges["a"])
	assert.Equal(t, domain.Conditional("x > 1", "d", "e"), edges["c"])

	var e domain.Edge
	assert.Error(t, json.Unmarshal([]byte(`{"true":"d","false":"e"}`), &e))
	assert.Error(t, json.Unmarshal([]byte(`42`), &e))
}
