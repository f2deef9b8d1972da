package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/flowline/internal/presentation/graph"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		def      domain.GraphDefinition
		contains []string
	}{
		{
			name: "Node Shapes",
			def: domain.GraphDefinition{
				Nodes:     []string{"start", "work", "retry", "plain"},
				StartNode: "start",
				NodeConfigs: map[string]domain.NodeConfig{
					"work":  {Tool: "do_work"},
					"retry": {Type: domain.NodeTypeLoop, LoopCondition: "n < 3", MaxIterations: 3},
				},
			},
			contains: []string{
				`start(("start"))`,
				`work[["work <br/> do_work"]]`,
				`retry{{"retry"}}`,
				`plain["plain"]`,
				`retry -. "n < 3 (max 3)" .-> retry`,
			},
		},
		{
			name: "ID Sanitization",
			def: domain.GraphDefinition{
				Nodes:     []string{"path/to.node", "hyphen-ated"},
				StartNode: "path/to.node",
				Edges:     map[string]domain.Edge{"path/to.node": domain.Simple("hyphen-ated")},
			},
			contains: []string{
				`path_to_node(("path/to.node"))`,
				`hyphen_ated["hyphen-ated"]`,
				`path_to_node --> hyphen_ated`,
			},
		},
		{
			name: "Condition Escaping",
			def: domain.GraphDefinition{
				Nodes:     []string{"a", "yes", "no"},
				StartNode: "a",
				Edges:     map[string]domain.Edge{"a": domain.Conditional(`answer == "yes"`, "yes", "no")},
			},
			contains: []string{
				`a -- "answer == 'yes'" --> yes`,
				`a -. "not answer == 'yes'" .-> no`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := domain.NewGraph("g", tt.def)
			require.NoError(t, err)
			got := graph.GenerateMermaid(g, nil)
			assert.True(t, strings.HasPrefix(got, "graph TD\n"))
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			assert.NotContains(t, got, "classDef")
		})
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	g, err := domain.NewGraph("g", domain.GraphDefinition{
		Nodes:     []string{"a", "b"},
		StartNode: "a",
		Edges:     map[string]domain.Edge{"a": domain.Simple("b")},
	})
	require.NoError(t, err)

	run := &domain.Run{
		CurrentNode: "b",
		Log:         []domain.LogEntry{{Node: "a"}, {Node: "a"}, {Node: "b"}},
	}
	got := graph.GenerateMermaid(g, graph.OverlayFromRun(run))

	assert.Equal(t, 1, strings.Count(got, "class a visited;"))
	assert.Contains(t, got, "class b visited;")
	assert.Contains(t, got, "class b current;")
}
