package runtime_test

import (
	"testing"

	"github.com/aretw0/flowline/internal/runtime"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestLint(t *testing.T) {
	reg := testRegistry()
	known := func(name string) bool {
		_, ok := reg.Lookup(name)
		return ok
	}

	t.Run("Clean Graph", func(t *testing.T) {
		g := loopGraph(t, "count < 3", 5, true)
		assert.Empty(t, runtime.Lint(g, known))
	})

	t.Run("Reports Every Issue", func(t *testing.T) {
		g := mustGraph(t, domain.GraphDefinition{
			Nodes:     []string{"start", "spin", "a", "b", "island"},
			StartNode: "start",
			Edges: map[string]domain.Edge{
				"start": domain.Conditional("value >>> 1", "spin", "a"),
				"spin":  domain.Simple("b"),
			},
			NodeConfigs: map[string]domain.NodeConfig{
				"start": {Tool: "ghost"},
				"spin":  {Type: domain.NodeTypeLoop, LoopCondition: "open(", MaxIterations: 2},
			},
		})

		issues := runtime.Lint(g, known)
		byNode := map[string][]string{}
		for _, i := range issues {
			byNode[i.Node] = append(byNode[i.Node], i.Message)
		}

		assert.Len(t, byNode["start"], 2)
		assert.Contains(t, byNode["start"][0], `tool "ghost" is not registered`)
		assert.Contains(t, byNode["start"][1], "edge condition")
		assert.Len(t, byNode["spin"], 1)
		assert.Contains(t, byNode["spin"][0], "loop_condition")
		assert.Equal(t, []string{"unreachable from start node start"}, byNode["island"])
		assert.NotContains(t, byNode, "a")
		assert.NotContains(t, byNode, "b")
	})

	t.Run("Nil Tool Check", func(t *testing.T) {
		g := mustGraph(t, domain.GraphDefinition{
			Nodes:       []string{"a"},
			StartNode:   "a",
			NodeConfigs: map[string]domain.NodeConfig{"a": {Tool: "anything"}},
		})
		assert.Empty(t, runtime.Lint(g, nil))
	})
}

func TestReachable(t *testing.T) {
	g := mustGraph(t, domain.GraphDefinition{
		Nodes:     []string{"a", "b", "c", "d"},
		StartNode: "a",
		Edges: map[string]domain.Edge{
			"a": domain.Conditional("x", "b", "c"),
			"c": domain.Simple("a"),
		},
	})

	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, runtime.Reachable(g))
}
