package runtime

import (
	"fmt"

	"github.com/aretw0/flowline/pkg/condition"
	"github.com/aretw0/flowline/pkg/domain"
)

// Issue is a problem that does not make a graph invalid but will surface
// at run time: a malformed expression fails the run, a missing tool
// becomes an absorbed tool error, an unreachable node never runs.
type Issue struct {
	Node    string `json:"node"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Node, i.Message)
}

// Lint inspects a validated graph. knownTool may be nil to skip tool checks.
func Lint(graph *domain.Graph, knownTool func(name string) bool) []Issue {
	var issues []Issue

	for _, name := range graph.Nodes() {
		node, _ := graph.Node(name)
		if node.Tool != "" && knownTool != nil && !knownTool(node.Tool) {
			issues = append(issues, Issue{Node: name, Message: fmt.Sprintf("tool %q is not registered", node.Tool)})
		}
		if node.IsLoop() {
			if _, err := condition.Compile(node.LoopCondition); err != nil {
				issues = append(issues, Issue{Node: name, Message: "loop_condition: " + err.Error()})
			}
		}
		if edge, ok := graph.Edge(name); ok && edge.Kind == domain.EdgeConditional {
			if _, err := condition.Compile(edge.Condition); err != nil {
				issues = append(issues, Issue{Node: name, Message: "edge condition: " + err.Error()})
			}
		}
	}

	reachable := Reachable(graph)
	for _, name := range graph.Nodes() {
		if !reachable[name] {
			issues = append(issues, Issue{Node: name, Message: "unreachable from start node " + graph.StartNode()})
		}
	}
	return issues
}

// Reachable returns the set of nodes reachable from the start node.
func Reachable(graph *domain.Graph) map[string]bool {
	seen := map[string]bool{graph.StartNode(): true}
	queue := []string{graph.StartNode()}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		edge, ok := graph.Edge(name)
		if !ok {
			continue
		}
		for _, target := range edge.Targets() {
			if !seen[target] {
				seen[target] = true
				queue = append(queue, target)
			}
		}
	}
	return seen
}
