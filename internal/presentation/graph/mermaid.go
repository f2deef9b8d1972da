package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/flowline/pkg/domain"
)

// GraphOverlay contains run data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromRun marks the nodes a run went through.
func OverlayFromRun(run *domain.Run) *GraphOverlay {
	return &GraphOverlay{
		VisitedNodes: run.Visited(),
		CurrentNode:  run.CurrentNode,
	}
}

// GenerateMermaid produces a Mermaid flowchart for g.
// Node shapes follow their role:
// - Start: ((Circle))
// - Loop: {{Hexagon}}
// - Tool: [[Subroutine]]
// - Default: [Rectangle]
// Conditional edges become a labelled arrow for the true branch and a
// dotted one for the false branch; loops get a dotted self edge.
func GenerateMermaid(g *domain.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, name := range g.Nodes() {
		node, _ := g.Node(name)
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		switch {
		case name == g.StartNode():
			opener, closer = "((", "))"
		case node.IsLoop():
			opener, closer = "{{", "}}"
		case node.Tool != "":
			opener, closer = "[[", "]]"
		}

		label := name
		if node.Tool != "" {
			label = fmt.Sprintf("%s <br/> %s", name, node.Tool)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		if node.IsLoop() {
			fmt.Fprintf(&sb, "    %s -. \"%s (max %d)\" .-> %s\n", safeID, escape(node.LoopCondition), node.MaxIterations, safeID)
		}

		edge, ok := g.Edge(name)
		if !ok {
			continue
		}
		switch edge.Kind {
		case domain.EdgeConditional:
			cond := escape(edge.Condition)
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, cond, sanitizeMermaidID(edge.IfTrue))
			fmt.Fprintf(&sb, "    %s -. \"not %s\" .-> %s\n", safeID, cond, sanitizeMermaidID(edge.IfFalse))
		default:
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, sanitizeMermaidID(edge.Target))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast regardless of theme
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visited[safeID] && safeID != "" {
				visited[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

// escape swaps double quotes, which would close a Mermaid label.
func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
