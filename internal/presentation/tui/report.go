package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/muesli/termenv"
)

// Markdown renders a finished run as a markdown report: a summary table,
// one row per step with the state keys it changed, and the final state.
func Markdown(run *domain.Run) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Run %s\n\n", run.ID)
	sb.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Graph | %s |\n", run.GraphID)
	fmt.Fprintf(&sb, "| Status | %s |\n", run.Status)
	if run.TerminationReason != "" {
		fmt.Fprintf(&sb, "| Reason | %s |\n", run.TerminationReason)
	}
	fmt.Fprintf(&sb, "| Steps | %d |\n", len(run.Log))
	if run.Error != "" {
		fmt.Fprintf(&sb, "| Error | %s |\n", cell(run.Error))
	}

	sb.WriteString("\n## Steps\n\n")
	sb.WriteString("| # | Node | Iteration | Changed | Next |\n|---|---|---|---|---|\n")
	for i, d := range domain.DiffLog(run.Log) {
		entry := run.Log[i]
		node := d.Node
		if d.Errored {
			node += " (error)"
		}
		if entry.Skipped {
			node += " (skipped)"
		}
		iteration := ""
		if entry.Iteration > 0 {
			iteration = fmt.Sprint(entry.Iteration)
			if entry.LoopCapReached {
				iteration += " (cap)"
			}
		}
		next := entry.Next
		if next == "" {
			next = "end"
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n", d.Step, node, iteration, cell(changedKeys(d.Delta)), next)
	}

	sb.WriteString("\n## Final state\n\n```json\n")
	data, err := json.MarshalIndent(run.State, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%q", err.Error()))
	}
	sb.Write(data)
	sb.WriteString("\n```\n")
	return sb.String()
}

// StatusLine is a one-line summary coloured by status.
func StatusLine(run *domain.Run, profile termenv.Profile) string {
	color := "#22c55e"
	if run.Status == domain.RunFailed {
		color = "#ef4444"
	} else if run.TerminationReason == domain.ReasonMaxIterationsExceeded {
		color = "#f59e0b"
	}
	text := fmt.Sprintf("%s (%s) after %d steps", run.Status, run.TerminationReason, len(run.Log))
	return profile.String(text).Foreground(profile.Color(color)).Bold().String()
}

func changedKeys(delta map[string]any) string {
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// cell keeps a value from breaking the table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
