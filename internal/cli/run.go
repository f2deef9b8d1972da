package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/flowline"
	"github.com/aretw0/flowline/internal/presentation/graph"
	"github.com/aretw0/flowline/internal/presentation/tui"
	"github.com/aretw0/flowline/pkg/definition"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/muesli/termenv"
)

// Output formats of RunFile.
const (
	OutputMarkdown = "markdown"
	OutputJSON     = "json"
	OutputMermaid  = "mermaid"
)

// RunOptions contains the configuration for the run command.
type RunOptions struct {
	Path string
	// State is a JSON object merged over the document's initial_state.
	State  string
	Output string
	// TTY enables styled markdown and coloured status lines.
	TTY bool
}

// LoadDocument reads a graph file and validates it under id.
func LoadDocument(path, id string) (*definition.Document, *domain.Graph, error) {
	doc, err := definition.Load(path)
	if err != nil {
		return nil, nil, err
	}
	g, err := domain.NewGraph(id, doc.Definition())
	if err != nil {
		return doc, nil, fmt.Errorf("invalid graph %s:\n%w", path, err)
	}
	return doc, g, nil
}

// RunFile stores the graph of opts.Path, runs it and writes a report to w.
// The returned run is nil only when the graph could not be loaded or stored.
func RunFile(ctx context.Context, eng *flowline.Engine, opts RunOptions, w io.Writer, logger *slog.Logger) (*domain.Run, error) {
	doc, err := definition.Load(opts.Path)
	if err != nil {
		return nil, err
	}
	initial := doc.State()
	if opts.State != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(opts.State), &extra); err != nil {
			return nil, fmt.Errorf("error parsing --state JSON: %w", err)
		}
		for k, v := range extra {
			initial[k] = v
		}
	}

	graphID, err := eng.CreateGraph(ctx, doc.Definition())
	if err != nil {
		return nil, err
	}
	for _, key := range doc.Unused {
		logger.Warn("ignoring unknown key", "file", opts.Path, "key", key)
	}
	g, err := eng.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	for _, issue := range eng.Lint(g) {
		logger.Warn("graph issue", "node", issue.Node, "issue", issue.Message)
	}

	run, err := eng.RunGraph(ctx, graphID, initial)
	if err != nil {
		return nil, err
	}
	return run, WriteReport(w, g, run, opts)
}

// WriteReport renders run in the requested format.
func WriteReport(w io.Writer, g *domain.Graph, run *domain.Run, opts RunOptions) error {
	switch opts.Output {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)

	case OutputMermaid:
		_, err := io.WriteString(w, graph.GenerateMermaid(g, graph.OverlayFromRun(run)))
		return err

	case OutputMarkdown, "":
		render, err := tui.NewRenderer(opts.TTY)
		if err != nil {
			return err
		}
		out, err := render(tui.Markdown(run))
		if err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		profile := termenv.Ascii
		if opts.TTY {
			profile = termenv.EnvColorProfile()
		}
		_, err = fmt.Fprintf(w, "%s\n%s\n", out, tui.StatusLine(run, profile))
		return err
	}
	return fmt.Errorf("unknown output format %q (want markdown, json or mermaid)", opts.Output)
}
