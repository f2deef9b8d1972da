package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/flowline/internal/logging"
	"github.com/aretw0/flowline/internal/presentation/graph"
	"github.com/aretw0/flowline/pkg/definition"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURIPrefix addresses stored graphs as MCP resources.
const GraphURIPrefix = "flowline://graphs/"

// RunResult is the payload of the run_graph and get_run tools.
type RunResult struct {
	RunID             string                   `json:"run_id"`
	GraphID           string                   `json:"graph_id"`
	Status            domain.RunStatus         `json:"status"`
	TerminationReason domain.TerminationReason `json:"termination_reason,omitempty"`
	Error             string                   `json:"error,omitempty"`
	Path              []string                 `json:"path"`
	FinalState        domain.State             `json:"final_state"`
}

func newRunResult(run *domain.Run) RunResult {
	return RunResult{
		RunID:             run.ID,
		GraphID:           run.GraphID,
		Status:            run.Status,
		TerminationReason: run.TerminationReason,
		Error:             run.Error,
		Path:              run.Visited(),
		FinalState:        run.State,
	}
}

// Server exposes a WorkflowService as an MCP server so agents can define
// and execute graphs.
type Server struct {
	service   ports.WorkflowService
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(svc ports.WorkflowService, version string, opts ...Option) *Server {
	s := &Server{
		service: svc,
		mcpServer: server.NewMCPServer("flowline-mcp", strings.TrimSpace(version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. to mount another transport.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Serve speaks MCP over the given streams until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("create_graph",
		mcp.WithDescription("Validate and store a workflow graph. Returns its graph_id."),
		mcp.WithObject("graph", mcp.Required(),
			mcp.Description("Graph document with nodes, edges, start_node and optional node_configs")),
	), s.handleCreateGraph)

	s.mcpServer.AddTool(mcp.NewTool("run_graph",
		mcp.WithDescription("Execute a stored graph to completion and return the final state and path."),
		mcp.WithString("graph_id", mcp.Required(), mcp.Description("ID returned by create_graph")),
		mcp.WithObject("initial_state", mcp.Description("Initial state of the run")),
	), s.handleRunGraph)

	s.mcpServer.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get the recorded state of a run."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID returned by run_graph")),
	), s.handleGetRun)

	s.mcpServer.AddTool(mcp.NewTool("list_graphs",
		mcp.WithDescription("List the IDs of the stored graphs."),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.service.ListGraphs(ctx)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("list graphs failed", err), nil
		}
		return jsonResult(map[string]any{"graphs": ids})
	})

	s.mcpServer.AddTool(mcp.NewTool("list_tools",
		mcp.WithDescription("List the tools that graph nodes can invoke."),
	), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{"tools": s.service.Tools()})
	})
}

func (s *Server) handleCreateGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := request.GetArguments()["graph"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("graph must be an object"), nil
	}
	doc, err := definition.FromMap(raw)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid graph document", err), nil
	}
	id, err := s.service.CreateGraph(ctx, doc.Definition())
	if err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}
	s.logger.InfoContext(ctx, "graph created via mcp", "graph_id", id)
	return jsonResult(map[string]any{"graph_id": id, "unused_keys": doc.Unused})
}

func (s *Server) handleRunGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, err := request.RequireString("graph_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var initial domain.State
	if v, ok := request.GetArguments()["initial_state"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return mcp.NewToolResultError("initial_state must be an object"), nil
		}
		initial = domain.State(m)
	}

	run, err := s.service.RunGraph(ctx, graphID, initial)
	if err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}
	return jsonResult(newRunResult(run))
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := s.service.GetRunState(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}
	return jsonResult(newRunResult(run))
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(GraphURIPrefix+"{graph_id}", "Graph Definition",
		mcp.WithTemplateDescription("A stored graph as a JSON document"),
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		g, err := s.graph(ctx, request.Params.URI, "")
		if err != nil {
			return nil, err
		}
		data, err := definition.Encode(g.Definition(), nil, definition.FormatJSON)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}}, nil
	})

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(GraphURIPrefix+"{graph_id}/mermaid", "Graph Diagram",
		mcp.WithTemplateDescription("A stored graph as a Mermaid flowchart"),
		mcp.WithTemplateMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		g, err := s.graph(ctx, request.Params.URI, "/mermaid")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/plain",
			Text:     graph.GenerateMermaid(g, nil),
		}}, nil
	})
}

func (s *Server) graph(ctx context.Context, uri, suffix string) (*domain.Graph, error) {
	id := strings.TrimSuffix(strings.TrimPrefix(uri, GraphURIPrefix), suffix)
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("invalid graph uri %q", uri)
	}
	return s.service.GetGraph(ctx, id)
}

// describe flattens validation errors so agents see every problem at once.
func describe(err error) string {
	ves := domain.ValidationErrors(err)
	if len(ves) == 0 {
		return err.Error()
	}
	msgs := make([]string, len(ves))
	for i, ve := range ves {
		msgs[i] = ve.Error()
	}
	return "invalid graph: " + strings.Join(msgs, "; ")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(errors.New("failed to encode tool result"), err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
