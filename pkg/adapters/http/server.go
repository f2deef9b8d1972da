package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/flowline/internal/logging"
	"github.com/aretw0/flowline/pkg/definition"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"
	"github.com/aretw0/flowline/pkg/workflows/codereview"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server translates HTTP requests into WorkflowService calls.
type Server struct {
	Service ports.WorkflowService
	Streams *StreamManager

	logger   *slog.Logger
	version  string
	gatherer prometheus.Gatherer
	maxBody  int64
}

// DefaultMaxBodyBytes caps request bodies unless WithMaxBodyBytes says otherwise.
const DefaultMaxBodyBytes = 1 << 20

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by GET / and GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = strings.TrimSpace(v)
	}
}

// WithMaxBodyBytes caps the size of request bodies. Larger bodies get 413.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithMetrics exposes g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams serves GET /events from sm. Its Hooks must be wired into
// the engine for events to flow.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewHandler creates the HTTP handler for svc.
func NewHandler(svc ports.WorkflowService, opts ...Option) http.Handler {
	s := &Server{
		Service: svc,
		logger:  logging.NewNop(),
		version: "dev",
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/", s.Index)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Post("/graph/create", s.CreateGraph)
	r.Post("/graph/run", s.RunGraph)
	r.Get("/graph/state/{run_id}", s.GetRunState)
	r.Get("/graphs", s.ListGraphs)
	r.Get("/graphs/{graph_id}", s.GetGraph)
	r.Get("/runs", s.ListRuns)
	r.Get("/tools", s.ListTools)

	r.Get("/example/code-review", s.GetExample)
	r.Post("/example/run", s.RunExample)

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.Streams != nil {
		r.Get("/events", s.SubscribeEvents)
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// -- Responses --

type errorResponse struct {
	Detail string   `json:"detail"`
	Errors []string `json:"errors,omitempty"`
}

type runResponse struct {
	RunID             string                   `json:"run_id"`
	GraphID           string                   `json:"graph_id"`
	FinalState        domain.State             `json:"final_state"`
	ExecutionLog      []domain.LogEntry        `json:"execution_log"`
	Status            domain.RunStatus         `json:"status"`
	TerminationReason domain.TerminationReason `json:"termination_reason,omitempty"`
	Error             string                   `json:"error,omitempty"`
}

type stateResponse struct {
	RunID             string                   `json:"run_id"`
	GraphID           string                   `json:"graph_id"`
	CurrentState      domain.State             `json:"current_state"`
	CurrentNode       string                   `json:"current_node,omitempty"`
	Status            domain.RunStatus         `json:"status"`
	TerminationReason domain.TerminationReason `json:"termination_reason,omitempty"`
	Error             string                   `json:"error,omitempty"`
	Iterations        map[string]int           `json:"iterations"`
	ExecutionLog      []domain.LogEntry        `json:"execution_log"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
	FinishedAt        *time.Time               `json:"finished_at,omitempty"`
}

func newRunResponse(run *domain.Run) runResponse {
	return runResponse{
		RunID:             run.ID,
		GraphID:           run.GraphID,
		FinalState:        run.State,
		ExecutionLog:      run.Log,
		Status:            run.Status,
		TerminationReason: run.TerminationReason,
		Error:             run.Error,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Detail: err.Error()}
	for _, ve := range domain.ValidationErrors(err) {
		resp.Errors = append(resp.Errors, ve.Error())
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, resp)
}

// decodeBody reads a bounded JSON body into dst and reports whether the
// handler may continue.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
	return false
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrGraphNotFound), errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrGraphExists), errors.Is(err, domain.ErrRunExists):
		return http.StatusConflict
	case len(domain.ValidationErrors(err)) > 0:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// -- Handlers --

// Index handles GET /.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Workflow Engine API",
		"version": s.version,
		"endpoints": map[string]string{
			"create_graph":     "POST /graph/create",
			"run_graph":        "POST /graph/run",
			"get_state":        "GET /graph/state/{run_id}",
			"list_graphs":      "GET /graphs",
			"get_graph":        "GET /graphs/{graph_id}",
			"list_runs":        "GET /runs?graph_id=",
			"list_tools":       "GET /tools",
			"example_workflow": "GET /example/code-review",
			"run_example":      "POST /example/run",
		},
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "flowline-http",
		"version": s.version,
	})
}

// CreateGraph handles POST /graph/create.
func (s *Server) CreateGraph(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if !s.decodeBody(w, r, &body) {
		return
	}
	doc, err := definition.FromMap(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.Service.CreateGraph(r.Context(), doc.Definition())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"graph_id": id,
		"message":  "Graph created successfully",
	})
}

type runRequest struct {
	GraphID      string       `json:"graph_id"`
	InitialState domain.State `json:"initial_state"`
}

// RunGraph handles POST /graph/run. The run executes synchronously; a run
// that fails structurally is still reported with 200 and status "failed".
func (s *Server) RunGraph(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.GraphID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("graph_id is required"))
		return
	}

	run, err := s.Service.RunGraph(r.Context(), body.GraphID, body.InitialState)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, newRunResponse(run))
}

// GetRunState handles GET /graph/state/{run_id}.
func (s *Server) GetRunState(w http.ResponseWriter, r *http.Request) {
	run, err := s.Service.GetRunState(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, stateResponse{
		RunID:             run.ID,
		GraphID:           run.GraphID,
		CurrentState:      run.State,
		CurrentNode:       run.CurrentNode,
		Status:            run.Status,
		TerminationReason: run.TerminationReason,
		Error:             run.Error,
		Iterations:        run.Iterations,
		ExecutionLog:      run.Log,
		CreatedAt:         run.CreatedAt,
		UpdatedAt:         run.UpdatedAt,
		FinishedAt:        run.FinishedAt,
	})
}

// ListGraphs handles GET /graphs.
func (s *Server) ListGraphs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Service.ListGraphs(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"graphs": ids, "count": len(ids)})
}

// GetGraph handles GET /graphs/{graph_id}.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.Service.GetGraph(r.Context(), chi.URLParam(r, "graph_id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

// ListRuns handles GET /runs, optionally filtered by ?graph_id=.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Service.ListRuns(r.Context(), r.URL.Query().Get("graph_id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// ListTools handles GET /tools.
func (s *Server) ListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.Service.Tools()
	s.writeJSON(w, http.StatusOK, map[string]any{"tools": tools, "count": len(tools)})
}

// GetExample handles GET /example/code-review.
func (s *Server) GetExample(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"workflow":              codereview.Definition(),
		"example_initial_state": codereview.ExampleState(),
		"usage":                 "Use POST /graph/create with this workflow definition, then POST /graph/run with the example_initial_state",
	})
}

// RunExample handles POST /example/run: it stores the review graph and runs it on the sample code.
func (s *Server) RunExample(w http.ResponseWriter, r *http.Request) {
	graphID, err := s.Service.CreateGraph(r.Context(), codereview.Definition())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	run, err := s.Service.RunGraph(r.Context(), graphID, codereview.ExampleState())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":             run.ID,
		"graph_id":           run.GraphID,
		"final_state":        run.State,
		"execution_summary":  codereview.Summarize(run),
		"status":             run.Status,
		"termination_reason": run.TerminationReason,
	})
}
