package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/flowline"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"
	"github.com/aretw0/flowline/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkGraphJSON = `{
  "nodes": ["check", "high", "low"],
  "start_node": "check",
  "edges": {
    "check": {"condition": "value > 10", "true": "high", "false": "low"}
  }
}`

func newTestHandler(t *testing.T, opts ...Option) (http.Handler, *flowline.Engine) {
	t.Helper()
	eng, err := flowline.New()
	require.NoError(t, err)
	return NewHandler(eng, opts...), eng
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func createGraph(t *testing.T, h http.Handler, doc string) string {
	t.Helper()
	w, body := do(t, h, http.MethodPost, "/graph/create", doc)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Graph created successfully", body["message"])
	return body["graph_id"].(string)
}

func TestServer_CreateRunState(t *testing.T) {
	h, _ := newTestHandler(t)
	graphID := createGraph(t, h, checkGraphJSON)

	w, run := do(t, h, http.MethodPost, "/graph/run", `{"graph_id":"`+graphID+`","initial_state":{"value":15}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", run["status"])
	assert.Equal(t, "completed", run["termination_reason"])
	assert.Equal(t, graphID, run["graph_id"])
	log := run["execution_log"].([]any)
	require.Len(t, log, 2)
	assert.Equal(t, "high", log[1].(map[string]any)["node"])

	runID := run["run_id"].(string)
	w, state := do(t, h, http.MethodGet, "/graph/state/"+runID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", state["status"])
	assert.Equal(t, "high", state["current_node"])
	assert.Equal(t, float64(15), state["current_state"].(map[string]any)["value"])
	assert.NotEmpty(t, state["finished_at"])

	_, graphs := do(t, h, http.MethodGet, "/graphs", "")
	assert.Equal(t, float64(1), graphs["count"])
	assert.Equal(t, []any{graphID}, graphs["graphs"])

	w, graph := do(t, h, http.MethodGet, "/graphs/"+graphID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "check", graph["start_node"])

	_, runs := do(t, h, http.MethodGet, "/runs?graph_id="+graphID, "")
	assert.Equal(t, float64(1), runs["count"])
	_, none := do(t, h, http.MethodGet, "/runs?graph_id=other", "")
	assert.Equal(t, float64(0), none["count"])
}

func TestServer_FailedRunIsStillOK(t *testing.T) {
	h, _ := newTestHandler(t)
	graphID := createGraph(t, h, checkGraphJSON)

	w, run := do(t, h, http.MethodPost, "/graph/run", `{"graph_id":"`+graphID+`","initial_state":{"value":"abc"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "failed", run["status"])
	assert.Equal(t, "evaluation_error", run["termination_reason"])
	assert.NotEmpty(t, run["error"])
}

func TestServer_ClientErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		detail string
	}{
		{"Malformed Body", http.MethodPost, "/graph/create", `{"nodes":`, http.StatusBadRequest, "invalid request body"},
		{"Bad Edge", http.MethodPost, "/graph/create", `{"nodes":["a"],"start_node":"a","edges":{"a":7}}`, http.StatusBadRequest, "edge must be"},
		{"Missing Graph ID", http.MethodPost, "/graph/run", `{}`, http.StatusBadRequest, "graph_id is required"},
		{"Unknown Graph", http.MethodPost, "/graph/run", `{"graph_id":"nope"}`, http.StatusNotFound, "graph not found"},
		{"Unknown Run", http.MethodGet, "/graph/state/nope", "", http.StatusNotFound, "run not found"},
		{"Unknown Graph Lookup", http.MethodGet, "/graphs/nope", "", http.StatusNotFound, "graph not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, body["detail"], tt.detail)
		})
	}
}

func TestServer_BodyLimit(t *testing.T) {
	h, _ := newTestHandler(t, WithMaxBodyBytes(256))
	huge := `{"nodes":["a"],"start_node":"a","edges":{"a":{"condition":"` + strings.Repeat("(", 1024) + `1","true":"a","false":"a"}}}`

	for _, path := range []string{"/graph/create", "/graph/run"} {
		t.Run(path, func(t *testing.T) {
			w, body := do(t, h, http.MethodPost, path, huge)
			assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
			assert.Contains(t, body["detail"], "exceeds 256 bytes")
		})
	}

	createGraph(t, h, `{"nodes":["a"],"start_node":"a"}`)
}

func TestServer_ValidationErrorsAreListed(t *testing.T) {
	h, _ := newTestHandler(t)
	w, body := do(t, h, http.MethodPost, "/graph/create",
		`{"nodes":["a","a"],"start_node":"z","edges":{"a":"ghost"}}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	errs := body["errors"].([]any)
	assert.Len(t, errs, 3)
	assert.Contains(t, body["detail"], "duplicate node")

	_, graphs := do(t, h, http.MethodGet, "/graphs", "")
	assert.Equal(t, float64(0), graphs["count"])
}

type brokenService struct {
	ports.WorkflowService
}

func (brokenService) ListGraphs(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func (brokenService) CreateGraph(context.Context, domain.GraphDefinition) (string, error) {
	return "", errors.New("connection refused")
}

func TestServer_InternalErrors(t *testing.T) {
	h := NewHandler(brokenService{})

	w, body := do(t, h, http.MethodGet, "/graphs", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "connection refused", body["detail"])

	w, _ = do(t, h, http.MethodPost, "/example/run", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_Metadata(t *testing.T) {
	h, _ := newTestHandler(t, WithVersion("1.2.3\n"))

	_, index := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, "1.2.3", index["version"])
	assert.Contains(t, index["endpoints"], "run_graph")

	_, health := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, "ok", health["status"])

	_, info := do(t, h, http.MethodGet, "/info", "")
	assert.Equal(t, "flowline-http", info["app"])

	_, tools := do(t, h, http.MethodGet, "/tools", "")
	assert.Equal(t, float64(7), tools["count"])

	w, _ := do(t, h, http.MethodOptions, "/graph/run", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w, _ = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "metrics are opt-in")
}

func TestServer_Example(t *testing.T) {
	h, _ := newTestHandler(t)

	_, example := do(t, h, http.MethodGet, "/example/code-review", "")
	assert.Contains(t, example, "workflow")
	assert.Contains(t, example["example_initial_state"], "code")

	w, run := do(t, h, http.MethodPost, "/example/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", run["status"])
	summary := run["execution_summary"].(map[string]any)
	assert.Equal(t, "changes_requested", summary["verdict"])
	assert.Equal(t, float64(8), summary["total_steps"])

	// The example graph is stored anew on every call.
	do(t, h, http.MethodPost, "/example/run", "")
	_, graphs := do(t, h, http.MethodGet, "/graphs", "")
	assert.Equal(t, float64(2), graphs["count"])
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "flowline_test_total", Help: "test"}))
	h, _ := newTestHandler(t, WithMetrics(reg))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flowline_test_total 0")
}

func TestStreamManager_Broadcast(t *testing.T) {
	sm := NewStreamManager(nil)
	one, cancelOne := sm.Subscribe("run-1")
	all, cancelAll := sm.Subscribe("")
	defer cancelAll()

	sm.Broadcast("run-1", []byte("a"))
	sm.Broadcast("run-2", []byte("b"))

	assert.Equal(t, []byte("a"), <-one)
	assert.Equal(t, []byte("a"), <-all)
	assert.Equal(t, []byte("b"), <-all)
	assert.Empty(t, one)

	cancelOne()
	cancelOne()
	_, open := <-one
	assert.False(t, open)
	sm.Broadcast("run-1", []byte("c"))
	assert.Equal(t, []byte("c"), <-all)
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("r")
	defer cancel()

	for i := 0; i < 100; i++ {
		sm.Broadcast("r", []byte("x"))
	}
	assert.Equal(t, 32, len(ch))
}

func TestSubscribeEvents(t *testing.T) {
	sm := NewStreamManager(nil)
	reg := registry.NewRegistry()
	eng, err := flowline.New(flowline.WithRegistry(reg), flowline.WithLifecycleHooks(sm.Hooks()))
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(eng, WithStreams(sm)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	graphID, err := eng.CreateGraph(ctx, domain.GraphDefinition{
		Nodes:     []string{"a", "b"},
		StartNode: "a",
		Edges:     map[string]domain.Edge{"a": domain.Simple("b")},
	})
	require.NoError(t, err)

	runResp, err := srv.Client().Post(srv.URL+"/graph/run", "application/json",
		bytes.NewBufferString(`{"graph_id":"`+graphID+`"}`))
	require.NoError(t, err)
	runResp.Body.Close()

	var types []string
	for lines.Scan() {
		line := lines.Text()
		if !strings.HasPrefix(line, "data: {") {
			continue
		}
		var ev domain.EventBase
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		types = append(types, string(ev.Type))
		if ev.Type == domain.EventRunFinish {
			break
		}
	}
	assert.Equal(t, []string{"run_start", "node_enter", "node_leave", "node_enter", "node_leave", "run_finish"}, types)
}
