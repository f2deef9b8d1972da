package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/flowline/internal/runtime"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/observability"
	"github.com/aretw0/flowline/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopGraph(t *testing.T) *domain.Graph {
	t.Helper()
	g, err := domain.NewGraph("metrics-graph", domain.GraphDefinition{
		Nodes:     []string{"spin", "broken"},
		StartNode: "spin",
		Edges:     map[string]domain.Edge{"spin": domain.Simple("broken")},
		NodeConfigs: map[string]domain.NodeConfig{
			"spin":   {Type: domain.NodeTypeLoop, Tool: "noop", LoopCondition: "true", MaxIterations: 3},
			"broken": {Tool: "missing"},
		},
	})
	require.NoError(t, err)
	return g
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	tools := registry.NewRegistry()
	tools.Register("noop", func(_ context.Context, s domain.State) (domain.State, error) { return s, nil })

	e := runtime.NewEngine(tools, runtime.WithLifecycleHooks(m.Hooks()))
	g := loopGraph(t)
	run := domain.NewRun("r1", g.ID(), nil, time.Now())
	require.NoError(t, e.Execute(context.Background(), g, run))
	require.Equal(t, domain.RunCompleted, run.Status)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"flowline_runs_started_total",
		"flowline_runs_finished_total",
		"flowline_runs_active",
		"flowline_node_visits_total",
		"flowline_loop_cap_reached_total",
		"flowline_tool_duration_seconds",
		"flowline_tool_errors_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns()))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "flowline_runs_finished_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "flowline_node_visits_total"), "one series per node")
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "flowline_tool_errors_total"))
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	second, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	first.Hooks().OnRunStart(context.Background(), &domain.RunEvent{EventBase: domain.EventBase{GraphID: "g"}})
	assert.Equal(t, 1.0, testutil.ToFloat64(second.ActiveRuns()))
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	m, err := observability.NewMetrics(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.Hooks().OnNodeEnter(context.Background(), &domain.NodeEvent{NodeID: "a"})
	})
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	e := runtime.NewEngine(nil, runtime.WithLifecycleHooks(observability.LoggingHooks(logger)))
	g := loopGraph(t)
	run := domain.NewRun("r1", g.ID(), nil, time.Now())
	require.NoError(t, e.Execute(context.Background(), g, run))

	out := buf.String()
	assert.Contains(t, out, "msg=node_enter")
	assert.Contains(t, out, "node_id=spin")
	assert.Contains(t, out, "msg=tool_return")
	assert.Contains(t, out, "is_error=true")
}
