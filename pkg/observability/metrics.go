package observability

import (
	"context"
	"errors"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flowline"

// Metrics holds the engine collectors.
type Metrics struct {
	runsStarted  *prometheus.CounterVec
	runsFinished *prometheus.CounterVec
	runsActive   prometheus.Gauge
	runDuration  *prometheus.HistogramVec
	runSteps     *prometheus.HistogramVec
	nodeVisits   *prometheus.CounterVec
	loopCaps     *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	toolErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// Collectors that are already registered (e.g. by a second engine in the
// same process) are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of runs started",
		}, []string{"graph_id"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Total number of runs finished, by status and termination reason",
		}, []string{"status", "reason"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of runs currently executing",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		runSteps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Number of executed steps per finished run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"status"}),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node visits",
		}, []string{"node_id", "node_type"}),
		loopCaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_cap_reached_total",
			Help:      "Runs that finished after a loop hit max_iterations",
		}, []string{"graph_id"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool_name"}),
		toolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_errors_total",
			Help:      "Tool invocations that failed and were absorbed into state",
		}, []string{"tool_name"}),
	}

	if reg == nil {
		return m, nil
	}
	var err error
	m.runsStarted = register(reg, m.runsStarted, &err)
	m.runsFinished = register(reg, m.runsFinished, &err)
	m.runsActive = register(reg, m.runsActive, &err)
	m.runDuration = register(reg, m.runDuration, &err)
	m.runSteps = register(reg, m.runSteps, &err)
	m.nodeVisits = register(reg, m.nodeVisits, &err)
	m.loopCaps = register(reg, m.loopCaps, &err)
	m.toolDuration = register(reg, m.toolDuration, &err)
	m.toolErrors = register(reg, m.toolErrors, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, e *domain.RunEvent) {
			m.runsStarted.WithLabelValues(e.GraphID).Inc()
			m.runsActive.Inc()
		},
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) {
			m.runsActive.Dec()
			m.runsFinished.WithLabelValues(string(e.Status), string(e.Reason)).Inc()
			m.runDuration.WithLabelValues(string(e.Status)).Observe(e.Duration.Seconds())
			m.runSteps.WithLabelValues(string(e.Status)).Observe(float64(e.Steps))
			if e.Reason == domain.ReasonMaxIterationsExceeded {
				m.loopCaps.WithLabelValues(e.GraphID).Inc()
			}
		},
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.NodeID, string(e.NodeType)).Inc()
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			m.toolDuration.WithLabelValues(e.ToolName).Observe(e.Duration.Seconds())
			if e.IsError {
				m.toolErrors.WithLabelValues(e.ToolName).Inc()
			}
		},
	}
}

// ActiveRuns exposes the in-flight run gauge.
func (m *Metrics) ActiveRuns() prometheus.Gauge {
	return m.runsActive
}
