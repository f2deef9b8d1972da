package codereview_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flowline/internal/runtime"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/registry"
	"github.com/aretw0/flowline/pkg/workflows/codereview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func review(t *testing.T, state domain.State) *domain.Run {
	t.Helper()
	reg := registry.NewRegistry()
	codereview.Register(reg)

	g, err := codereview.Graph(codereview.GraphID)
	require.NoError(t, err)
	assert.Empty(t, runtime.Lint(g, func(name string) bool {
		_, ok := reg.Lookup(name)
		return ok
	}))

	run := domain.NewRun("review-1", g.ID(), state, time.Now())
	require.NoError(t, runtime.NewEngine(reg).Execute(context.Background(), g, run))
	require.Equal(t, domain.RunCompleted, run.Status)
	return run
}

func TestWorkflow_SampleIsRejectedAfterThreeScores(t *testing.T) {
	run := review(t, codereview.ExampleState())

	assert.Equal(t, []string{
		"extract", "analyze", "detect", "improve",
		"score", "score", "score",
		"reject",
	}, run.Visited())
	assert.Equal(t, domain.ReasonCompleted, run.TerminationReason)
	assert.Equal(t, 3, run.Iterations["score"])

	summary := codereview.Summarize(run)
	assert.Equal(t, 8, summary.TotalSteps)
	assert.InDelta(t, 60.9, summary.QualityScore, 1e-9)
	assert.Equal(t, 3, summary.NumIssues)
	assert.Equal(t, 3, summary.Iterations)
	assert.Equal(t, "changes_requested", summary.Verdict)
	assert.NotContains(t, run.State, domain.KeyError)
}

func TestWorkflow_CleanCodeIsApproved(t *testing.T) {
	code := `package clean

// Add returns the sum of a and b.
func Add(a, b int) int {
	return a + b
}
`
	run := review(t, domain.State{"code": code, "quality_threshold": codereview.QualityThreshold})

	assert.Equal(t, []string{"extract", "analyze", "detect", "improve", "score", "approve"}, run.Visited())
	assert.InDelta(t, 99.4, run.State["quality_score"], 1e-9)
	assert.Equal(t, "approved", run.State["verdict"])
}

func TestRegister_Descriptions(t *testing.T) {
	reg := registry.NewRegistry()
	codereview.Register(reg)

	assert.Equal(t, 7, reg.Len())
	for _, info := range reg.List() {
		assert.NotEmpty(t, info.Description, info.Name)
	}
}
