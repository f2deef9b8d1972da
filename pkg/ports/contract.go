package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs a suite of tests to verify that a Store implementation
// adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	graph := func(id string) *domain.Graph {
		g, err := domain.NewGraph(id, domain.GraphDefinition{
			Nodes:     []string{"check", "high", "low"},
			StartNode: "check",
			Edges: map[string]domain.Edge{
				"check": domain.Conditional("value > 10", "high", "low"),
			},
			NodeConfigs: map[string]domain.NodeConfig{
				"check": {Type: domain.NodeTypeConditional, Tool: "inspect"},
			},
		})
		require.NoError(t, err)
		return g
	}

	t.Run("Create and Get Graph", func(t *testing.T) {
		id := "contract-graph-" + suffix
		g := graph(id)
		require.NoError(t, store.CreateGraph(ctx, g))

		loaded, err := store.GetGraph(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, loaded.ID())
		assert.Equal(t, g.Definition(), loaded.Definition())

		err = store.CreateGraph(ctx, g)
		assert.ErrorIs(t, err, domain.ErrGraphExists)
	})

	t.Run("Get Non-Existent Graph", func(t *testing.T) {
		_, err := store.GetGraph(ctx, "non-existent-"+suffix)
		assert.ErrorIs(t, err, domain.ErrGraphNotFound)
	})

	t.Run("List Graphs", func(t *testing.T) {
		id1, id2 := "contract-list-a-"+suffix, "contract-list-b-"+suffix
		require.NoError(t, store.CreateGraph(ctx, graph(id2)))
		require.NoError(t, store.CreateGraph(ctx, graph(id1)))

		ids, err := store.ListGraphs(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
		assert.IsNonDecreasing(t, ids)
	})

	t.Run("Create Save and Get Run", func(t *testing.T) {
		id := "contract-run-" + suffix
		run := domain.NewRun(id, "g", domain.State{"count": 0, "tags": []any{"a"}}, now)
		require.NoError(t, store.CreateRun(ctx, run))
		assert.ErrorIs(t, store.CreateRun(ctx, run), domain.ErrRunExists)

		require.NoError(t, run.Transition(domain.RunRunning, now))
		run.Iterations["loop"] = 2
		run.State["count"] = 1
		run.Append(domain.LogEntry{
			Step:        0,
			Node:        "loop",
			StateBefore: domain.State{"count": 0},
			StateAfter:  domain.State{"count": 1},
			Iteration:   1,
			Next:        "loop",
			Timestamp:   now,
		})
		require.NoError(t, store.SaveRun(ctx, run))

		loaded, err := store.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.RunRunning, loaded.Status)
		assert.Equal(t, "g", loaded.GraphID)
		assert.Equal(t, 2, loaded.Iterations["loop"])
		require.Len(t, loaded.Log, 1)
		assert.Equal(t, "loop", loaded.Log[0].Node)
		assert.Equal(t, 1, loaded.Log[0].Iteration)
		// JSON based stores turn ints into float64, so compare loosely.
		assert.EqualValues(t, 1, loaded.State["count"])
		assert.EqualValues(t, 1, loaded.Log[0].StateAfter["count"])
		assert.True(t, loaded.CreatedAt.Equal(now))
	})

	t.Run("Stored Runs Are Isolated", func(t *testing.T) {
		id := "contract-isolated-" + suffix
		run := domain.NewRun(id, "g", domain.State{"k": "v"}, now)
		require.NoError(t, store.CreateRun(ctx, run))

		run.State["k"] = "mutated"
		loaded, err := store.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "v", loaded.State["k"])

		loaded.State["k"] = "mutated again"
		again, err := store.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "v", again.State["k"])
	})

	t.Run("Save Unknown Run", func(t *testing.T) {
		run := domain.NewRun("unknown-"+suffix, "g", nil, now)
		assert.ErrorIs(t, store.SaveRun(ctx, run), domain.ErrRunNotFound)
	})

	t.Run("Get Non-Existent Run", func(t *testing.T) {
		_, err := store.GetRun(ctx, "non-existent-"+suffix)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("List Runs", func(t *testing.T) {
		gid := "contract-runs-graph-" + suffix
		first := domain.NewRun(gid+"-1", gid, nil, now)
		second := domain.NewRun(gid+"-2", gid, nil, now.Add(time.Second))
		other := domain.NewRun(gid+"-3", "other-"+suffix, nil, now)
		for _, r := range []*domain.Run{second, other, first} {
			require.NoError(t, store.CreateRun(ctx, r))
		}

		runs, err := store.ListRuns(ctx, RunFilter{GraphID: gid})
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, first.ID, runs[0].ID)
		assert.Equal(t, second.ID, runs[1].ID)

		all, err := store.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		ids := make([]string, len(all))
		for i, r := range all {
			ids[i] = r.ID
		}
		assert.Contains(t, ids, other.ID)
		assert.Contains(t, ids, first.ID)
	})

	t.Run("Concurrent Runs", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				run := domain.NewRun(fmt.Sprintf("contract-concurrent-%s-%d", suffix, i), "g", domain.State{"i": i}, now)
				assert.NoError(t, store.CreateRun(ctx, run))
				run.State["done"] = true
				assert.NoError(t, store.SaveRun(ctx, run))
			}(i)
		}
		wg.Wait()

		for i := 0; i < 10; i++ {
			loaded, err := store.GetRun(ctx, fmt.Sprintf("contract-concurrent-%s-%d", suffix, i))
			require.NoError(t, err)
			assert.Equal(t, true, loaded.State["done"])
		}
	})
}
