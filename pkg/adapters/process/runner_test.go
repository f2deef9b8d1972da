package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/flowline/pkg/adapters/process"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(t *testing.T, name, script string) process.ProcessConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tools are exercised with sh")
	}
	return process.ProcessConfig{Name: name, Command: "sh", Args: []string{"-c", script}}
}

func TestRunner_Tool(t *testing.T) {
	ctx := context.Background()

	t.Run("Merges JSON Object", func(t *testing.T) {
		tool := process.NewRunner().Tool(shell(t, "score", `echo '{"quality_score": 82, "graded": true}'`))

		out, err := tool(ctx, domain.State{"code": "x"})
		require.NoError(t, err)
		assert.Equal(t, domain.State{"code": "x", "quality_score": float64(82), "graded": true}, out)
	})

	t.Run("Reads State From Stdin", func(t *testing.T) {
		tool := process.NewRunner().Tool(shell(t, "echo_state", "cat"))

		out, err := tool(ctx, domain.State{"attempts": 2, "notes": []any{"a"}})
		require.NoError(t, err)
		assert.Equal(t, float64(2), out["attempts"], "values round trip through JSON")
		assert.Equal(t, []any{"a"}, out["notes"])
	})

	t.Run("Passes Scalars Via Env Vars", func(t *testing.T) {
		cfg := shell(t, "greet", `echo "hello $FLOWLINE_ARG_USER_NAME from $ORIGIN"`)
		cfg.Environment = map[string]string{"ORIGIN": "tests"}
		tool := process.NewRunner().Tool(cfg)

		out, err := tool(ctx, domain.State{"user-name": "bob", "nested": map[string]any{"a": 1}})
		require.NoError(t, err)
		assert.Equal(t, "hello bob from tests", out["greet_output"])
	})

	t.Run("Custom Output Key", func(t *testing.T) {
		cfg := shell(t, "list", `echo '[1, 2]'`)
		cfg.OutputKey = "items"

		out, err := process.NewRunner().Tool(cfg)(ctx, domain.State{})
		require.NoError(t, err)
		assert.Equal(t, []any{float64(1), float64(2)}, out["items"])
	})

	t.Run("Silent Process Keeps State", func(t *testing.T) {
		out, err := process.NewRunner().Tool(shell(t, "noop", "true"))(ctx, domain.State{"k": "v"})
		require.NoError(t, err)
		assert.Equal(t, domain.State{"k": "v"}, out)
	})

	t.Run("Non Zero Exit Is An Error", func(t *testing.T) {
		_, err := process.NewRunner().Tool(shell(t, "crash", "echo boom >&2; exit 3"))(ctx, domain.State{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit status 3")
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("Timeout", func(t *testing.T) {
		runner := process.NewRunner(process.WithTimeout(50 * time.Millisecond))
		_, err := runner.Tool(shell(t, "slow", "sleep 5"))(ctx, domain.State{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Base Dir", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("found"), 0o644))

		out, err := process.NewRunner(process.WithBaseDir(dir)).Tool(shell(t, "read", "cat marker.txt"))(ctx, domain.State{})
		require.NoError(t, err)
		assert.Equal(t, "found", out["read_output"])
	})
}

func TestRunner_Register(t *testing.T) {
	reg := registry.NewRegistry()
	cfg := shell(t, "", `echo '{"done": true}'`)
	cfg.Description = "Marks the state as done"

	process.NewRunner().Register(reg, map[string]process.ProcessConfig{"finish": cfg})

	assert.Equal(t, []registry.ToolInfo{{Name: "finish", Description: "Marks the state as done"}}, reg.List())
	out, err := reg.Execute(context.Background(), "finish", domain.State{})
	require.NoError(t, err)
	assert.Equal(t, true, out["done"])
}
