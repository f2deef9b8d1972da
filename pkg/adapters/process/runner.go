package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/flowline/internal/logging"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/registry"
)

// EnvPrefix prefixes the scalar state values passed as environment variables.
const EnvPrefix = "FLOWLINE_ARG_"

// Runner turns allow-listed commands into registry tools.
//
// A process tool receives the run state as a JSON object on stdin and
// every top level scalar as FLOWLINE_ARG_<KEY>. A JSON object printed on
// stdout is merged into the state; any other output is stored under the
// tool's output key. A non-zero exit is a tool error.
type Runner struct {
	baseDir string
	timeout time.Duration
	logger  *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithTimeout bounds each invocation. Zero means no limit beyond the run context.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds every tool to reg, replacing tools with the same name.
func (r *Runner) Register(reg *registry.Registry, tools map[string]ProcessConfig) {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cfg := tools[name]
		cfg.Name = name
		reg.Register(name, r.Tool(cfg), cfg.Description)
		r.logger.Debug("registered process tool", "tool", name, "command", cfg.Command)
	}
}

// Tool returns the registry function that executes cfg.
func (r *Runner) Tool(cfg ProcessConfig) registry.ToolFunction {
	outputKey := cfg.OutputKey
	if outputKey == "" {
		outputKey = cfg.Name + "_output"
	}

	return func(ctx context.Context, state domain.State) (domain.State, error) {
		input, err := json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("state is not serializable: %w", err)
		}

		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		cmd.Dir = r.baseDir
		cmd.Env = append(cmd.Environ(), environment(cfg.Environment, state)...)
		cmd.Stdin = bytes.NewReader(input)
		// Children that inherit stdout must not keep a killed tool alive.
		cmd.WaitDelay = time.Second

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		started := time.Now()
		err = cmd.Run()
		r.logger.DebugContext(ctx, "process tool finished",
			"tool", cfg.Name,
			"duration", time.Since(started),
			"err", err)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", cfg.Command, ctx.Err())
			}
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return nil, fmt.Errorf("%s: %w", cfg.Command, err)
			}
			return nil, fmt.Errorf("%s: %w: %s", cfg.Command, err, msg)
		}

		return merge(state, stdout.Bytes(), outputKey), nil
	}
}

// merge folds the process output into state.
func merge(state domain.State, out []byte, key string) domain.State {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return state
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			if obj, ok := v.(map[string]any); ok {
				for k, val := range obj {
					state[k] = val
				}
				return state
			}
			state[key] = v
			return state
		}
	}
	state[key] = string(trimmed)
	return state
}

// environment renders the configured variables and the scalar state values.
// Values are never passed as command line flags.
func environment(extra map[string]string, state domain.State) []string {
	env := make([]string, 0, len(extra)+len(state))
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	for k, v := range state {
		var val string
		switch v.(type) {
		case string, bool, int, int64, float64:
			val = fmt.Sprint(v)
		case nil:
		default:
			continue
		}
		env = append(env, EnvPrefix+envName(k)+"="+val)
	}
	sort.Strings(env)
	return env
}

func envName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
}
