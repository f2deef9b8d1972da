package condition_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/flowline/pkg/condition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	state := map[string]any{
		"value":         5,
		"count":         int64(3),
		"ratio":         0.5,
		"name":          "flowline",
		"done":          false,
		"quality_score": 82.5,
		"tags":          []string{"a"},
		"empty":         []any{},
		"user":          map[string]any{"role": "admin", "age": 30},
		"nothing":       nil,
	}

	tests := []struct {
		expr string
		want bool
	}{
		// Comparisons
		{"value > 10", false},
		{"value<=5", true},
		{"value == 5", true},
		{"value != 5.0", false},
		{"count >= 3", true},
		{"ratio < 1", true},
		{"name == 'flowline'", true},
		{`name == "flowline"`, true},
		{"name > 'a'", true},
		{"-value < 0", true},
		{"value > -1", true},
		{"1e1 > value", true},

		// Combinators and precedence
		{"value > 1 and count < 10", true},
		{"value > 10 or count == 3", true},
		{"not done", true},
		{"!done && value == 5", true},
		{"value > 10 || count == 3 && name == 'x'", false},
		{"(value > 10 || count == 3) && name == 'flowline'", true},
		{"not not done", false},
		{"not value > 10", true},

		// Literals
		{"true", true},
		{"False", false},
		{"None == null", true},
		{"1", true},
		{"0", false},
		{"''", false},

		// State lookups
		{"state['value'] == 5", true},
		{"state.value == 5", true},
		{"state['user']['role'] == 'admin'", true},
		{"state.user.age > 18", true},
		{"user.role == 'admin'", true},
		{"state.get('quality_score', 0) >= 70", true},
		{"state.get('missing', 0) < 70", true},
		{"state.get('missing', 100) < 70", false},
		{"state.get('missing', -1) < 0", true},
		{"state.get('missing', 'x') == 'x'", true},
		{"state.get('missing')", false},
		{"state.get('quality_score', 0) < 70 and state.get('iteration', 0) < 3", false},

		// Missing keys default to the neutral value of the other operand
		{"missing < 3", true},
		{"missing == 0", true},
		{"missing == ''", true},
		{"missing == false", true},
		{"missing", false},
		{"not missing", true},
		{"user.missing.deeper == 0", true},
		{"nothing == 0", true},

		// Truthiness of collections
		{"tags", true},
		{"empty", false},
		{"tags == tags", true},

		// Mismatched kinds are unequal
		{"name == 5", false},
		{"name != 5", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := condition.Evaluate(tt.expr, state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"Empty", ""},
		{"Blank", "   "},
		{"Function Call", "len(tags) > 0"},
		{"Import", "__import__('os').system('ls')"},
		{"Method Call", "name.upper() == 'X'"},
		{"State Method", "state.keys()"},
		{"State Alone", "state"},
		{"Assignment", "value = 1"},
		{"Arithmetic", "value + 1 > 2"},
		{"Trailing Operator", "value >"},
		{"Unbalanced", "(value > 1"},
		{"Chained Compare", "1 < value < 10"},
		{"Unterminated String", "name == 'abc"},
		{"Non Literal Default", "state.get('a', b)"},
		{"Numeric Index", "state[0]"},
		{"Lambda", "lambda: 1"},
		{"Dangling And", "value and"},
		{"Semicolon", "value; value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := condition.Evaluate(tt.expr, map[string]any{"value": 1})
			require.Error(t, err)
			assert.True(t, errors.Is(err, condition.ErrEvaluation), "got %v", err)

			var ce *condition.Error
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.expr, ce.Expr)
		})
	}
}

func TestEvaluate_TypeErrors(t *testing.T) {
	state := map[string]any{"name": "x", "value": 1, "obj": map[string]any{}}

	for _, expr := range []string{"name < 5", "value >= 'a'", "obj < obj", "-name > 0"} {
		t.Run(expr, func(t *testing.T) {
			_, err := condition.Evaluate(expr, state)
			assert.ErrorIs(t, err, condition.ErrEvaluation)
		})
	}
}

func TestEvaluate_NestingLimit(t *testing.T) {
	ok, err := condition.Evaluate(strings.Repeat("(", 256)+"1"+strings.Repeat(")", 256), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	tests := []struct {
		name string
		expr string
	}{
		{"Parentheses", strings.Repeat("(", 3_000_000) + "1"},
		{"Negation", strings.Repeat("-", 1_000_000) + "1 > 0"},
		{"Not Keyword", strings.Repeat("not ", 300) + "true"},
		{"Bang", strings.Repeat("!", 300) + "true"},
		{"Mixed", strings.Repeat("(-", 200) + "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := condition.Compile(tt.expr)
			require.ErrorIs(t, err, condition.ErrEvaluation)
			assert.Contains(t, err.Error(), "nested too deeply")
			assert.Less(t, len(err.Error()), 300)
		})
	}
}

func TestEvaluate_ShortCircuit(t *testing.T) {
	// The right operand would fail with a type error if evaluated
	ok, err := condition.Evaluate("false and name < 5", map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = condition.Evaluate("true or name < 5", map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_DoesNotMutateState(t *testing.T) {
	state := map[string]any{"nested": map[string]int{"a": 1}}
	_, err := condition.Evaluate("nested.a == 1 and state.get('x', 3) == 3", state)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nested": map[string]int{"a": 1}}, state)
}

func TestEvaluator_Cache(t *testing.T) {
	ev := condition.NewEvaluator()
	p1, err := ev.Program("count < 3")
	require.NoError(t, err)
	p2, err := ev.Program("count < 3")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, "count < 3", p1.String())

	_, err = ev.Program("count <")
	assert.Error(t, err)
}

func TestEvaluator_CacheReset(t *testing.T) {
	ev := &condition.Evaluator{MaxCached: 1}
	p1, _ := ev.Program("a")
	_, _ = ev.Program("b")
	p3, _ := ev.Program("a")
	assert.NotSame(t, p1, p3)
}

func TestEvaluator_Concurrent(t *testing.T) {
	var ev condition.Evaluator
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := ev.Evaluate(context.Background(), "count < 25", map[string]any{"count": i})
			assert.NoError(t, err)
			assert.Equal(t, i < 25, ok)
		}(i)
	}
	wg.Wait()
}

func TestEvaluator_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := condition.NewEvaluator().Evaluate(ctx, "true", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMustCompile(t *testing.T) {
	assert.NotPanics(t, func() { condition.MustCompile("a > 1") })
	assert.Panics(t, func() { condition.MustCompile("a >") })
}
