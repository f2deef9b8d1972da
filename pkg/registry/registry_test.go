package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func increment(_ context.Context, s domain.State) (domain.State, error) {
	n, _ := s["count"].(int)
	s["count"] = n + 1
	return s, nil
}

func TestRegistry_ExecuteAndList(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("increment", increment, "Adds one to count")
	reg.Register("noop", func(context.Context, domain.State) (domain.State, error) { return nil, nil })

	out, err := reg.Execute(context.Background(), "increment", domain.State{"count": 1})
	require.NoError(t, err)
	assert.Equal(t, 2, out["count"])

	assert.Equal(t, []registry.ToolInfo{
		{Name: "increment", Description: "Adds one to count"},
		{Name: "noop"},
	}, reg.List())
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_NotFound(t *testing.T) {
	reg := registry.NewRegistry()
	_, err := reg.Execute(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, domain.ErrToolNotFound)

	_, ok := reg.Lookup("ghost")
	assert.False(t, ok)
}

func TestRegistry_Overwrite(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("t", increment)
	reg.Register("t", func(context.Context, domain.State) (domain.State, error) {
		return domain.State{"replaced": true}, nil
	})

	out, err := reg.Execute(context.Background(), "t", domain.State{})
	require.NoError(t, err)
	assert.Equal(t, true, out["replaced"])
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Isolated(t *testing.T) {
	a, b := registry.NewRegistry(), registry.NewRegistry()
	a.Register("only_a", increment)
	_, ok := b.Lookup("only_a")
	assert.False(t, ok)
}
