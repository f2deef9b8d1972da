package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/flowline/pkg/domain"
)

// ToolFunction defines the signature for a tool implementation.
// It receives a private copy of the run state and returns the updated state.
// Returning a nil state leaves the run state unchanged.
type ToolFunction func(ctx context.Context, state domain.State) (domain.State, error)

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type entry struct {
	fn   ToolFunction
	info ToolInfo
}

// Registry manages the available tools.
// Each engine receives its own Registry; there is no package-level instance.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten.
// An optional description is shown in tool listings.
func (r *Registry) Register(name string, fn ToolFunction, description ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := ToolInfo{Name: name}
	if len(description) > 0 {
		info.Description = description[0]
	}
	r.tools[name] = entry{fn: fn, info: info}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (ToolFunction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.fn, ok
}

// Execute looks up a tool by name and executes it.
// Returns an error wrapping domain.ErrToolNotFound if the tool is not found.
func (r *Registry) Execute(ctx context.Context, name string, state domain.State) (domain.State, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	return fn(ctx, state)
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolInfo, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
