// Package tools provides the tool registry used by tool nodes.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// ErrToolNotFound is returned when a tool id is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Result is the output of a tool invocation.
type Result struct {
	Variables map[string]any `json:"variables,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Tool is an action a workflow can invoke by id.
type Tool interface {

	// ID returns the id the tool is registered under
	ID() string

	// Invoke runs the tool. vars holds the execution's variable bindings.
	Invoke(ctx context.Context, params map[string]any, vars map[string]any) (*Result, error)
}

// Registry resolves and invokes tools by id.
type Registry interface {
	Invoke(ctx context.Context, toolID string, params map[string]any, vars map[string]any) (*Result, error)
}

// Func wraps a function for use as a Tool.
type Func struct {
	id string
	fn func(ctx context.Context, params map[string]any, vars map[string]any) (*Result, error)
}

// NewFunc returns a Tool for the given function.
func NewFunc(id string, fn func(ctx context.Context, params map[string]any, vars map[string]any) (*Result, error)) *Func {
	return &Func{id: id, fn: fn}
}

func (f *Func) ID() string {
	return f.id
}

func (f *Func) Invoke(ctx context.Context, params map[string]any, vars map[string]any) (*Result, error) {
	return f.fn(ctx, params, vars)
}

// Typed returns a Tool whose parameters are decoded into TParams and whose
// result fields become output variables. Fields map by their mapstructure
// tag, or by name.
func Typed[TParams, TResult any](id string, fn func(ctx context.Context, params TParams) (TResult, error)) Tool {
	return NewFunc(id, func(ctx context.Context, params map[string]any, vars map[string]any) (*Result, error) {
		var typed TParams
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &typed,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(params); err != nil {
			return nil, fmt.Errorf("invalid parameters for tool %q: %w", id, err)
		}
		out, err := fn(ctx, typed)
		if err != nil {
			return nil, err
		}
		variables := map[string]any{}
		if err := mapstructure.Decode(out, &variables); err != nil {
			return nil, fmt.Errorf("invalid result from tool %q: %w", id, err)
		}
		return &Result{Variables: variables}, nil
	})
}

// MemoryRegistry is a Registry holding tools in memory. It is safe for
// concurrent use.
type MemoryRegistry struct {
	mutex sync.RWMutex
	tools map[string]Tool
}

// NewMemoryRegistry returns a registry holding the given tools.
func NewMemoryRegistry(tools ...Tool) *MemoryRegistry {
	r := &MemoryRegistry{tools: map[string]Tool{}}
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

// Register adds or replaces a tool.
func (r *MemoryRegistry) Register(tool Tool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.tools[tool.ID()] = tool
}

// Get returns a tool by id.
func (r *MemoryRegistry) Get(id string) (Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	tool, ok := r.tools[id]
	return tool, ok
}

// IDs returns the sorted ids of all registered tools.
func (r *MemoryRegistry) IDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Invoke implements Registry.
func (r *MemoryRegistry) Invoke(ctx context.Context, toolID string, params map[string]any, vars map[string]any) (*Result, error) {
	tool, ok := r.Get(toolID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, toolID)
	}
	result, err := tool.Invoke(ctx, params, vars)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &Result{}
	}
	return result, nil
}
