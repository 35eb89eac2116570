// Package tools provides the tool abstraction and registry used by the agent loop.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/liteclaw/unillm/pkg/llm"
)

var (
	ErrToolNameEmpty = errors.New("tool name is empty")
	ErrNilExecutor   = errors.New("tool executor is nil")
)

// Tool is the interface for agent tools.
type Tool interface {
	// Name returns the tool name (used by the LLM).
	Name() string

	// Description returns a description for the LLM.
	Description() string

	// Parameters returns the JSON Schema for tool parameters.
	Parameters() map[string]any

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args llm.Arguments) (string, error)
}

// Func is a Tool backed by a plain function.
type Func struct {
	name        string
	description string
	parameters  map[string]any
	fn          llm.ToolExecutor
}

// NewFunc wraps fn as a Tool.
func NewFunc(name, description string, parameters map[string]any, fn llm.ToolExecutor) *Func {
	return &Func{name: name, description: description, parameters: parameters, fn: fn}
}

func (f *Func) Name() string               { return f.name }
func (f *Func) Description() string        { return f.description }
func (f *Func) Parameters() map[string]any { return f.parameters }

func (f *Func) Execute(ctx context.Context, args llm.Arguments) (string, error) {
	return f.fn(ctx, args)
}

// FromDefinition turns a definition with a bound executor into a Tool.
func FromDefinition(def llm.ToolDefinition) (Tool, bool) {
	if def.Execute == nil {
		return nil, false
	}
	return NewFunc(def.Name, def.Description, def.Parameters, def.Execute), true
}

// Definition describes t to the model, with its executor bound.
func Definition(t Tool) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
		Execute:     t.Execute,
	}
}

// Registry holds tools by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding initial.
func NewRegistry(initial ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(initial))}
	for _, t := range initial {
		_ = r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return ErrNilExecutor
	}
	if t.Name() == "" {
		return ErrToolNameEmpty
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	return nil
}

// RegisterFunc registers fn under name.
func (r *Registry) RegisterFunc(name, description string, parameters map[string]any, fn llm.ToolExecutor) error {
	if fn == nil {
		return fmt.Errorf("%w: %q", ErrNilExecutor, name)
	}
	return r.Register(NewFunc(name, description, parameters, fn))
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name()
	}
	return names
}

// Definitions returns a definition per registered tool, sorted by name.
func (r *Registry) Definitions() []llm.ToolDefinition {
	all := r.All()
	defs := make([]llm.ToolDefinition, len(all))
	for i, t := range all {
		defs[i] = Definition(t)
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
