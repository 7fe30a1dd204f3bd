package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps tool names to tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch parses a tool call from text and runs it. Any failure, including
// an unparseable call, is rendered as "error: <message>".
func (r *Registry) Dispatch(ctx context.Context, text string) string {
	call, err := ParseCall(text)
	if err != nil {
		return "error: " + err.Error()
	}

	t, ok := r.Get(call.ToolName)
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.ToolName)
	}

	result, _, err := t.Execute(ctx, call.GetArgumentsXML())
	if err != nil {
		return "error: " + err.Error()
	}
	return result
}
