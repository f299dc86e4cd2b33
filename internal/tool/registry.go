package tool

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Schema is a tool's name paired with its description and JSON Schema.
type Schema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Registry holds registered tools and runs them with an optional
// allowlist and per-call timeout. It is instance-based so tests and
// multiple agents can hold independent registries.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	allowlist map[string]struct{} // nil = all tools allowed
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// SetAllowlist restricts execution to the named tools. A nil or empty
// list removes the restriction.
func (r *Registry) SetAllowlist(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		r.allowlist = nil
		return
	}
	r.allowlist = make(map[string]struct{}, len(names))
	for _, n := range names {
		r.allowlist[n] = struct{}{}
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	r.tools[name] = t
	return nil
}

// Unregister removes a tool by name. Removing an absent tool is a no-op,
// so tool modules can clean up on Stop without tracking registration state.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Schemas returns the schemas of all allowed tools sorted by name,
// ready to hand to a completion request.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(r.tools))
	for name, t := range r.tools {
		if !r.allowed(name) {
			continue
		}
		schemas = append(schemas, Schema{
			Name:        name,
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	slices.SortFunc(schemas, func(a, b Schema) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return schemas
}

// Names returns all registered tool names sorted alphabetically,
// ignoring the allowlist. Used by the status surface.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Execute looks up and runs a tool: allowlist check, timeout wrap, run.
// Tool-level failures come back as Output{IsError: true} so the caller
// can feed them to the model; an error return means the call never ran
// or broke down (unknown tool, timeout, cancelled context).
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, timeout time.Duration) (Output, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	allowed := r.allowed(name)
	r.mu.RUnlock()

	if !ok {
		return Output{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if !allowed {
		return Output{}, fmt.Errorf("%w: %s", ErrNotAllowed, name)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := t.Execute(ctx, args)
	if err != nil {
		return Output{}, fmt.Errorf("tool %s: %w", name, err)
	}
	return out, nil
}

// allowed must be called with the lock held.
func (r *Registry) allowed(name string) bool {
	if r.allowlist == nil {
		return true
	}
	_, ok := r.allowlist[name]
	return ok
}
