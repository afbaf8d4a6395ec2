package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Spec is the materialized description of a tool, ready for injection into
// the model's prompt-start event. SchemaJSON is the input schema serialized
// as a JSON string.
type Spec struct {
	Name        string
	Description string
	SchemaJSON  string
}

// Registry maps lower-cased tool names to tools. It is populated at startup
// and treated as immutable afterwards; tools themselves must be reentrant.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous registration of the same name
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[strings.ToLower(t.Name())] = t
}

// Get returns the tool registered under name (case-insensitive)
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// Has reports whether a tool is registered under name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[strings.ToLower(name)]
	return ok
}

// Names returns the registered tool names in sorted order
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

// Specs materializes the tool list for the model's prompt-start event.
// A non-nil enabled filter restricts the result to the named tools;
// filter entries are matched case-insensitively and unknown names are
// silently skipped.
func (r *Registry) Specs(enabled []string) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	if enabled == nil {
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	} else {
		for _, name := range enabled {
			lower := strings.ToLower(name)
			if _, ok := r.tools[lower]; ok {
				names = append(names, lower)
			}
		}
	}

	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		schema, err := json.Marshal(t.InputSchema())
		if err != nil {
			// Schemas are static maps; a marshal failure is a
			// programming error surfaced as an empty object.
			schema = []byte("{}")
		}
		specs = append(specs, Spec{
			Name:        t.Name(),
			Description: t.Description(),
			SchemaJSON:  string(schema),
		})
	}
	return specs
}

// Execute looks up a tool by name and runs it
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, tctx Context) (any, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, params, tctx)
}
