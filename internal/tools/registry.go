// Package tools holds the tool registry and the built-in tools the agent
// can call: filesystem access, shell execution, web fetch/search, background
// processes, canvas rendering and outbound messaging. Declarative HTTP tools
// and remote MCP tools register into the same registry.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hearthside/domo/internal/providers"
)

// Tool is the contract every registered tool implements. Parameters returns
// a JSON schema object describing the accepted arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry is the single lookup table for built-in, HTTP and MCP tools.
// Argument schemas are compiled once at registration; calls with invalid
// arguments return tool errors instead of reaching the tool.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	denied  map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		denied:  make(map[string]bool),
	}
}

// Deny hides the named tools from definitions and execution. Used for the
// config-level tool deny list.
func (r *Registry) Deny(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if n != "" {
			r.denied[n] = true
		}
	}
}

// Register adds or replaces a tool. A schema that fails to compile disables
// validation for that tool but never blocks registration.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	schema := compileSchema(name, t.Parameters())

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		slog.Debug("tool replaced", "tool", name)
	}
	r.tools[name] = t
	if schema != nil {
		r.schemas[name] = schema
	} else {
		delete(r.schemas, name)
	}
}

// Unregister removes a tool, typically when an MCP server disconnects.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns the named tool when registered and not denied.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.denied[name] {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// List returns the available tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if !r.denied[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ProviderDefs renders the registered tools as provider tool definitions.
// The provider layer maps these to its native wire shape.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if !r.denied[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	return defs
}

// Execute validates the arguments against the tool's declared schema and
// runs the tool. Unknown or denied tools and schema violations come back as
// error results, never as panics or Go errors.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	r.mu.RLock()
	denied := r.denied[name]
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if denied {
		return ErrorResult(fmt.Sprintf("tool %q is disabled", name))
	}
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	if schema != nil {
		if err := schema.Validate(normalizeArgs(args)); err != nil {
			return ErrorResult(fmt.Sprintf("invalid arguments for %s: %v", name, err))
		}
	}

	return t.Execute(ctx, args)
}

// compileSchema turns a Parameters() map into a validator. Nil or empty
// schemas skip validation.
func compileSchema(name string, params map[string]interface{}) *jsonschema.Schema {
	if len(params) == 0 {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		slog.Warn("tool schema not serializable, skipping validation", "tool", name, "error", err)
		return nil
	}
	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		slog.Warn("tool schema rejected, skipping validation", "tool", name, "error", err)
		return nil
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		slog.Warn("tool schema failed to compile, skipping validation", "tool", name, "error", err)
		return nil
	}
	return schema
}

// normalizeArgs round-trips the arguments through JSON so the validator sees
// canonical types (provider SDKs may hand us json.Number or typed slices).
func normalizeArgs(args map[string]interface{}) interface{} {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return args
	}
	return out
}
