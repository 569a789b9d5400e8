package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Tool is a capability the executor may invoke.
type Tool interface {
	Name() string
	// Defaults returns the contextual arguments injected when a step omits
	// them.
	Defaults(rc RuntimeContext) Args
	// Invoke runs the tool with fully resolved arguments.
	Invoke(ctx context.Context, args Args) (any, error)
}

type typedTool[A any] struct {
	name     string
	defaults func(RuntimeContext) Args
	handler  func(context.Context, A) (any, error)
}

// NewTool builds a Tool whose handler receives its arguments decoded into A
// using A's JSON field tags.
func NewTool[A any](name string, defaults func(RuntimeContext) Args, handler func(context.Context, A) (any, error)) Tool {
	return &typedTool[A]{name: name, defaults: defaults, handler: handler}
}

func (t *typedTool[A]) Name() string { return t.name }

func (t *typedTool[A]) Defaults(rc RuntimeContext) Args {
	if t.defaults == nil {
		return Args{}
	}
	return t.defaults(rc)
}

func (t *typedTool[A]) Invoke(ctx context.Context, args Args) (any, error) {
	var in A
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding %s args: %w", t.name, err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding %s args: %w", t.name, err)
	}
	return t.handler(ctx, in)
}

// Registry is the closed set of tools a plan may use.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry. A later tool with the same name replaces
// an earlier one.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.tools))
}

// MergeArgs returns a new map holding defaults overlaid by supplied. Neither
// input is modified and supplied keys always win.
func MergeArgs(supplied, defaults Args) Args {
	out := make(Args, len(supplied)+len(defaults))
	maps.Copy(out, defaults)
	maps.Copy(out, supplied)
	return out
}
