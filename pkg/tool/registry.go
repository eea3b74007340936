package tool

import (
	"context"
	"fmt"
	"sort"

	"github.com/nstogner/overseer/pkg/domain"
)

// Registry manages the available tools. It validates parameters against each
// tool's declared schema before dispatch; unregistered names and schema
// mismatches are rejected without invoking anything.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools, ordered by name.
func (r *Registry) List() []Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]Tool, 0, len(names))
	for _, name := range names {
		list = append(list, r.tools[name])
	}
	return list
}

// Declarations returns the provider-facing declarations for all tools.
func (r *Registry) Declarations() []domain.ToolDecl {
	var decls []domain.ToolDecl
	for _, t := range r.List() {
		decls = append(decls, domain.ToolDecl{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return decls
}

// ResourceKeys derives the resource key set for an invocation. Unknown tools
// report no keys and non-serial; Dispatch will reject them anyway.
func (r *Registry) ResourceKeys(name string, params map[string]any) ([]string, bool) {
	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return t.ResourceKeys(params)
}

// Dispatch validates the invocation's parameters and executes the tool.
// ToolNotFound and InvalidParameters are returned as failed results without
// the tool ever being invoked.
func (r *Registry) Dispatch(ctx context.Context, inv *domain.ToolInvocation) *Result {
	t, ok := r.tools[inv.Name]
	if !ok {
		return Errorf(domain.ErrToolNotFound, false, "tool not found: %s", inv.Name)
	}
	if err := validateParams(t.Parameters(), inv.Params); err != nil {
		return Errorf(domain.ErrInvalidParameters, false, "invalid parameters for %s: %v", inv.Name, err)
	}
	return t.Execute(ctx, inv.Params)
}

// validateParams checks params against a JSON-schema-shaped declaration:
// required keys must be present, and declared primitive types must match.
// Only the object/properties/required/type subset the tools use is walked;
// there is no reflection.
func validateParams(schema, params map[string]any) error {
	props, _ := schema["properties"].(map[string]any)

	if required, ok := schema["required"].([]string); ok {
		for _, key := range required {
			if _, present := params[key]; !present {
				return fmt.Errorf("missing required parameter %q", key)
			}
		}
	} else if required, ok := schema["required"].([]any); ok {
		for _, k := range required {
			key, _ := k.(string)
			if _, present := params[key]; key != "" && !present {
				return fmt.Errorf("missing required parameter %q", key)
			}
		}
	}

	for key, val := range params {
		decl, ok := props[key].(map[string]any)
		if !ok {
			return fmt.Errorf("unexpected parameter %q", key)
		}
		declType, _ := decl["type"].(string)
		if declType == "" || val == nil {
			continue
		}
		if err := checkType(key, declType, val); err != nil {
			return err
		}
	}
	return nil
}

func checkType(key, declType string, val any) error {
	ok := true
	switch declType {
	case "string":
		_, ok = val.(string)
	case "boolean":
		_, ok = val.(bool)
	case "number", "integer":
		switch val.(type) {
		case float64, float32, int, int32, int64:
		default:
			ok = false
		}
	case "array":
		_, ok = val.([]any)
	case "object":
		_, ok = val.(map[string]any)
	}
	if !ok {
		return fmt.Errorf("parameter %q must be of type %s", key, declType)
	}
	return nil
}
