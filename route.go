package normcache

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// ListField declares a list field and which created entities join it.
type ListField struct {
	// Name is the list field name, e.g. "users".
	Name string `yaml:"name"`
	// TypeTag restricts the field to one entity type.
	TypeTag string `yaml:"type"`
	// Filter is an optional CEL expression over typeTag, id and attrs.
	// Example: `has(attrs.name) && attrs.name != ""`.
	Filter string `yaml:"filter"`
}

type route struct {
	field   ListField
	program cel.Program
}

// Router decides which list fields a newly created entity is prepended to.
type Router struct {
	routes []route
}

// NewRouter compiles the filters of fields.
func NewRouter(fields ...ListField) (*Router, error) {
	r := &Router{}
	if len(fields) == 0 {
		return r, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("typeTag", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("list field filter env: %w", err)
	}
	for _, field := range fields {
		if field.Name == "" {
			return nil, fmt.Errorf("list field name is required")
		}
		if field.TypeTag == "" {
			return nil, fmt.Errorf("list field %q: type is required", field.Name)
		}
		rt := route{field: field}
		if field.Filter != "" {
			ast, iss := env.Compile(field.Filter)
			if iss != nil && iss.Err() != nil {
				return nil, fmt.Errorf("list field %q filter: %w", field.Name, iss.Err())
			}
			if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
				return nil, fmt.Errorf("list field %q filter must be boolean, got %s", field.Name, ast.OutputType())
			}
			rt.program, err = env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("list field %q filter: %w", field.Name, err)
			}
		}
		r.routes = append(r.routes, rt)
	}
	return r, nil
}

// Fields returns the names of the list fields entity belongs to. Types without any
// declared field fall back to a field named after the type tag.
func (r *Router) Fields(entity Entity) []string {
	var names []string
	declared := false
	for _, rt := range r.routes {
		if rt.field.TypeTag != entity.TypeTag {
			continue
		}
		declared = true
		if rt.matches(entity) {
			names = append(names, rt.field.Name)
		}
	}
	if !declared && entity.TypeTag != "" {
		return []string{entity.TypeTag}
	}
	return names
}

func (rt route) matches(entity Entity) bool {
	if rt.program == nil {
		return true
	}
	attrs := entity.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	out, _, err := rt.program.Eval(map[string]any{
		"typeTag": entity.TypeTag,
		"id":      entity.ID,
		"attrs":   attrs,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}
