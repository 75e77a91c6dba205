package action

import (
	"fmt"
	"math"
)

// Kind is the type of a parameter field.
type Kind string

const (
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindBool    Kind = "bool"
	KindStrings Kind = "strings"
)

// Field declares one parameter of an action.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// Default is used when the field is absent and not required.
	Default any
	// Description is shown to the decision oracle.
	Description string
}

// Schema is the ordered parameter list of an action.
type Schema []Field

// Validate checks details against the schema and returns the coerced
// parameters. Keys not declared in the schema are passed through unchanged.
func (s Schema) Validate(details map[string]any) (Params, error) {
	params := make(Params, len(details)+len(s))
	for k, v := range details {
		params[k] = v
	}

	for _, f := range s {
		raw, ok := details[f.Name]
		if !ok || raw == nil {
			if f.Required {
				return nil, &ValidationError{Field: f.Name, Reason: "required"}
			}
			if f.Default != nil {
				params[f.Name] = f.Default
			} else {
				delete(params, f.Name)
			}
			continue
		}
		v, err := coerce(f.Kind, raw)
		if err != nil {
			return nil, &ValidationError{Field: f.Name, Reason: err.Error()}
		}
		params[f.Name] = v
	}
	return params, nil
}

// Defaults returns the default values of optional fields.
func (s Schema) Defaults() map[string]any {
	out := make(map[string]any)
	for _, f := range s {
		if f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out
}

func coerce(kind Kind, raw any) (any, error) {
	switch kind {
	case KindString:
		if v, ok := raw.(string); ok {
			return v, nil
		}
	case KindBool:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	case KindInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == math.Trunc(v) {
				return int(v), nil
			}
		}
	case KindStrings:
		switch v := raw.(type) {
		case []string:
			return append([]string(nil), v...), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected list of strings, got element %T", item)
				}
				out = append(out, s)
			}
			return out, nil
		}
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
	return nil, fmt.Errorf("expected %s, got %T", kind, raw)
}

// Params are validated handler parameters.
type Params map[string]any

// String returns a string parameter, or "" if absent.
func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Int returns an int parameter, or 0 if absent.
func (p Params) Int(name string) int {
	n, _ := p[name].(int)
	return n
}

// Bool returns a bool parameter, or false if absent.
func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// Strings returns a string-list parameter, or nil if absent.
func (p Params) Strings(name string) []string {
	s, _ := p[name].([]string)
	return s
}
