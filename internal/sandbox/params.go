package sandbox

import (
	"fmt"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// fieldSpec is one declared field of a NodeParameters or InputParameters
// block: its type name and default value.
type fieldSpec struct {
	Type    string
	Default any
}

// parseFieldSpecs reads a declaration mapping. Each entry is either a
// bare default value or a {"type": ..., "default": ...} descriptor.
func parseFieldSpecs(decl map[string]any) map[string]fieldSpec {
	if len(decl) == 0 {
		return nil
	}
	specs := make(map[string]fieldSpec, len(decl))
	for name, raw := range decl {
		if desc, ok := raw.(map[string]any); ok {
			if _, hasDefault := desc["default"]; hasDefault || desc["type"] != nil {
				typeName, _ := desc["type"].(string)
				specs[name] = fieldSpec{Type: typeName, Default: desc["default"]}
				continue
			}
		}
		specs[name] = fieldSpec{Type: inferType(raw), Default: raw}
	}
	return specs
}

func inferType(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case int, int32, int64:
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "string"
	default:
		return ""
	}
}

// coerceParams builds the node's effective parameter set: declared
// defaults first, then overrides coerced to the declared types. A value
// that cannot be coerced keeps its original form. Undeclared overrides
// pass through untouched.
func coerceParams(specs map[string]fieldSpec, overrides map[string]any) map[string]any {
	resolved := make(map[string]any, len(specs)+len(overrides))
	for name, spec := range specs {
		resolved[name] = spec.Default
	}
	for name, value := range overrides {
		if spec, declared := specs[name]; declared {
			resolved[name] = coerceValue(value, spec.Type)
		} else {
			resolved[name] = value
		}
	}
	return resolved
}

func coerceValue(v any, typeName string) any {
	switch strings.ToLower(typeName) {
	case "int", "integer":
		switch x := v.(type) {
		case int, int32, int64:
			return v
		case float64:
			return int64(x)
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return i
			}
		}
	case "float", "number", "double":
		switch x := v.(type) {
		case float32, float64:
			return v
		case int:
			return float64(x)
		case int64:
			return float64(x)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f
			}
		}
	case "bool", "boolean":
		switch x := v.(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "1", "yes", "on":
				return true
			case "false", "0", "no", "off":
				return false
			}
		}
	case "string", "str", "text":
		if _, ok := v.(string); !ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return v
}

// resolveHandleInputs fills declared input fields from per-handle
// collected values. A field named "urls" with no matching handle also
// tries the singular "url" before falling back to its default.
func resolveHandleInputs(specs map[string]fieldSpec, handles map[string]any) map[string]any {
	resolved := make(map[string]any, len(specs))
	for name, spec := range specs {
		if value, ok := handles[name]; ok {
			resolved[name] = value
			continue
		}
		if strings.HasSuffix(name, "s") {
			if value, ok := handles[strings.TrimSuffix(name, "s")]; ok {
				resolved[name] = value
				continue
			}
		}
		resolved[name] = spec.Default
	}
	return resolved
}

// structFromMap exposes a resolved field set as an attribute-addressable
// value, so scripts read nodeParameters.prompt instead of indexing.
func structFromMap(constructor string, fields map[string]any) (*starlarkstruct.Struct, error) {
	members := make(starlark.StringDict, len(fields))
	for name, value := range fields {
		sv, err := toValue(value)
		if err != nil {
			return nil, err
		}
		members[name] = sv
	}
	return starlarkstruct.FromStringDict(starlark.String(constructor), members), nil
}
