package scorer

import "fmt"

// validate walks decoded JSON against a compiled schema and collects every
// violation. It covers the subset our schema compiler emits: object/array/
// string/number/boolean types, required lists, additionalProperties:false,
// enum values, and array minItems/maxItems.
func validate(data any, schema map[string]any, path string) []string {
	var out []string

	typ, _ := schema["type"].(string)
	switch typ {
	case "object":
		obj, ok := data.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected object", path)}
		}
		props, _ := schema["properties"].(map[string]any)
		if required, ok := schema["required"].([]string); ok {
			for _, key := range required {
				if _, present := obj[key]; !present {
					out = append(out, fmt.Sprintf("%s: missing required property %q", path, key))
				}
			}
		}
		if addl, ok := schema["additionalProperties"].(bool); ok && !addl {
			for key := range obj {
				if _, known := props[key]; !known {
					out = append(out, fmt.Sprintf("%s: unexpected property %q", path, key))
				}
			}
		}
		for key, value := range obj {
			propSchema, ok := props[key].(map[string]any)
			if !ok {
				continue
			}
			out = append(out, validate(value, propSchema, path+"."+key)...)
		}

	case "array":
		items, ok := data.([]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected array", path)}
		}
		if min, ok := schema["minItems"].(int); ok && len(items) < min {
			out = append(out, fmt.Sprintf("%s: expected at least %d items, got %d", path, min, len(items)))
		}
		if max, ok := schema["maxItems"].(int); ok && len(items) > max {
			out = append(out, fmt.Sprintf("%s: expected at most %d items, got %d", path, max, len(items)))
		}
		itemSchema, ok := schema["items"].(map[string]any)
		if ok {
			for i, item := range items {
				out = append(out, validate(item, itemSchema, fmt.Sprintf("%s[%d]", path, i))...)
			}
		}

	case "string":
		s, ok := data.(string)
		if !ok {
			return []string{fmt.Sprintf("%s: expected string", path)}
		}
		if enum, ok := schema["enum"].([]any); ok {
			found := false
			for _, v := range enum {
				if v == s {
					found = true
					break
				}
			}
			if !found {
				out = append(out, fmt.Sprintf("%s: %q not in enum", path, s))
			}
		}

	case "number":
		if _, ok := data.(float64); !ok {
			return []string{fmt.Sprintf("%s: expected number", path)}
		}

	case "boolean":
		if _, ok := data.(bool); !ok {
			return []string{fmt.Sprintf("%s: expected boolean", path)}
		}
	}

	return out
}
