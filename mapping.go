package cattools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LookupPath resolves a dot-separated path inside a plain mapping, e.g.
// "total_energies.energy_extrapolated_electronic". Numeric parts index into
// lists.
func LookupPath(data map[string]any, path string) (any, error) {
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return data, nil
	}
	var current any = data
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		switch v := current.(type) {
		case map[string]any:
			val, exists := v[part]
			if !exists {
				return nil, fmt.Errorf("key %q not found", part)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid list index %q", part)
			}
			if idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("list index %d out of bounds", idx)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot look up %q in a %T", part, current)
		}
	}
	return current, nil
}

// LookupFloat resolves path and converts the value to a float64.
func LookupFloat(data map[string]any, path string) (float64, error) {
	value, err := LookupPath(data, path)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(value)
	if !ok {
		return 0, fmt.Errorf("%s is %T, not a number", path, value)
	}
	return f, nil
}

// LookupMap resolves path and requires the value to be a mapping.
func LookupMap(data map[string]any, path string) (map[string]any, error) {
	value, err := LookupPath(data, path)
	if err != nil {
		return nil, err
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s is %T, not a mapping", path, value)
	}
	return m, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
