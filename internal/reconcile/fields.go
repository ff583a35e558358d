package reconcile

import (
	"fmt"
	"strconv"
)

// Payload field extractors. Event payloads come off the wire as
// loosely typed maps; these narrow defensively and return zero
// values for anything unexpected.

func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func mapField(data map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func sliceField(data map[string]any, key string) []any {
	if v, ok := data[key]; ok {
		if l, ok := v.([]any); ok {
			return l
		}
	}
	return nil
}

func intField(data map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		v, ok := data[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return int64(n), true
		case int32:
			return int64(n), true
		case int64:
			return n, true
		case uint64:
			return int64(n), true
		case float64:
			return int64(n), true
		case float32:
			return int64(n), true
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

func floatField(data map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := data[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// coerceText renders a delta or final-content value as text: strings
// pass through, arrays are joined element-wise, nil is empty, and
// anything else is stringified.
func coerceText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		out := ""
		for _, s := range t {
			out += s
		}
		return out
	case []any:
		out := ""
		for _, item := range t {
			out += coerceText(item)
		}
		return out
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstValue(data map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := data[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
