package reconcile

import (
	"github.com/openbiome/stratagem/internal/jsonutil"
)

// DefaultParseToolArguments interprets a raw arguments payload:
// either an object already, or a JSON-encoded string. Anything else
// yields nil. Never panics.
func DefaultParseToolArguments(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return v
	case string:
		return jsonutil.ParseJSON(v)
	default:
		return nil
	}
}

// DefaultParseToolResult extracts the structured part of a tool
// result. Only an embedded graph snapshot matters to reconciliation;
// everything else is opaque to this layer.
func DefaultParseToolResult(raw any) *ToolResult {
	var m map[string]any
	switch v := raw.(type) {
	case map[string]any:
		m = v
	case string:
		m = jsonutil.ParseJSON(v)
	}
	if m == nil {
		return nil
	}
	snapshot, ok := m["graphSnapshot"].(map[string]any)
	if !ok {
		if snapshot, ok = m["graph_snapshot"].(map[string]any); !ok {
			return nil
		}
	}
	return &ToolResult{GraphSnapshot: snapshot}
}
