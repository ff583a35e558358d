package reconcile

import (
	"github.com/openbiome/stratagem/internal/domain"
)

func copyToolCalls(calls []domain.ToolCall) []domain.ToolCall {
	out := make([]domain.ToolCall, len(calls))
	copy(out, calls)
	return out
}

func handleToolCallStart(c *Context, data map[string]any) {
	callID := stringField(data, "id", "toolCallId")
	if callID == "" {
		return
	}
	call := domain.ToolCall{
		ID:   callID,
		Name: stringField(data, "name", "toolName"),
	}
	if c.ParseToolArguments != nil {
		call.Arguments = c.ParseToolArguments(data["arguments"])
	}
	c.Turn.ToolCalls = append(c.Turn.ToolCalls, call)
	if c.Live != nil {
		c.Live.SetActiveToolCalls(copyToolCalls(c.Turn.ToolCalls))
	}
}

func handleToolCallEnd(c *Context, data map[string]any) {
	callID := stringField(data, "id", "toolCallId")
	if callID != "" {
		for i := range c.Turn.ToolCalls {
			if c.Turn.ToolCalls[i].ID == callID {
				c.Turn.ToolCalls[i].Result = data["result"]
				if c.Live != nil {
					c.Live.SetActiveToolCalls(copyToolCalls(c.Turn.ToolCalls))
				}
				break
			}
		}
	}

	// The result is parsed even when the call was never seen
	// started (e.g. across a reload): an embedded graph snapshot is
	// authoritative strategy state and must still apply.
	if c.ParseToolResult == nil {
		return
	}
	parsed := c.ParseToolResult(data["result"])
	if parsed == nil || parsed.GraphSnapshot == nil {
		return
	}
	if c.Strategy.ApplyGraphSnapshot != nil {
		c.Strategy.ApplyGraphSnapshot(parsed.GraphSnapshot)
	}
}

func handleSubKaniTaskStart(c *Context, data map[string]any) {
	task := stringField(data, "task", "taskId")
	if task == "" {
		return
	}
	if _, ok := c.Turn.SubKaniCalls[task]; !ok {
		c.Turn.SubKaniCalls[task] = nil
	}
	c.Turn.SubKaniStatus[task] = "running"
	if c.Live != nil {
		c.Live.SubKaniTaskStarted(task)
	}
}

func handleSubKaniToolCallStart(c *Context, data map[string]any) {
	task := stringField(data, "task", "taskId")
	if task == "" {
		return
	}
	callMap := mapField(data, "call")
	if callMap == nil {
		return
	}
	callID := stringField(callMap, "id", "toolCallId")
	if callID == "" {
		return
	}
	call := domain.ToolCall{
		ID:   callID,
		Name: stringField(callMap, "name", "toolName"),
	}
	if c.ParseToolArguments != nil {
		call.Arguments = c.ParseToolArguments(callMap["arguments"])
	}
	c.Turn.SubKaniCalls[task] = append(c.Turn.SubKaniCalls[task], call)
	if c.Live != nil {
		c.Live.SubKaniToolCallStarted(task, call)
	}
}

func handleSubKaniToolCallEnd(c *Context, data map[string]any) {
	task := stringField(data, "task", "taskId")
	callID := stringField(data, "id", "toolCallId")
	if task == "" || callID == "" {
		return
	}
	calls := c.Turn.SubKaniCalls[task]
	for i := range calls {
		if calls[i].ID == callID {
			calls[i].Result = data["result"]
			break
		}
	}
	if c.Live != nil {
		c.Live.SubKaniToolCallEnded(task, callID, data["result"])
	}
}

func handleSubKaniTaskEnd(c *Context, data map[string]any) {
	task := stringField(data, "task", "taskId")
	if task == "" {
		return
	}
	status := stringField(data, "status")
	if status == "" {
		status = "done"
	}
	c.Turn.SubKaniStatus[task] = status
	if c.Live != nil {
		c.Live.SubKaniTaskEnded(task, status)
	}
}
