package protocol

// ChatEvent is one step of the agent's event stream for a turn. Data
// is deliberately loose: payload shapes vary by agent version, and
// consumers tolerate missing or oddly typed fields.
type ChatEvent struct {
	Type string         `msgpack:"type" json:"type"`
	Data map[string]any `msgpack:"data,omitempty" json:"data,omitempty"`
}

// Chat event types emitted by the planning agent.
const (
	EventMessageStart     = "message_start"
	EventAssistantDelta   = "assistant_delta"
	EventAssistantMessage = "assistant_message"
	EventToolCallStart    = "tool_call_start"
	EventToolCallEnd      = "tool_call_end"
	EventReasoning        = "reasoning"
	EventCitations        = "citations"
	EventPlanningArtifact = "planning_artifact"
	EventPlanUpdate       = "plan_update"
	EventError            = "error"

	EventStrategyUpdate       = "strategy_update"
	EventGraphSnapshot        = "graph_snapshot"
	EventStrategyLink         = "strategy_link"
	EventStrategyMeta         = "strategy_meta"
	EventStrategyCleared      = "strategy_cleared"
	EventOptimizationProgress = "optimization_progress"
	EventExecutorBuildRequest = "executor_build_request"

	EventSubKaniTaskStart     = "subkani_task_start"
	EventSubKaniToolCallStart = "subkani_tool_call_start"
	EventSubKaniToolCallEnd   = "subkani_tool_call_end"
	EventSubKaniTaskEnd       = "subkani_task_end"
)
