package reconcile

import (
	"github.com/openbiome/stratagem/internal/protocol"
)

// Dispatch routes one event to its handler. Unknown event types are
// ignored: the agent may emit types this build does not know yet.
func Dispatch(c *Context, ev protocol.ChatEvent) {
	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}

	switch ev.Type {
	case protocol.EventMessageStart:
		handleMessageStart(c, data)
	case protocol.EventAssistantDelta:
		handleAssistantDelta(c, data)
	case protocol.EventAssistantMessage:
		handleAssistantMessage(c, data)
	case protocol.EventCitations:
		handleCitations(c, data)
	case protocol.EventPlanningArtifact:
		handlePlanningArtifact(c, data)
	case protocol.EventReasoning:
		handleReasoning(c, data)
	case protocol.EventOptimizationProgress:
		handleOptimizationProgress(c, data)
	case protocol.EventPlanUpdate:
		handlePlanUpdate(c, data)
	case protocol.EventExecutorBuildRequest:
		handleExecutorBuildRequest(c, data)
	case protocol.EventError:
		handleError(c, data)

	case protocol.EventStrategyUpdate:
		handleStrategyUpdate(c, data)
	case protocol.EventGraphSnapshot:
		handleGraphSnapshot(c, data)
	case protocol.EventStrategyLink:
		handleStrategyLink(c, data)
	case protocol.EventStrategyMeta:
		handleStrategyMeta(c, data)
	case protocol.EventStrategyCleared:
		handleStrategyCleared(c, data)

	case protocol.EventToolCallStart:
		handleToolCallStart(c, data)
	case protocol.EventToolCallEnd:
		handleToolCallEnd(c, data)
	case protocol.EventSubKaniTaskStart:
		handleSubKaniTaskStart(c, data)
	case protocol.EventSubKaniToolCallStart:
		handleSubKaniToolCallStart(c, data)
	case protocol.EventSubKaniToolCallEnd:
		handleSubKaniToolCallEnd(c, data)
	case protocol.EventSubKaniTaskEnd:
		handleSubKaniTaskEnd(c, data)
	}
}
