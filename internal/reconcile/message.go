// Package reconcile folds the planning agent's event stream into a
// conversation transcript plus per-turn side state: streaming
// cursors, tool-call buffers, optimization progress, and strategy
// undo snapshots. Handlers run synchronously, one event at a time,
// and tolerate malformed payloads by dropping the event.
package reconcile

import (
	"time"

	"github.com/openbiome/stratagem/internal/domain"
)

// Message is one transcript entry. Content is mutable while the
// message is the active streaming target and settles at finalize.
type Message struct {
	ID           string                       `json:"id,omitempty"`
	Role         string                       `json:"role"`
	Content      string                       `json:"content"`
	ToolCalls    []domain.ToolCall            `json:"tool_calls,omitempty"`
	Citations    []map[string]any             `json:"citations,omitempty"`
	Artifacts    []map[string]any             `json:"artifacts,omitempty"`
	SubKani      *SubKaniActivity             `json:"sub_kani,omitempty"`
	Reasoning    string                       `json:"reasoning,omitempty"`
	Optimization *domain.OptimizationProgress `json:"optimization,omitempty"`
	Timestamp    time.Time                    `json:"timestamp"`
}

// SubKaniActivity is a point-in-time record of delegated sub-agent
// work attached to a finalized assistant message.
type SubKaniActivity struct {
	CallsByTask  map[string][]domain.ToolCall `json:"calls_by_task"`
	StatusByTask map[string]string            `json:"status_by_task"`
}

// StrategySnapshot captures a strategy's state before the first
// structural edit of a turn, so the edit can be reverted.
type StrategySnapshot struct {
	Strategy *domain.Strategy `json:"strategy"`
	TakenAt  time.Time        `json:"taken_at"`
}

func cloneMessages(prior []Message) []Message {
	next := make([]Message, len(prior))
	copy(next, prior)
	return next
}
