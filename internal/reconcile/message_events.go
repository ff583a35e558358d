package reconcile

import (
	"strings"
	"time"

	"github.com/openbiome/stratagem/internal/domain"
)

func handleMessageStart(c *Context, data map[string]any) {
	if sessionID := stringField(data, "planSessionId", "plan_session_id"); sessionID != "" && c.Hooks.OnPlanSessionID != nil {
		c.Hooks.OnPlanSessionID(sessionID)
	}

	strategyID := stringField(data, "strategyId", "strategy_id")
	if strategyID != "" {
		if c.Strategy.SetStrategyID != nil {
			c.Strategy.SetStrategyID(strategyID)
		}
		name := stringField(data, "strategyName", "name")
		if name == "" {
			name = "Draft Strategy"
		}
		if c.Strategy.AddStrategySummary != nil {
			c.Strategy.AddStrategySummary(domain.StrategySummary{
				ID:         strategyID,
				Name:       name,
				SiteID:     c.SiteID,
				RecordType: stringField(data, "recordType", "record_type"),
			})
		}
		if c.Strategy.LoadGraph != nil {
			load := c.Strategy.LoadGraph
			c.spawnBestEffort(func() { load(strategyID) })
		}
	}

	if full := mapField(data, "strategy"); full != nil {
		s := strategyFromPayload(full)
		if s.SiteID == "" {
			s.SiteID = c.SiteID
		}
		if c.Strategy.SetStrategy != nil {
			c.Strategy.SetStrategy(s)
		}
		if c.Strategy.SetStrategyMeta != nil {
			c.Strategy.SetStrategyMeta(domain.StrategyMeta{
				ID:         s.ID,
				Name:       s.Name,
				RecordType: s.RecordType,
			})
		}
		c.CurrentStrategy = s
	}
}

func handleAssistantDelta(c *Context, data map[string]any) {
	delta := coerceText(firstValue(data, "delta", "text"))
	if delta == "" {
		return
	}
	messageID := stringField(data, "messageId", "message_id")

	startNew := c.Session.streamingIndex == indexNone ||
		(messageID != "" && messageID != c.Session.streamingMessageID)

	if startNew {
		// Claim the stream before requesting the append: the sink
		// may defer application, and later deltas must see an
		// active stream at dispatch time.
		c.Session.streamingIndex = indexPending
		c.Session.streamingMessageID = messageID
		msg := Message{
			ID:        messageID,
			Role:      domain.RoleAssistant,
			Content:   delta,
			Timestamp: time.Now(),
		}
		c.Transcript.Apply(func(prior []Message) []Message {
			next := append(cloneMessages(prior), msg)
			idx := len(next) - 1
			// Promote the sentinel only if a finalize has not
			// already resolved and cleared it.
			if c.Session.streamingIndex == indexPending {
				c.Session.streamingIndex = idx
			}
			c.Session.turnIndex = idx
			return next
		})
		return
	}

	c.Transcript.Apply(func(prior []Message) []Message {
		idx := c.Session.streamingIndex
		if idx < 0 || idx >= len(prior) {
			// Finalize may have cleared the stream while this
			// delta was in flight; take the tail if it is still
			// an assistant message.
			idx = len(prior) - 1
			if idx < 0 || prior[idx].Role != domain.RoleAssistant {
				return prior
			}
		}
		next := cloneMessages(prior)
		next[idx].Content += delta
		return next
	})
}

func handleAssistantMessage(c *Context, data map[string]any) {
	content := coerceText(firstValue(data, "content", "message", "text"))
	messageID := stringField(data, "messageId", "message_id")

	subkani := c.Turn.snapshotSubKani()
	toolCalls, citations, artifacts := c.Turn.drainMessageBuffers()
	reasoning := c.Session.reasoning
	optimization := c.Session.optimization

	streaming := c.Session.streamingIndex != indexNone
	matches := messageID == "" || messageID == c.Session.streamingMessageID

	switch {
	case streaming && matches:
		// Finalizing commits the turn's strategy edits; the
		// snapshot is no longer revertible.
		c.Session.ConsumeUndo()
		target := c.Session.streamingIndex
		c.Transcript.Apply(func(prior []Message) []Message {
			idx := target
			if idx < 0 || idx >= len(prior) {
				idx = len(prior) - 1
				if idx < 0 || prior[idx].Role != domain.RoleAssistant {
					return prior
				}
			}
			next := cloneMessages(prior)
			m := next[idx]
			if messageID != "" {
				m.ID = messageID
			}
			if content != "" {
				m.Content = content
			}
			if toolCalls != nil {
				m.ToolCalls = toolCalls
			}
			if citations != nil {
				m.Citations = citations
			}
			if artifacts != nil {
				m.Artifacts = artifacts
			}
			if reasoning != "" {
				m.Reasoning = reasoning
			}
			if subkani != nil {
				m.SubKani = subkani
			}
			if optimization != nil {
				m.Optimization = optimization
			}
			next[idx] = m
			return next
		})

	case content != "":
		undo, _ := c.Session.ConsumeUndo()
		msg := Message{
			ID:           messageID,
			Role:         domain.RoleAssistant,
			Content:      content,
			ToolCalls:    toolCalls,
			Citations:    citations,
			Artifacts:    artifacts,
			Reasoning:    reasoning,
			SubKani:      subkani,
			Optimization: optimization,
			Timestamp:    time.Now(),
		}
		c.Transcript.Apply(func(prior []Message) []Message {
			next := append(cloneMessages(prior), msg)
			idx := len(next) - 1
			c.Session.turnIndex = idx
			if undo != nil && c.UndoByIndex != nil {
				c.UndoByIndex.Apply(func(prior map[int]*StrategySnapshot) map[int]*StrategySnapshot {
					next := make(map[int]*StrategySnapshot, len(prior)+1)
					for k, v := range prior {
						next[k] = v
					}
					next[idx] = undo
					return next
				})
			}
			return next
		})

	default:
		// No stream and no content: consume the snapshot anyway so
		// it cannot leak into the next turn.
		c.Session.ConsumeUndo()
	}

	c.Session.streamingIndex = indexNone
	c.Session.streamingMessageID = ""
	c.Session.reasoning = ""
}

func handleCitations(c *Context, data map[string]any) {
	raw, ok := data["citations"].([]any)
	if !ok {
		return
	}
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			c.Turn.Citations = append(c.Turn.Citations, m)
		}
	}
}

func handlePlanningArtifact(c *Context, data map[string]any) {
	artifact := mapField(data, "artifact")
	if artifact == nil {
		return
	}
	c.Turn.Artifacts = append(c.Turn.Artifacts, artifact)
	if c.Hooks.OnArtifactUpdate != nil {
		c.Hooks.OnArtifactUpdate(artifact)
	}
}

func handleReasoning(c *Context, data map[string]any) {
	text, ok := data["reasoning"].(string)
	if !ok {
		return
	}
	if c.Live != nil {
		c.Live.SetReasoning(text)
	}
	c.Session.reasoning = text
}

func handleOptimizationProgress(c *Context, data map[string]any) {
	progress := normalizeProgress(data, c.Session.optimization)
	c.Session.optimization = progress
	if c.SetOptimizationProgress != nil {
		c.SetOptimizationProgress(progress)
	}

	// Stamp progress onto the turn's own assistant message only.
	// Never scan for "the last assistant message": before this turn
	// produces one, that would hit the previous turn's reply.
	c.Transcript.Apply(func(prior []Message) []Message {
		idx := c.Session.streamingIndex
		if idx < 0 || idx >= len(prior) {
			idx = c.Session.turnIndex
		}
		if idx < 0 || idx >= len(prior) || prior[idx].Role != domain.RoleAssistant {
			return prior
		}
		next := cloneMessages(prior)
		next[idx].Optimization = progress
		return next
	})
}

func handlePlanUpdate(c *Context, data map[string]any) {
	title := strings.TrimSpace(stringField(data, "title"))
	if title != "" && c.Hooks.OnTitleUpdate != nil {
		c.Hooks.OnTitleUpdate(title)
	}
}

func handleExecutorBuildRequest(c *Context, data map[string]any) {
	request := mapField(data, "request")
	if request == nil {
		return
	}
	message, ok := request["message"].(string)
	if !ok {
		return
	}
	if c.Hooks.OnExecutorBuildRequest != nil {
		c.Hooks.OnExecutorBuildRequest(message)
	}
}

func handleError(c *Context, data map[string]any) {
	message := stringField(data, "message", "error")
	msg := Message{
		Role:      domain.RoleAssistant,
		Content:   "⚠️ Error: " + message,
		Timestamp: time.Now(),
	}
	c.Transcript.Apply(func(prior []Message) []Message {
		return append(cloneMessages(prior), msg)
	})
	if c.Hooks.OnAPIError != nil {
		c.Hooks.OnAPIError(message)
	}
}
