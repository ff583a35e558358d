package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/protocol"
)

// batchedHarness wires the context to queueing sinks, modelling a
// host that defers state application until an explicit flush.
type batchedHarness struct {
	ctx        *Context
	transcript *Batched[[]Message]
	undo       *Batched[map[int]*StrategySnapshot]
}

func newBatchedHarness() *batchedHarness {
	h := &batchedHarness{
		transcript: NewBatched[[]Message](nil),
		undo:       NewBatched(map[int]*StrategySnapshot{}),
	}
	c := NewContext(h.transcript, h.undo)
	c.ParseToolArguments = DefaultParseToolArguments
	c.ParseToolResult = DefaultParseToolResult
	c.Spawn = func(fn func()) { fn() }
	h.ctx = c
	return h
}

func TestBatchedDeltasAndFinalizeYieldOneMessage(t *testing.T) {
	h := newBatchedHarness()

	for i := 0; i < 5; i++ {
		Dispatch(h.ctx, event(protocol.EventAssistantDelta, map[string]any{
			"messageId": "m1",
			"delta":     fmt.Sprintf("part%d ", i),
		}))
	}
	Dispatch(h.ctx, event(protocol.EventAssistantMessage, map[string]any{"messageId": "m1"}))

	// Nothing has been applied yet.
	assert.Empty(t, h.transcript.State())
	require.Positive(t, h.transcript.PendingCount())

	h.transcript.Flush()

	msgs := h.transcript.State()
	require.Len(t, msgs, 1)
	assert.Equal(t, "part0 part1 part2 part3 part4 ", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[0].Role)
	assert.Equal(t, indexNone, h.ctx.Session.StreamingIndex())
}

func TestBatchedFinalizeWithContentOverride(t *testing.T) {
	h := newBatchedHarness()

	Dispatch(h.ctx, event(protocol.EventAssistantDelta, map[string]any{"messageId": "m1", "delta": "partial"}))
	Dispatch(h.ctx, event(protocol.EventAssistantMessage, map[string]any{
		"messageId": "m1",
		"content":   "final answer",
	}))
	h.transcript.Flush()

	msgs := h.transcript.State()
	require.Len(t, msgs, 1)
	assert.Equal(t, "final answer", msgs[0].Content)
}

func TestBatchedInterleavedFlushes(t *testing.T) {
	h := newBatchedHarness()

	Dispatch(h.ctx, event(protocol.EventAssistantDelta, map[string]any{"messageId": "m1", "delta": "a"}))
	h.transcript.Flush()
	Dispatch(h.ctx, event(protocol.EventAssistantDelta, map[string]any{"messageId": "m1", "delta": "b"}))
	Dispatch(h.ctx, event(protocol.EventAssistantMessage, map[string]any{"messageId": "m1"}))
	h.transcript.Flush()

	msgs := h.transcript.State()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ab", msgs[0].Content)
}

func TestOptimizationProgressTurnIsolation(t *testing.T) {
	h := newHarness()

	// A previous turn left an assistant message with no
	// optimization data.
	h.transcript.Apply(func(prior []Message) []Message {
		return append(prior, Message{Role: domain.RoleAssistant, Content: "earlier reply"})
	})

	Dispatch(h.ctx, event(protocol.EventOptimizationProgress, map[string]any{
		"trials": []any{map[string]any{"trialNumber": 1, "score": 0.5}},
	}))

	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].Optimization, "progress must not attach to a previous turn's message")
	require.Len(t, h.progress, 1)

	// Once this turn has its own assistant message, progress
	// attaches there.
	Dispatch(h.ctx, event(protocol.EventAssistantDelta, map[string]any{"messageId": "m1", "delta": "optimizing"}))
	Dispatch(h.ctx, event(protocol.EventOptimizationProgress, map[string]any{
		"trials": []any{map[string]any{"trialNumber": 2, "score": 0.7}},
	}))

	msgs = h.messages()
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].Optimization)
	require.NotNil(t, msgs[1].Optimization)
	assert.Len(t, msgs[1].Optimization.Trials, 2)
}

func TestOptimizationProgressAfterFinalizeUsesTurnIndex(t *testing.T) {
	h := newHarness()

	Dispatch(h.ctx, event(protocol.EventAssistantDelta, map[string]any{"messageId": "m1", "delta": "running trials"}))
	Dispatch(h.ctx, event(protocol.EventAssistantMessage, map[string]any{"messageId": "m1"}))
	// Streaming index is cleared; turn index still owns the
	// message for late progress events.
	Dispatch(h.ctx, event(protocol.EventOptimizationProgress, map[string]any{
		"status": "done",
		"trials": []any{map[string]any{"trialNumber": 1, "score": 0.9}},
	}))

	msgs := h.messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Optimization)
	assert.Equal(t, "done", msgs[0].Optimization.Status)
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness()
	h.ops.snapshotSource = &domain.Strategy{ID: "strat_1", Name: "Original"}
	h.ctx.SiteID = "PlasmoDB"

	Dispatch(h.ctx, event(protocol.EventMessageStart, map[string]any{"strategyId": "strat_1"}))
	h.ctx.StartStrategyID = "strat_1"

	tools := []string{"run_search", "combine_steps", "execute_strategy"}
	for i, name := range tools {
		callID := fmt.Sprintf("tc%d", i)
		Dispatch(h.ctx, event(protocol.EventToolCallStart, map[string]any{
			"id": callID, "name": name,
			"arguments": map[string]any{"n": i},
		}))
		Dispatch(h.ctx, event(protocol.EventToolCallEnd, map[string]any{
			"id": callID, "result": map[string]any{"ok": true},
		}))
	}

	Dispatch(h.ctx, event(protocol.EventStrategyUpdate, map[string]any{
		"strategyId": "strat_1",
		"step":       map[string]any{"id": "s1", "kind": "search", "displayName": "Genes by text"},
	}))
	Dispatch(h.ctx, event(protocol.EventStrategyLink, map[string]any{
		"strategyId":    "strat_1",
		"wdkStrategyId": 4821,
		"url":           "https://plasmodb.org/app/workspace/strategies/4821",
	}))
	Dispatch(h.ctx, event(protocol.EventAssistantDelta, map[string]any{"messageId": "m1", "delta": "Built your "}))
	Dispatch(h.ctx, event(protocol.EventAssistantDelta, map[string]any{"messageId": "m1", "delta": "strategy."}))
	Dispatch(h.ctx, event(protocol.EventAssistantMessage, map[string]any{"messageId": "m1"}))

	msgs := h.messages()
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "Built your strategy.", m.Content)
	require.GreaterOrEqual(t, len(m.ToolCalls), 3)
	names := make([]string, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		names = append(names, tc.Name)
	}
	assert.Contains(t, names, "run_search")
	assert.Contains(t, names, "execute_strategy")

	require.Len(t, h.ops.wdkLinks, 1)
	assert.Equal(t, int64(4821), h.ops.wdkLinks[0].id)
	assert.Equal(t, "https://plasmodb.org/app/workspace/strategies/4821", h.ops.wdkLinks[0].url)

	assert.Equal(t, indexNone, h.ctx.Session.StreamingIndex())
	assert.Equal(t, "", h.ctx.Session.StreamingMessageID())
	require.Len(t, h.ops.steps, 1)
	assert.Equal(t, "Genes by text", h.ops.steps[0].step.DisplayName)
}
