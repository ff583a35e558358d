package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbiome/stratagem/internal/protocol"
)

func TestToolCallStart(t *testing.T) {
	h := newHarness()
	Dispatch(h.ctx, event(protocol.EventToolCallStart, map[string]any{
		"id":        "tc1",
		"name":      "run_search",
		"arguments": `{"organism":"pfal"}`,
	}))

	require.Len(t, h.ctx.Turn.ToolCalls, 1)
	call := h.ctx.Turn.ToolCalls[0]
	assert.Equal(t, "run_search", call.Name)
	assert.Equal(t, "pfal", call.Arguments["organism"])

	// The tracker gets a copy, not the live buffer.
	require.Len(t, h.live.activeCalls, 1)
	h.ctx.Turn.ToolCalls[0].Name = "mutated"
	assert.Equal(t, "run_search", h.live.activeCalls[0][0].Name)

	Dispatch(h.ctx, event(protocol.EventToolCallStart, map[string]any{"name": "no id"}))
	assert.Len(t, h.ctx.Turn.ToolCalls, 1)
}

func TestToolCallEnd(t *testing.T) {
	t.Run("patches buffered call", func(t *testing.T) {
		h := newHarness()
		Dispatch(h.ctx, event(protocol.EventToolCallStart, map[string]any{"id": "tc1", "name": "run_search"}))
		Dispatch(h.ctx, event(protocol.EventToolCallEnd, map[string]any{
			"id":     "tc1",
			"result": map[string]any{"count": 12},
		}))

		require.Len(t, h.ctx.Turn.ToolCalls, 1)
		result, ok := h.ctx.Turn.ToolCalls[0].Result.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 12, result["count"])
		assert.Len(t, h.live.activeCalls, 2)
	})

	t.Run("unknown id still applies embedded graph snapshot", func(t *testing.T) {
		h := newHarness()
		Dispatch(h.ctx, event(protocol.EventToolCallEnd, map[string]any{
			"id": "never_started",
			"result": map[string]any{
				"graphSnapshot": map[string]any{"id": "strat_1"},
			},
		}))

		assert.Empty(t, h.ctx.Turn.ToolCalls)
		require.Len(t, h.ops.appliedSnapshots, 1)
		assert.Equal(t, "strat_1", h.ops.appliedSnapshots[0]["id"])
	})

	t.Run("json string result parses too", func(t *testing.T) {
		h := newHarness()
		Dispatch(h.ctx, event(protocol.EventToolCallEnd, map[string]any{
			"result": `{"graphSnapshot":{"id":"strat_2"}}`,
		}))
		require.Len(t, h.ops.appliedSnapshots, 1)
	})
}

func TestSubKaniLifecycle(t *testing.T) {
	h := newHarness()

	Dispatch(h.ctx, event(protocol.EventSubKaniTaskStart, map[string]any{"task": "annotate"}))
	Dispatch(h.ctx, event(protocol.EventSubKaniToolCallStart, map[string]any{
		"task": "annotate",
		"call": map[string]any{"id": "sk1", "name": "lookup_go_terms"},
	}))
	Dispatch(h.ctx, event(protocol.EventSubKaniToolCallEnd, map[string]any{
		"task": "annotate", "id": "sk1", "result": "ok",
	}))
	Dispatch(h.ctx, event(protocol.EventSubKaniTaskEnd, map[string]any{"task": "annotate", "status": "completed"}))

	assert.Equal(t, []string{"annotate"}, h.live.taskStarts)
	assert.Equal(t, "completed", h.live.taskEnds["annotate"])
	require.Len(t, h.ctx.Turn.SubKaniCalls["annotate"], 1)
	assert.Equal(t, "ok", h.ctx.Turn.SubKaniCalls["annotate"][0].Result)
	assert.Equal(t, "completed", h.ctx.Turn.SubKaniStatus["annotate"])
}

func TestSubKaniMissingFieldsNoOp(t *testing.T) {
	h := newHarness()

	Dispatch(h.ctx, event(protocol.EventSubKaniTaskStart, map[string]any{}))
	Dispatch(h.ctx, event(protocol.EventSubKaniToolCallStart, map[string]any{
		"task": "annotate",
		"call": map[string]any{"name": "missing id"},
	}))
	Dispatch(h.ctx, event(protocol.EventSubKaniToolCallEnd, map[string]any{"task": "annotate"}))
	Dispatch(h.ctx, event(protocol.EventSubKaniTaskEnd, map[string]any{}))

	assert.Empty(t, h.live.taskStarts)
	assert.Empty(t, h.ctx.Turn.SubKaniCalls["annotate"])
}

func TestSubKaniSnapshotAttachesAtFinalize(t *testing.T) {
	h := newHarness()

	Dispatch(h.ctx, event(protocol.EventSubKaniTaskStart, map[string]any{"task": "annotate"}))
	Dispatch(h.ctx, event(protocol.EventSubKaniToolCallStart, map[string]any{
		"task": "annotate",
		"call": map[string]any{"id": "sk1", "name": "lookup_go_terms"},
	}))
	Dispatch(h.ctx, event(protocol.EventAssistantMessage, map[string]any{"content": "delegated work done"}))

	msgs := h.messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].SubKani)
	assert.Len(t, msgs[0].SubKani.CallsByTask["annotate"], 1)
	assert.Equal(t, "running", msgs[0].SubKani.StatusByTask["annotate"])
}

func TestSubKaniSnapshotOmittedWithoutCalls(t *testing.T) {
	h := newHarness()

	// A task started but made no calls: no snapshot attaches.
	Dispatch(h.ctx, event(protocol.EventSubKaniTaskStart, map[string]any{"task": "annotate"}))
	Dispatch(h.ctx, event(protocol.EventAssistantMessage, map[string]any{"content": "nothing delegated"}))

	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].SubKani)
}
