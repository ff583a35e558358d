package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/protocol"
)

func TestStrategyUpdate(t *testing.T) {
	t.Run("adds step and captures one undo snapshot", func(t *testing.T) {
		h := newHarness()
		h.ops.snapshotSource = &domain.Strategy{ID: "strat_1", Name: "Before edits"}
		h.ctx.StartStrategyID = "strat_1"

		Dispatch(h.ctx, event(protocol.EventStrategyUpdate, map[string]any{
			"strategyId": "strat_1",
			"step":       map[string]any{"id": "s1", "kind": "search", "displayName": "Genes by GO term"},
		}))
		// Mutate the source between updates so a second capture
		// would be observable.
		h.ops.snapshotSource = &domain.Strategy{ID: "strat_1", Name: "After first edit"}
		Dispatch(h.ctx, event(protocol.EventStrategyUpdate, map[string]any{
			"strategyId": "strat_1",
			"step":       map[string]any{"id": "s2", "kind": "transform"},
		}))

		require.Len(t, h.ops.steps, 2)
		snap, applied := h.ctx.Session.ConsumeUndo()
		require.NotNil(t, snap)
		assert.True(t, applied)
		assert.Equal(t, "Before edits", snap.Strategy.Name, "first capture wins")
	})

	t.Run("pinned turn drops other strategies", func(t *testing.T) {
		h := newHarness()
		h.ops.snapshotSource = &domain.Strategy{ID: "strat_1"}
		h.ctx.StartStrategyID = "strat_1"

		Dispatch(h.ctx, event(protocol.EventStrategyUpdate, map[string]any{
			"graphId": "strat_2",
			"step":    map[string]any{"id": "s1"},
		}))

		assert.Empty(t, h.ops.steps, "step mutator must not run for a foreign strategy")
		assert.False(t, h.ctx.Session.HasUndo())
	})

	t.Run("target falls back to the step's own graph id", func(t *testing.T) {
		h := newHarness()
		Dispatch(h.ctx, event(protocol.EventStrategyUpdate, map[string]any{
			"step": map[string]any{"id": "s1", "graphId": "strat_7"},
		}))
		require.Len(t, h.ops.steps, 1)
		assert.Equal(t, "strat_7", h.ops.steps[0].strategyID)
	})

	t.Run("no resolvable target is a no-op", func(t *testing.T) {
		h := newHarness()
		Dispatch(h.ctx, event(protocol.EventStrategyUpdate, map[string]any{
			"step": map[string]any{"id": "s1"},
		}))
		assert.Empty(t, h.ops.steps)
	})

	t.Run("step defaults", func(t *testing.T) {
		h := newHarness()
		h.ctx.StartStrategyID = "strat_1"
		Dispatch(h.ctx, event(protocol.EventStrategyUpdate, map[string]any{
			"strategyId": "strat_1",
			"step":       map[string]any{"id": "s1"},
		}))
		require.Len(t, h.ops.steps, 1)
		step := h.ops.steps[0].step
		assert.Equal(t, domain.StepKindSearch, step.Kind)
		assert.Equal(t, "Unnamed step", step.DisplayName)
	})
}

func TestGraphSnapshot(t *testing.T) {
	h := newHarness()
	snapshot := map[string]any{"id": "strat_1", "steps": []any{}}
	Dispatch(h.ctx, event(protocol.EventGraphSnapshot, map[string]any{"snapshot": snapshot}))
	require.Len(t, h.ops.appliedSnapshots, 1)
	assert.Equal(t, "strat_1", h.ops.appliedSnapshots[0]["id"])

	Dispatch(h.ctx, event(protocol.EventGraphSnapshot, map[string]any{"snapshot": "bad"}))
	assert.Len(t, h.ops.appliedSnapshots, 1)
}

func TestStrategyLink(t *testing.T) {
	t.Run("links WDK id and overlays current strategy", func(t *testing.T) {
		h := newHarness()
		h.ctx.StartStrategyID = "strat_1"
		h.ctx.CurrentStrategy = &domain.Strategy{ID: "strat_1", Name: "Old name"}

		Dispatch(h.ctx, event(protocol.EventStrategyLink, map[string]any{
			"strategyId":    "strat_1",
			"wdkStrategyId": 99,
			"url":           "https://plasmodb.org/app/workspace/strategies/99",
			"name":          "Executed name",
		}))

		require.Len(t, h.ops.wdkLinks, 1)
		assert.Equal(t, int64(99), h.ops.wdkLinks[0].id)
		require.Len(t, h.ops.executed, 1)
		ex := h.ops.executed[0]
		assert.Equal(t, "Executed name", ex.Name)
		assert.Equal(t, int64(99), ex.WDKID)
		assert.Equal(t, "Old name", h.ctx.CurrentStrategy.Name, "current strategy is overlaid on a copy")
	})

	t.Run("fetches strategy when none is in hand", func(t *testing.T) {
		h := newHarness()
		h.ctx.StartStrategyID = "strat_1"
		h.ops.getStrategyResult = &domain.Strategy{ID: "strat_1", Name: "Fetched"}

		Dispatch(h.ctx, event(protocol.EventStrategyLink, map[string]any{
			"strategyId":    "strat_1",
			"wdkStrategyId": 5,
			"url":           "https://x/5",
		}))

		assert.Equal(t, []string{"strat_1"}, h.ops.getStrategyCalls)
		require.Len(t, h.ops.executed, 1)
		assert.Equal(t, "Fetched", h.ops.executed[0].Name)
		assert.Equal(t, int64(5), h.ops.executed[0].WDKID)
	})

	t.Run("fetch failure is swallowed", func(t *testing.T) {
		h := newHarness()
		h.ctx.StartStrategyID = "strat_1"
		h.ops.getStrategyErr = errors.New("wdk down")

		Dispatch(h.ctx, event(protocol.EventStrategyLink, map[string]any{"strategyId": "strat_1"}))
		assert.Empty(t, h.ops.executed)
	})

	t.Run("pinned mismatch is a no-op", func(t *testing.T) {
		h := newHarness()
		h.ctx.StartStrategyID = "strat_1"
		Dispatch(h.ctx, event(protocol.EventStrategyLink, map[string]any{
			"strategyId":    "strat_9",
			"wdkStrategyId": 5,
		}))
		assert.Empty(t, h.ops.wdkLinks)
		assert.Empty(t, h.ops.getStrategyCalls)
	})
}

func TestStrategyMeta(t *testing.T) {
	t.Run("updates meta preferring explicit name", func(t *testing.T) {
		h := newHarness()
		h.ctx.StartStrategyID = "strat_1"
		Dispatch(h.ctx, event(protocol.EventStrategyMeta, map[string]any{
			"strategyId":  "strat_1",
			"name":        "Proper name",
			"graphName":   "Alias name",
			"description": "genes under selection",
			"recordType":  "gene",
		}))
		require.Len(t, h.ops.metas, 1)
		meta := h.ops.metas[0]
		assert.Equal(t, "Proper name", meta.Name)
		assert.Equal(t, "genes under selection", meta.Description)
		assert.Equal(t, "gene", meta.RecordType)
	})

	t.Run("graph name alias applies when name absent", func(t *testing.T) {
		h := newHarness()
		h.ctx.StartStrategyID = "strat_1"
		Dispatch(h.ctx, event(protocol.EventStrategyMeta, map[string]any{
			"graphName": "Alias name",
		}))
		require.Len(t, h.ops.metas, 1)
		assert.Equal(t, "Alias name", h.ops.metas[0].Name)
	})

	t.Run("no target resolves to a no-op", func(t *testing.T) {
		h := newHarness()
		Dispatch(h.ctx, event(protocol.EventStrategyMeta, map[string]any{"name": "orphan"}))
		assert.Empty(t, h.ops.metas)
	})
}

func TestStrategyCleared(t *testing.T) {
	h := newHarness()
	h.ctx.StartStrategyID = "strat_1"

	Dispatch(h.ctx, event(protocol.EventStrategyCleared, map[string]any{"strategyId": "strat_2"}))
	assert.Empty(t, h.ops.cleared)

	Dispatch(h.ctx, event(protocol.EventStrategyCleared, map[string]any{"strategyId": "strat_1"}))
	assert.Equal(t, []string{"strat_1"}, h.ops.cleared)
}
