package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/protocol"
)

type fakeWDK struct {
	strategy *domain.Strategy
}

func (f *fakeWDK) GetStrategy(_ context.Context, _ int64) (*domain.Strategy, error) {
	if f.strategy == nil {
		return nil, domain.ErrNotFound
	}
	return f.strategy.Clone(), nil
}

func (f *fakeWDK) StrategyURL(wdkID int64) string {
	return fmt.Sprintf("https://plasmodb.org/workspace/strategies/%d", wdkID)
}

func TestStrategyLinkEnrichesFromWDK(t *testing.T) {
	store := newFakeStore()
	wdk := &fakeWDK{strategy: &domain.Strategy{
		Name:       "Kinases in blood stage",
		RecordType: "transcript",
		Steps: []domain.Step{
			{ID: "1", Kind: domain.StepKindSearch, SearchName: "GenesByText"},
			{ID: "2", Kind: domain.StepKindTransform, PrimaryInputStepID: "1"},
		},
	}}
	tc := NewTurnCoordinator(store, &fakeBroadcaster{}, wdk, "PlasmoDB")

	tc.HandleEvent("conv_1", event(protocol.EventMessageStart, map[string]any{
		"strategyId": "strat_1",
	}))
	tc.HandleEvent("conv_1", event(protocol.EventStrategyLink, map[string]any{
		"strategyId": "strat_1",
		"name":       "Kinase hunt",
	}))
	tc.HandleEvent("conv_1", event(protocol.EventStrategyLink, map[string]any{
		"strategyId":    "strat_1",
		"wdkStrategyId": float64(4215),
	}))

	require.Eventually(t, func() bool {
		s := tc.CurrentStrategy("conv_1")
		return s != nil && len(s.Steps) == 2
	}, time.Second, 10*time.Millisecond)

	s := tc.CurrentStrategy("conv_1")
	require.Equal(t, int64(4215), s.WDKID)
	require.Equal(t, "https://plasmodb.org/workspace/strategies/4215", s.WDKURL)
	require.Equal(t, "Kinase hunt", s.Name)
	require.Equal(t, "transcript", s.RecordType)
	require.Equal(t, "GenesByText", s.Steps[0].SearchName)
}

func TestStrategyLinkWithoutClientSkipsEnrichment(t *testing.T) {
	store := newFakeStore()
	tc := NewTurnCoordinator(store, &fakeBroadcaster{}, nil, "PlasmoDB")

	tc.HandleEvent("conv_1", event(protocol.EventMessageStart, map[string]any{
		"strategyId": "strat_1",
	}))
	tc.HandleEvent("conv_1", event(protocol.EventStrategyLink, map[string]any{
		"strategyId": "strat_1",
		"name":       "Kinase hunt",
	}))
	tc.HandleEvent("conv_1", event(protocol.EventStrategyLink, map[string]any{
		"strategyId":    "strat_1",
		"wdkStrategyId": float64(4215),
		"url":           "https://plasmodb.org/workspace/strategies/4215",
	}))

	s := tc.CurrentStrategy("conv_1")
	require.NotNil(t, s)
	require.Equal(t, int64(4215), s.WDKID)
	require.Empty(t, s.Steps)
}
