package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/metrics"
	"github.com/openbiome/stratagem/internal/protocol"
	"github.com/openbiome/stratagem/internal/reconcile"
)

// StrategyStore is the slice of the store the strategy holder needs.
type StrategyStore interface {
	UpsertStrategy(ctx context.Context, strategy *domain.Strategy) error
	GetStrategy(ctx context.Context, strategyID string) (*domain.Strategy, error)
	SetStrategyWDKLink(ctx context.Context, strategyID string, wdkID int64, wdkURL string) error
}

// WDKClient is the slice of the WDK service client used for link
// enrichment. Nil disables enrichment.
type WDKClient interface {
	GetStrategy(ctx context.Context, wdkID int64) (*domain.Strategy, error)
	StrategyURL(wdkID int64) string
}

// strategyHolder is the per-conversation working copy of the strategy
// graph. Mutations land here first, then persist and broadcast.
type strategyHolder struct {
	mu        sync.Mutex
	convID    string
	siteID    string
	store     StrategyStore
	wdk       WDKClient
	broadcast func(env *protocol.Envelope)

	current   *domain.Strategy
	currentID string
	summaries []domain.StrategySummary
	executed  []*domain.Strategy
}

func newStrategyHolder(convID, siteID string, store StrategyStore, wdk WDKClient, broadcast func(*protocol.Envelope)) *strategyHolder {
	return &strategyHolder{
		convID:    convID,
		siteID:    siteID,
		store:     store,
		wdk:       wdk,
		broadcast: broadcast,
	}
}

// ops exposes the holder as the reconciler's strategy capability set.
func (h *strategyHolder) ops() reconcile.StrategyOps {
	return reconcile.StrategyOps{
		SetStrategyID:       h.setStrategyID,
		AddStrategySummary:  h.addSummary,
		AddExecutedStrategy: h.addExecuted,
		SetWDKLink:          h.setWDKLink,
		SetStrategy:         h.setStrategy,
		SetStrategyMeta:     h.setMeta,
		ClearStrategy:       h.clear,
		AddStep:             h.addStep,
		LoadGraph:           h.loadGraph,
		GetStrategy:         h.getStrategy,
		ApplyGraphSnapshot:  h.applyGraphSnapshot,
		SnapshotStrategy:    h.snapshot,
	}
}

func (h *strategyHolder) Current() *domain.Strategy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Clone()
}

func (h *strategyHolder) CurrentID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentID
}

func (h *strategyHolder) setStrategyID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentID = id
}

func (h *strategyHolder) addSummary(s domain.StrategySummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.summaries {
		if existing.ID == s.ID {
			return
		}
	}
	h.summaries = append(h.summaries, s)
}

func (h *strategyHolder) addExecuted(s *domain.Strategy) {
	if s == nil {
		return
	}
	h.mu.Lock()
	h.executed = append(h.executed, s.Clone())
	h.mu.Unlock()

	h.persist(s)
	h.announce(s)
}

func (h *strategyHolder) setWDKLink(wdkID int64, url, name, description string) {
	if url == "" && h.wdk != nil {
		url = h.wdk.StrategyURL(wdkID)
	}

	h.mu.Lock()
	id := h.currentID
	bare := h.current == nil || len(h.current.Steps) == 0
	if h.current != nil && (id == "" || h.current.ID == id) {
		h.current.WDKID = wdkID
		h.current.WDKURL = url
		if name != "" {
			h.current.Name = name
		}
		if description != "" {
			h.current.Description = description
		}
	}
	changed := h.current.Clone()
	h.mu.Unlock()

	if id != "" {
		if err := h.store.SetStrategyWDKLink(context.Background(), id, wdkID, url); err != nil {
			slog.Error("strategy: persist wdk link failed", "strategy_id", id, "error", err)
		}
	}
	if changed != nil {
		h.announce(changed)
	}
	if bare && h.wdk != nil {
		go h.enrichFromWDK(wdkID)
	}
}

// enrichFromWDK pulls the executed graph for a linked strategy. The
// fetch is best effort and only fills a stepless working copy.
func (h *strategyHolder) enrichFromWDK(wdkID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fetched, err := h.wdk.GetStrategy(ctx, wdkID)
	if err != nil {
		slog.Debug("strategy: wdk enrichment failed", "wdk_id", wdkID, "error", err)
		return
	}

	h.mu.Lock()
	if h.current == nil || len(h.current.Steps) > 0 {
		h.mu.Unlock()
		return
	}
	h.current.Steps = fetched.Steps
	if h.current.Name == "" {
		h.current.Name = fetched.Name
	}
	if h.current.Description == "" {
		h.current.Description = fetched.Description
	}
	if h.current.RecordType == "" {
		h.current.RecordType = fetched.RecordType
	}
	changed := h.current.Clone()
	h.mu.Unlock()

	h.persist(changed)
	h.announce(changed)
}

func (h *strategyHolder) setStrategy(s *domain.Strategy) {
	if s == nil {
		return
	}
	h.mu.Lock()
	h.current = s.Clone()
	h.currentID = s.ID
	h.mu.Unlock()

	h.persist(s)
	h.announce(s)
}

func (h *strategyHolder) setMeta(meta domain.StrategyMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		h.current = &domain.Strategy{ID: meta.ID, SiteID: h.siteID}
		h.currentID = meta.ID
	}
	if meta.ID != "" && h.current.ID != meta.ID {
		return
	}
	if meta.Name != "" {
		h.current.Name = meta.Name
	}
	if meta.Description != "" {
		h.current.Description = meta.Description
	}
	if meta.RecordType != "" {
		h.current.RecordType = meta.RecordType
	}
}

func (h *strategyHolder) clear(id string) {
	h.mu.Lock()
	if h.currentID != "" && id != "" && h.currentID != id {
		h.mu.Unlock()
		return
	}
	h.current = nil
	h.currentID = ""
	h.mu.Unlock()

	if h.broadcast != nil {
		h.broadcast(protocol.NewEnvelope(h.convID, protocol.TypeStrategyUpdate,
			map[string]any{"strategyId": id, "cleared": true}))
	}
}

func (h *strategyHolder) addStep(strategyID string, step domain.Step) {
	h.mu.Lock()
	if h.current == nil || h.current.ID != strategyID {
		h.current = &domain.Strategy{ID: strategyID, SiteID: h.siteID}
	}
	h.currentID = strategyID
	replaced := false
	for i, existing := range h.current.Steps {
		if step.ID != "" && existing.ID == step.ID {
			h.current.Steps[i] = step
			replaced = true
			break
		}
	}
	if !replaced {
		h.current.Steps = append(h.current.Steps, step)
	}
	changed := h.current.Clone()
	h.mu.Unlock()

	metrics.StrategyUpdatesTotal.Inc()
	h.persist(changed)
	h.announce(changed)
}

func (h *strategyHolder) loadGraph(id string) {
	s, err := h.store.GetStrategy(context.Background(), id)
	if err != nil {
		slog.Debug("strategy: load graph failed", "strategy_id", id, "error", err)
		return
	}
	h.mu.Lock()
	// A turn may have edited the graph while the load was in
	// flight; the loaded copy only fills an empty slot.
	if h.current == nil || h.current.ID == id && len(h.current.Steps) == 0 {
		h.current = s
		h.currentID = id
	}
	h.mu.Unlock()
}

func (h *strategyHolder) getStrategy(ctx context.Context, id string) (*domain.Strategy, error) {
	return h.store.GetStrategy(ctx, id)
}

func (h *strategyHolder) applyGraphSnapshot(snapshot map[string]any) {
	s := snapshotToStrategy(snapshot, h.siteID)
	if s == nil {
		return
	}
	h.mu.Lock()
	if s.ID == "" {
		s.ID = h.currentID
	}
	if h.currentID != "" && s.ID != "" && s.ID != h.currentID {
		h.mu.Unlock()
		return
	}
	if h.current != nil && h.current.ID == s.ID {
		if s.Name == "" {
			s.Name = h.current.Name
		}
		if s.Description == "" {
			s.Description = h.current.Description
		}
		if s.RecordType == "" {
			s.RecordType = h.current.RecordType
		}
		s.WDKID = h.current.WDKID
		s.WDKURL = h.current.WDKURL
	}
	h.current = s
	h.currentID = s.ID
	changed := s.Clone()
	h.mu.Unlock()

	metrics.StrategyUpdatesTotal.Inc()
	h.persist(changed)
	h.announce(changed)
}

func (h *strategyHolder) snapshot(id string) *reconcile.StrategySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := &reconcile.StrategySnapshot{TakenAt: time.Now()}
	if h.current != nil && (id == "" || h.current.ID == id) {
		snap.Strategy = h.current.Clone()
	}
	return snap
}

func (h *strategyHolder) persist(s *domain.Strategy) {
	if s == nil || s.ID == "" {
		return
	}
	if err := h.store.UpsertStrategy(context.Background(), s.Clone()); err != nil {
		slog.Error("strategy: persist failed", "strategy_id", s.ID, "error", err)
	}
}

func (h *strategyHolder) announce(s *domain.Strategy) {
	if h.broadcast == nil || s == nil {
		return
	}
	h.broadcast(protocol.NewEnvelope(h.convID, protocol.TypeStrategyUpdate, s))
}

// snapshotToStrategy rebuilds a strategy from a tool-emitted graph
// snapshot. Returns nil when the payload has no usable steps.
func snapshotToStrategy(snapshot map[string]any, siteID string) *domain.Strategy {
	if snapshot == nil {
		return nil
	}
	s := &domain.Strategy{SiteID: siteID}
	if v, ok := snapshot["strategyId"].(string); ok {
		s.ID = v
	} else if v, ok := snapshot["id"].(string); ok {
		s.ID = v
	}
	if v, ok := snapshot["name"].(string); ok {
		s.Name = v
	}
	if v, ok := snapshot["description"].(string); ok {
		s.Description = v
	}
	if v, ok := snapshot["recordType"].(string); ok {
		s.RecordType = v
	}

	rawSteps, ok := snapshot["steps"].([]any)
	if !ok {
		return nil
	}
	for _, raw := range rawSteps {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		s.Steps = append(s.Steps, stepFromSnapshot(m))
	}
	if len(s.Steps) == 0 {
		return nil
	}
	return s
}

func stepFromSnapshot(m map[string]any) domain.Step {
	str := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := m[k].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}
	step := domain.Step{
		ID:                   str("id", "stepId"),
		Kind:                 str("kind", "type"),
		DisplayName:          str("displayName", "customName", "name"),
		SearchName:           str("searchName"),
		Operator:             str("operator"),
		PrimaryInputStepID:   str("primaryInputStepId", "primaryInput"),
		SecondaryInputStepID: str("secondaryInputStepId", "secondaryInput"),
	}
	if params, ok := m["parameters"].(map[string]any); ok {
		step.Parameters = params
	}
	if step.Kind == "" {
		switch {
		case step.SecondaryInputStepID != "":
			step.Kind = domain.StepKindCombine
		case step.PrimaryInputStepID != "":
			step.Kind = domain.StepKindTransform
		default:
			step.Kind = domain.StepKindSearch
		}
	}
	return step
}
