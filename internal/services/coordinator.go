// Package services orchestrates conversations: it owns the
// per-conversation reconciler state and connects it to the store,
// the websocket hub, and the WDK client.
package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/id"
	"github.com/openbiome/stratagem/internal/metrics"
	"github.com/openbiome/stratagem/internal/protocol"
	"github.com/openbiome/stratagem/internal/reconcile"
)

// Broadcaster fans an envelope out to a conversation's subscribers.
type Broadcaster interface {
	Broadcast(conversationID string, env *protocol.Envelope)
}

// CoordinatorStore is the slice of the store the coordinator needs.
type CoordinatorStore interface {
	StrategyStore
	CreateMessage(ctx context.Context, msg *domain.StoredMessage) error
	UpdateConversationTitle(ctx context.Context, conversationID, title string) error
	UpsertOptimizationRun(ctx context.Context, run *domain.OptimizationRun) error
	UpsertTrials(ctx context.Context, runID string, trials []domain.OptimizationTrial) error
}

// conversationState is everything the coordinator tracks for one
// conversation. The transcript sink lives for the conversation;
// session and turn buffers are replaced at each turn start.
type conversationState struct {
	mu         sync.Mutex
	rc         *reconcile.Context
	transcript *reconcile.Direct[[]reconcile.Message]
	undo       *reconcile.Direct[map[int]*reconcile.StrategySnapshot]
	holder     *strategyHolder
	live       *liveState

	// Transcript length when the current turn started. A finalize
	// that leaves the transcript at this length produced no message
	// and must not re-persist the prior turn's tail.
	turnStart int
}

// TurnCoordinator routes agent chat events into per-conversation
// reconcilers and persists their outcomes.
type TurnCoordinator struct {
	mu            sync.Mutex
	store         CoordinatorStore
	broadcaster   Broadcaster
	wdk           WDKClient
	siteID        string
	conversations map[string]*conversationState
}

func NewTurnCoordinator(store CoordinatorStore, broadcaster Broadcaster, wdk WDKClient, siteID string) *TurnCoordinator {
	return &TurnCoordinator{
		store:         store,
		broadcaster:   broadcaster,
		wdk:           wdk,
		siteID:        siteID,
		conversations: make(map[string]*conversationState),
	}
}

func (tc *TurnCoordinator) state(conversationID string) *conversationState {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if st, ok := tc.conversations[conversationID]; ok {
		return st
	}

	broadcast := func(env *protocol.Envelope) {
		if tc.broadcaster != nil {
			tc.broadcaster.Broadcast(conversationID, env)
		}
	}

	st := &conversationState{
		transcript: reconcile.NewDirect([]reconcile.Message(nil)),
		undo:       reconcile.NewDirect(map[int]*reconcile.StrategySnapshot{}),
		holder:     newStrategyHolder(conversationID, tc.siteID, tc.store, tc.wdk, broadcast),
		live:       newLiveState(),
	}
	st.rc = tc.newTurnContext(conversationID, st)
	tc.conversations[conversationID] = st
	return st
}

func (tc *TurnCoordinator) newTurnContext(conversationID string, st *conversationState) *reconcile.Context {
	rc := reconcile.NewContext(st.transcript, st.undo)
	rc.SiteID = tc.siteID
	rc.Strategy = st.holder.ops()
	rc.Live = st.live
	rc.ParseToolArguments = reconcile.DefaultParseToolArguments
	rc.ParseToolResult = reconcile.DefaultParseToolResult
	rc.SetOptimizationProgress = func(p *domain.OptimizationProgress) {
		tc.persistOptimization(conversationID, st, p)
	}
	rc.Hooks = reconcile.Hooks{
		OnPlanSessionID: func(sessionID string) {
			slog.Debug("turn: plan session", "conversation_id", conversationID, "session_id", sessionID)
		},
		OnTitleUpdate: func(title string) {
			if err := tc.store.UpdateConversationTitle(context.Background(), conversationID, title); err != nil {
				slog.Error("turn: title update failed", "conversation_id", conversationID, "error", err)
			}
			tc.broadcast(conversationID, protocol.NewEnvelope(conversationID, protocol.TypeTitleUpdate,
				protocol.TitleUpdate{ConversationID: conversationID, Title: title}))
		},
		OnExecutorBuildRequest: func(message string) {
			tc.broadcast(conversationID, protocol.NewEnvelope(conversationID, protocol.TypeExecutorBuild,
				protocol.ExecutorBuild{
					ConversationID: conversationID,
					Message:        message,
					StrategyID:     st.holder.CurrentID(),
				}))
		},
		OnAPIError: func(message string) {
			slog.Error("turn: agent error", "conversation_id", conversationID, "message", message)
			tc.broadcast(conversationID, protocol.NewEnvelope(conversationID, protocol.TypeError,
				protocol.Error{Code: "agent_error", Message: message, ConversationID: conversationID}))
		},
	}
	return rc
}

// HandleEvent feeds one agent event through the conversation's
// reconciler. message_start opens a fresh turn; assistant_message
// closes it and persists the finalized transcript entry.
func (tc *TurnCoordinator) HandleEvent(conversationID string, ev protocol.ChatEvent) {
	st := tc.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if ev.Type == protocol.EventMessageStart {
		tc.beginTurn(conversationID, st, ev)
	}

	reconcile.Dispatch(st.rc, ev)
	metrics.ChatEventsTotal.WithLabelValues(ev.Type).Inc()

	if ev.Type == protocol.EventAssistantMessage {
		tc.finishTurn(conversationID, st)
	}
}

func (tc *TurnCoordinator) beginTurn(conversationID string, st *conversationState, ev protocol.ChatEvent) {
	rc := tc.newTurnContext(conversationID, st)
	if ev.Data != nil {
		if v, ok := ev.Data["strategyId"].(string); ok {
			rc.StartStrategyID = v
		} else if v, ok := ev.Data["strategy_id"].(string); ok {
			rc.StartStrategyID = v
		}
	}
	if rc.StartStrategyID == "" {
		rc.StartStrategyID = st.holder.CurrentID()
	}
	rc.CurrentStrategy = st.holder.Current()
	st.rc = rc
	st.turnStart = len(st.transcript.State())
	st.live.reset()
}

func (tc *TurnCoordinator) finishTurn(conversationID string, st *conversationState) {
	metrics.TurnsFinalizedTotal.Inc()

	messages := st.transcript.State()
	if len(messages) <= st.turnStart {
		return
	}
	last := messages[len(messages)-1]
	if last.Role != domain.RoleAssistant {
		return
	}
	st.turnStart = len(messages)

	stored := &domain.StoredMessage{
		ID:             last.ID,
		ConversationID: conversationID,
		Role:           last.Role,
		Content:        last.Content,
		Reasoning:      last.Reasoning,
		ToolCalls:      last.ToolCalls,
		CreatedAt:      last.Timestamp,
	}
	if stored.ID == "" {
		stored.ID = id.NewMessage()
	}
	if err := tc.store.CreateMessage(context.Background(), stored); err != nil {
		slog.Error("turn: persist assistant message failed",
			"conversation_id", conversationID, "message_id", stored.ID, "error", err)
	}
	metrics.MessagesTotal.Inc()

	tc.broadcast(conversationID, protocol.NewEnvelope(conversationID, protocol.TypeAssistantMsg,
		protocol.AssistantMessage{
			ID:             stored.ID,
			ConversationID: conversationID,
			Content:        stored.Content,
			Reasoning:      stored.Reasoning,
			Timestamp:      stored.CreatedAt.UnixMilli(),
		}))
}

func (tc *TurnCoordinator) persistOptimization(conversationID string, st *conversationState, p *domain.OptimizationProgress) {
	if p == nil {
		return
	}
	if p.RunID != "" {
		run := &domain.OptimizationRun{
			ID:             p.RunID,
			ConversationID: conversationID,
			StrategyID:     st.holder.CurrentID(),
			Status:         p.Status,
			BestScore:      p.BestScore,
			UpdatedAt:      time.Now().UTC(),
		}
		if err := tc.store.UpsertOptimizationRun(context.Background(), run); err != nil {
			slog.Error("turn: persist optimization run failed", "run_id", p.RunID, "error", err)
		}
		if len(p.Trials) > 0 {
			if err := tc.store.UpsertTrials(context.Background(), p.RunID, p.Trials); err != nil {
				slog.Error("turn: persist optimization trials failed", "run_id", p.RunID, "error", err)
			}
		}
	}
	tc.broadcast(conversationID, protocol.NewEnvelope(conversationID, protocol.TypeOptimizationUpdate, p))
}

func (tc *TurnCoordinator) broadcast(conversationID string, env *protocol.Envelope) {
	if tc.broadcaster != nil {
		tc.broadcaster.Broadcast(conversationID, env)
	}
}

// Transcript returns the reconciled in-memory transcript.
func (tc *TurnCoordinator) Transcript(conversationID string) []reconcile.Message {
	tc.mu.Lock()
	st, ok := tc.conversations[conversationID]
	tc.mu.Unlock()
	if !ok {
		return nil
	}
	return st.transcript.State()
}

// Live returns the in-flight turn view for a conversation.
func (tc *TurnCoordinator) Live(conversationID string) LiveView {
	tc.mu.Lock()
	st, ok := tc.conversations[conversationID]
	tc.mu.Unlock()
	if !ok {
		return LiveView{}
	}
	return st.live.View()
}

// CurrentStrategy returns the working strategy copy, or nil.
func (tc *TurnCoordinator) CurrentStrategy(conversationID string) *domain.Strategy {
	tc.mu.Lock()
	st, ok := tc.conversations[conversationID]
	tc.mu.Unlock()
	if !ok {
		return nil
	}
	return st.holder.Current()
}
