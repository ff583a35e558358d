package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/services"
	"github.com/openbiome/stratagem/internal/store"
)

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

func respondStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, domain.ErrNotFound) {
		respondError(w, notFoundMsg, http.StatusNotFound)
		return
	}
	respondError(w, "internal error", http.StatusInternalServerError)
}

func parseIntQuery(r *http.Request, name string, defaultValue int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

type ConversationHandler struct {
	store       *store.Store
	coordinator *services.TurnCoordinator
	siteID      string
}

func NewConversationHandler(s *store.Store, coordinator *services.TurnCoordinator, siteID string) *ConversationHandler {
	return &ConversationHandler{store: s, coordinator: coordinator, siteID: siteID}
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req struct {
		Title  string `json:"title"`
		SiteID string `json:"site_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	conv := &domain.Conversation{
		UserID: userID,
		Title:  req.Title,
		SiteID: req.SiteID,
	}
	if conv.SiteID == "" {
		conv.SiteID = h.siteID
	}
	if err := h.store.CreateConversation(r.Context(), conv); err != nil {
		respondError(w, "failed to create conversation", http.StatusInternalServerError)
		return
	}

	respondJSON(w, conv, http.StatusCreated)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "conversation not found")
		return
	}
	respondJSON(w, conv, http.StatusOK)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	convs, err := h.store.ListConversations(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]any{
		"conversations": convs,
		"limit":         limit,
		"offset":        offset,
	}, http.StatusOK)
}

func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")

	var req struct {
		Title *string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == nil {
		respondError(w, "title is required", http.StatusBadRequest)
		return
	}

	if err := h.store.UpdateConversationTitle(r.Context(), convID, *req.Title); err != nil {
		respondStoreError(w, err, "conversation not found")
		return
	}

	conv, err := h.store.GetConversation(r.Context(), convID)
	if err != nil {
		respondStoreError(w, err, "conversation not found")
		return
	}
	respondJSON(w, conv, http.StatusOK)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err, "conversation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Messages returns the persisted message history.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	limit := parseIntQuery(r, "limit", 200)
	offset := parseIntQuery(r, "offset", 0)

	messages, err := h.store.ListMessages(r.Context(), convID, limit, offset)
	if err != nil {
		respondError(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"messages": messages}, http.StatusOK)
}

// Transcript returns the reconciled in-memory transcript, which can
// be ahead of the persisted history mid-turn.
func (h *ConversationHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	respondJSON(w, map[string]any{
		"transcript": h.coordinator.Transcript(convID),
		"live":       h.coordinator.Live(convID),
	}, http.StatusOK)
}

// Strategy returns the conversation's working strategy graph.
func (h *ConversationHandler) Strategy(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	s := h.coordinator.CurrentStrategy(convID)
	if s == nil {
		respondError(w, "no working strategy", http.StatusNotFound)
		return
	}
	respondJSON(w, s, http.StatusOK)
}

type StrategyHandler struct {
	store  *store.Store
	siteID string
}

func NewStrategyHandler(s *store.Store, siteID string) *StrategyHandler {
	return &StrategyHandler{store: s, siteID: siteID}
}

func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("site")
	if siteID == "" {
		siteID = h.siteID
	}
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	summaries, err := h.store.ListStrategies(r.Context(), siteID, limit, offset)
	if err != nil {
		respondError(w, "failed to list strategies", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"strategies": summaries}, http.StatusOK)
}

func (h *StrategyHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetStrategy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "strategy not found")
		return
	}
	respondJSON(w, s, http.StatusOK)
}

func (h *StrategyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteStrategy(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err, "strategy not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type OptimizationHandler struct {
	store *store.Store
}

func NewOptimizationHandler(s *store.Store) *OptimizationHandler {
	return &OptimizationHandler{store: s}
}

func (h *OptimizationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	runs, err := h.store.ListOptimizationRuns(r.Context(), limit, offset)
	if err != nil {
		respondError(w, "failed to list optimization runs", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"runs": runs}, http.StatusOK)
}

func (h *OptimizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := h.store.GetOptimizationRun(r.Context(), runID)
	if err != nil {
		respondStoreError(w, err, "optimization run not found")
		return
	}
	trials, err := h.store.ListTrials(r.Context(), runID)
	if err != nil {
		respondError(w, "failed to list trials", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"run": run, "trials": trials}, http.StatusOK)
}

// readiness is the load balancer check: database only.
func readiness(dbPing func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if dbPing != nil {
			if err := dbPing(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("database unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("alive"))
}
