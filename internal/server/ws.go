package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openbiome/stratagem/internal/config"
	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/id"
	"github.com/openbiome/stratagem/internal/metrics"
	"github.com/openbiome/stratagem/internal/protocol"
	"github.com/openbiome/stratagem/internal/services"
	"github.com/openbiome/stratagem/internal/store"
	"github.com/openbiome/stratagem/internal/telemetry"
)

type WSHandler struct {
	hub         *Hub
	cfg         *config.Config
	store       *store.Store
	coordinator *services.TurnCoordinator
	upgrader    websocket.Upgrader
}

func NewWSHandler(hub *Hub, cfg *config.Config, s *store.Store, coordinator *services.TurnCoordinator) *WSHandler {
	h := &WSHandler{hub: hub, cfg: cfg, store: s, coordinator: coordinator}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	allowedOrigins := h.cfg.Server.AllowedOrigins
	for _, o := range allowedOrigins {
		if o == "*" {
			return true
		}
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return h.cfg.Server.AllowEmptyOrigin
	}
	for _, allowed := range allowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws: upgrade error", "error", err)
		return
	}
	defer conn.Close()

	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	var isAgent bool
	var isExecutor bool

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("ws: read error", "error", err)
			}
			break
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			slog.Error("ws: decode error", "error", err)
			continue
		}

		// Detached from connection context: message processing must
		// complete even if the client disconnects.
		func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if env.HasTraceContext() {
				ctx = telemetry.ExtractTraceParent(ctx, env.TraceParent())
			}

			switch env.Type {
			case protocol.TypeSubscribe:
				sub, err := protocol.DecodeBody[protocol.Subscribe](env)
				if err != nil {
					slog.Error("ws: decode subscribe error", "error", err)
					return
				}

				switch sub.Mode {
				case "agent":
					if !h.verifyAgentAuth(r) {
						slog.Warn("ws: agent auth failed")
						h.sendSubscribeAck(conn, "", false, "authentication required")
						return
					}
					isAgent = true
					h.hub.SubscribeAgent(conn)
					h.sendSubscribeAck(conn, "", true, "")
				case "executor":
					if !h.verifyAgentAuth(r) {
						slog.Warn("ws: executor auth failed")
						h.sendSubscribeAck(conn, "", false, "authentication required")
						return
					}
					isExecutor = true
					h.hub.SubscribeExecutor(conn)
					h.sendSubscribeAck(conn, "", true, "")
				default:
					if sub.ConversationID != "" {
						h.hub.Subscribe(sub.ConversationID, conn)
						h.sendSubscribeAck(conn, sub.ConversationID, true, "")
					}
				}

			case protocol.TypeUnsubscribe:
				unsub, err := protocol.DecodeBody[protocol.Unsubscribe](env)
				if err != nil {
					return
				}
				h.hub.Unsubscribe(unsub.ConversationID, conn)

			case protocol.TypeUserMessage:
				if env.ConversationID != "" {
					h.handleClientUserMessage(ctx, env)
				}

			case protocol.TypeChatEvent:
				if isAgent && env.ConversationID != "" {
					h.handleAgentChatEvent(env, data)
				}

			case protocol.TypeGenRequest:
				if !isAgent && env.ConversationID != "" {
					h.hub.BroadcastToAgent(data)
				}

			case protocol.TypeAgentHeartbeat:
				// Keepalive only.

			default:
				if (isAgent || isExecutor) && env.ConversationID != "" {
					h.hub.BroadcastToConversation(env.ConversationID, data)
				}
			}
		}()
	}

	if isAgent {
		h.hub.UnsubscribeAgent(conn)
	} else if isExecutor {
		h.hub.UnsubscribeExecutor(conn)
	} else {
		h.hub.UnsubscribeAll(conn)
	}
}

func (h *WSHandler) verifyAgentAuth(r *http.Request) bool {
	secret := h.cfg.Server.AgentSecret
	if secret == "" {
		return true
	}
	if r.Header.Get("Authorization") == "Bearer "+secret {
		return true
	}
	return r.URL.Query().Get("agent_secret") == secret
}

func (h *WSHandler) sendSubscribeAck(conn *websocket.Conn, convID string, success bool, errMsg string) {
	ack := protocol.SubscribeAck{
		ConversationID: convID,
		Success:        success,
		Error:          errMsg,
	}
	env := protocol.NewEnvelope(convID, protocol.TypeSubscribeAck, ack)
	data, err := env.Encode()
	if err != nil {
		slog.Error("ws: encode subscribe ack error", "error", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		slog.Error("ws: send subscribe ack error", "error", err)
	}
}

// handleAgentChatEvent fans an agent event out to the conversation's
// browser subscribers and feeds it through the reconciler.
func (h *WSHandler) handleAgentChatEvent(env *protocol.Envelope, raw []byte) {
	ev, err := protocol.DecodeBody[protocol.ChatEvent](env)
	if err != nil {
		slog.Error("ws: decode chat event error", "error", err, "conversation_id", env.ConversationID)
		return
	}

	h.hub.BroadcastToConversation(env.ConversationID, raw)
	h.coordinator.HandleEvent(env.ConversationID, *ev)
}

func (h *WSHandler) handleClientUserMessage(ctx context.Context, env *protocol.Envelope) {
	msg, err := protocol.DecodeBody[protocol.UserMessage](env)
	if err != nil {
		slog.Error("ws: decode user message error", "error", err)
		return
	}

	convID := env.ConversationID
	if msg.Content == "" {
		slog.Warn("ws: user message has empty content", "conversation_id", convID)
		return
	}

	conv, err := h.store.GetConversation(ctx, convID)
	if err != nil {
		slog.Error("ws: get conversation for user message error", "error", err, "conversation_id", convID)
		return
	}
	previousID := conv.TipMessageID

	userMsg := &domain.StoredMessage{
		ID:             id.NewMessage(),
		ConversationID: convID,
		Role:           domain.RoleUser,
		Content:        msg.Content,
		CreatedAt:      time.Now().UTC(),
	}

	err = h.store.WithTx(ctx, func(ctx context.Context) error {
		if err := h.store.CreateMessage(ctx, userMsg); err != nil {
			return err
		}
		return h.store.UpdateConversationTip(ctx, convID, userMsg.ID)
	})
	if err != nil {
		slog.Error("ws: create user message error", "error", err, "conversation_id", convID)
		return
	}
	metrics.MessagesTotal.Inc()

	slog.Info("ws: user message created", "message_id", userMsg.ID, "conversation_id", convID)

	h.hub.Broadcast(convID, protocol.NewEnvelope(convID, protocol.TypeUserMessage, &protocol.UserMessage{
		ID:             userMsg.ID,
		ConversationID: convID,
		Content:        msg.Content,
		PreviousID:     previousID,
	}))

	req := protocol.GenRequest{
		ConversationID: convID,
		MessageID:      userMsg.ID,
		SiteID:         conv.SiteID,
	}
	if s := h.coordinator.CurrentStrategy(convID); s != nil {
		req.StrategyID = s.ID
	}
	genEnv := protocol.NewEnvelope(convID, protocol.TypeGenRequest, req)
	genEnv.TraceID, genEnv.SpanID, genEnv.TraceFlags = telemetry.InjectSpan(ctx)
	h.hub.Broadcast(convID, genEnv)
}
