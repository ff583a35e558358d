package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openbiome/stratagem/internal/protocol"
)

const WriteTimeout = 10 * time.Second

// Hub tracks websocket subscriptions: browser clients per
// conversation, plus single connections for the planning agent and
// the strategy executor.
type Hub struct {
	convSubs map[string]map[*websocket.Conn]struct{}
	convMu   sync.RWMutex

	agentConn *websocket.Conn
	agentMu   sync.RWMutex

	executorConn *websocket.Conn
	executorMu   sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		convSubs: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) Subscribe(convID string, conn *websocket.Conn) {
	h.convMu.Lock()
	defer h.convMu.Unlock()

	if h.convSubs[convID] == nil {
		h.convSubs[convID] = make(map[*websocket.Conn]struct{})
	}
	h.convSubs[convID][conn] = struct{}{}
	slog.Info("ws: subscribed", "conversation_id", convID, "total", len(h.convSubs[convID]))
}

func (h *Hub) Unsubscribe(convID string, conn *websocket.Conn) {
	h.convMu.Lock()
	defer h.convMu.Unlock()

	if subs, ok := h.convSubs[convID]; ok {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.convSubs, convID)
		}
		slog.Info("ws: unsubscribed", "conversation_id", convID)
	}
}

func (h *Hub) UnsubscribeAll(conn *websocket.Conn) {
	h.convMu.Lock()
	defer h.convMu.Unlock()

	for convID, subs := range h.convSubs {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.convSubs, convID)
		}
	}
}

func (h *Hub) SubscribeAgent(conn *websocket.Conn) {
	h.agentMu.Lock()
	defer h.agentMu.Unlock()
	h.agentConn = conn
	slog.Info("ws: agent connected")
}

func (h *Hub) UnsubscribeAgent(conn *websocket.Conn) {
	h.agentMu.Lock()
	defer h.agentMu.Unlock()
	if h.agentConn == conn {
		h.agentConn = nil
		slog.Info("ws: agent disconnected")
	}
}

func (h *Hub) SubscribeExecutor(conn *websocket.Conn) {
	h.executorMu.Lock()
	defer h.executorMu.Unlock()
	h.executorConn = conn
	slog.Info("ws: executor connected")
}

func (h *Hub) UnsubscribeExecutor(conn *websocket.Conn) {
	h.executorMu.Lock()
	defer h.executorMu.Unlock()
	if h.executorConn == conn {
		h.executorConn = nil
		slog.Info("ws: executor disconnected")
	}
}

func (h *Hub) BroadcastToConversation(convID string, data []byte) {
	h.convMu.RLock()
	subs := make([]*websocket.Conn, 0, len(h.convSubs[convID]))
	for conn := range h.convSubs[convID] {
		subs = append(subs, conn)
	}
	h.convMu.RUnlock()

	for _, conn := range subs {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			slog.Warn("ws: broadcast error (client likely disconnected)", "error", err, "conversation_id", convID)
			h.Unsubscribe(convID, conn)
		}
	}
}

func (h *Hub) BroadcastToAgent(data []byte) {
	h.agentMu.RLock()
	conn := h.agentConn
	h.agentMu.RUnlock()

	if conn == nil {
		slog.Warn("ws: no agent connected")
		return
	}

	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		slog.Error("ws: agent send error", "error", err)
	}
}

func (h *Hub) BroadcastToExecutor(data []byte) {
	h.executorMu.RLock()
	conn := h.executorConn
	h.executorMu.RUnlock()

	if conn == nil {
		slog.Warn("ws: no executor connected")
		return
	}

	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		slog.Error("ws: executor send error", "error", err)
	}
}

// Broadcast routes an envelope by type: generation requests go to
// the agent, executor builds to the executor, everything else to the
// conversation's subscribers. Implements services.Broadcaster.
func (h *Hub) Broadcast(convID string, env *protocol.Envelope) {
	data, err := env.Encode()
	if err != nil {
		slog.Error("ws: encode envelope error", "error", err, "type", env.Type)
		return
	}
	switch env.Type {
	case protocol.TypeGenRequest:
		h.BroadcastToAgent(data)
	case protocol.TypeExecutorBuild:
		h.BroadcastToExecutor(data)
	default:
		h.BroadcastToConversation(convID, data)
	}
}
