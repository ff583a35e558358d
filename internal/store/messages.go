package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/id"
	"github.com/openbiome/stratagem/internal/jsonutil"
)

// CreateMessage inserts a message. ON CONFLICT upserts content so a
// finalize arriving after a partial persist wins.
func (s *Store) CreateMessage(ctx context.Context, msg *domain.StoredMessage) error {
	if msg.ID == "" {
		msg.ID = id.NewMessage()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, content, reasoning, tool_calls, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			reasoning = EXCLUDED.reasoning,
			tool_calls = EXCLUDED.tool_calls`

	var toolCalls any
	if len(msg.ToolCalls) > 0 {
		toolCalls = jsonutil.MustJSON(msg.ToolCalls)
	}

	_, err := s.conn(ctx).Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Reasoning, toolCalls, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*domain.StoredMessage, error) {
	query := `
		SELECT id, conversation_id, role, content, COALESCE(reasoning, ''), COALESCE(tool_calls::text, ''), created_at
		FROM messages
		WHERE id = $1 AND deleted_at IS NULL`

	msg := &domain.StoredMessage{}
	var toolCalls string
	err := s.conn(ctx).QueryRow(ctx, query, messageID).Scan(
		&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Reasoning, &toolCalls, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	msg.ToolCalls = parseToolCalls(toolCalls)
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*domain.StoredMessage, error) {
	query := `
		SELECT id, conversation_id, role, content, COALESCE(reasoning, ''), COALESCE(tool_calls::text, ''), created_at
		FROM messages
		WHERE conversation_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := s.conn(ctx).Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.StoredMessage
	for rows.Next() {
		msg := &domain.StoredMessage{}
		var toolCalls string
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Reasoning, &toolCalls, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ToolCalls = parseToolCalls(toolCalls)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	query := `UPDATE messages SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := s.conn(ctx).Exec(ctx, query, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func parseToolCalls(raw string) []domain.ToolCall {
	if raw == "" {
		return nil
	}
	var calls []domain.ToolCall
	for _, m := range jsonutil.ParseJSONList(raw) {
		call := domain.ToolCall{}
		if v, ok := m["id"].(string); ok {
			call.ID = v
		}
		if v, ok := m["name"].(string); ok {
			call.Name = v
		}
		if v, ok := m["arguments"].(map[string]any); ok {
			call.Arguments = v
		}
		call.Result = m["result"]
		calls = append(calls, call)
	}
	return calls
}
