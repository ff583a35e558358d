package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/id"
)

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = id.NewConversation()
	}
	if conv.Status == "" {
		conv.Status = domain.ConversationActive
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	query := `
		INSERT INTO conversations (id, user_id, title, site_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.conn(ctx).Exec(ctx, query,
		conv.ID, conv.UserID, conv.Title, conv.SiteID, conv.Status, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	query := `
		SELECT id, user_id, title, site_id, status, COALESCE(tip_message_id, ''), created_at, updated_at
		FROM conversations
		WHERE id = $1 AND deleted_at IS NULL`

	conv := &domain.Conversation{}
	err := s.conn(ctx).QueryRow(ctx, query, conversationID).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &conv.SiteID, &conv.Status,
		&conv.TipMessageID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*domain.Conversation, error) {
	query := `
		SELECT id, user_id, title, site_id, status, COALESCE(tip_message_id, ''), created_at, updated_at
		FROM conversations
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.conn(ctx).Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv := &domain.Conversation{}
		if err := rows.Scan(
			&conv.ID, &conv.UserID, &conv.Title, &conv.SiteID, &conv.Status,
			&conv.TipMessageID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (s *Store) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	query := `
		UPDATE conversations
		SET title = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := s.conn(ctx).Exec(ctx, query, conversationID, title)
	if err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateConversationTip(ctx context.Context, conversationID, messageID string) error {
	query := `
		UPDATE conversations
		SET tip_message_id = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	_, err := s.conn(ctx).Exec(ctx, query, conversationID, messageID)
	if err != nil {
		return fmt.Errorf("update conversation tip: %w", err)
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	query := `
		UPDATE conversations
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := s.conn(ctx).Exec(ctx, query, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
