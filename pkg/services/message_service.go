package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/messagehistory"
)

// MessageService persists agent chat transcripts.
type MessageService struct {
	client *ent.Client
}

// NewMessageService creates a new MessageService.
func NewMessageService(client *ent.Client) *MessageService {
	return &MessageService{client: client}
}

// AppendMessage stores one transcript entry.
func (s *MessageService) AppendMessage(httpCtx context.Context, userID, campaignID string, role messagehistory.Role, agentType, content string, toolCalls []map[string]any) (*ent.MessageHistory, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	builder := s.client.MessageHistory.Create().
		SetID(uuid.New().String()).
		SetUserID(userID).
		SetRole(role).
		SetContent(content)
	if campaignID != "" {
		builder.SetCampaignID(campaignID)
	}
	if agentType != "" {
		builder.SetAgentType(agentType)
	}
	if len(toolCalls) > 0 {
		builder.SetToolCalls(toolCalls)
	}

	m, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return m, nil
}

// ListRecent returns the newest messages for a user, newest first.
func (s *MessageService) ListRecent(ctx context.Context, userID string, limit int) ([]*ent.MessageHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	ms, err := s.client.MessageHistory.Query().
		Where(messagehistory.UserID(userID)).
		Order(ent.Desc(messagehistory.FieldCreatedAt)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return ms, nil
}
