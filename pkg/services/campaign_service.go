package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/campaign"
	"github.com/loresmith/loresmith/pkg/models"
)

// CampaignService manages campaign lifecycle.
type CampaignService struct {
	client *ent.Client
}

// NewCampaignService creates a new CampaignService.
func NewCampaignService(client *ent.Client) *CampaignService {
	return &CampaignService{client: client}
}

// CreateCampaign creates a campaign owned by userID. The RAG base path is
// derived from the generated id so AI search is scoped per campaign.
func (s *CampaignService) CreateCampaign(httpCtx context.Context, userID string, req models.CreateCampaignRequest) (*ent.Campaign, error) {
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := uuid.New().String()
	c, err := s.client.Campaign.Create().
		SetID(id).
		SetOwnerID(userID).
		SetName(req.Name).
		SetDescription(req.Description).
		SetRagBasePath(fmt.Sprintf("campaigns/%s/", id)).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return c, nil
}

// GetCampaign returns the campaign if owned by userID.
func (s *CampaignService) GetCampaign(ctx context.Context, userID, campaignID string) (*ent.Campaign, error) {
	c, err := s.client.Campaign.Query().
		Where(campaign.ID(campaignID), campaign.OwnerID(userID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns all campaigns owned by userID, newest first.
func (s *CampaignService) ListCampaigns(ctx context.Context, userID string) ([]*ent.Campaign, error) {
	cs, err := s.client.Campaign.Query().
		Where(campaign.OwnerID(userID)).
		Order(ent.Desc(campaign.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return cs, nil
}

// UpdateCampaign applies a partial update.
func (s *CampaignService) UpdateCampaign(httpCtx context.Context, userID, campaignID string, req models.UpdateCampaignRequest) (*ent.Campaign, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ownership check first; UpdateOneID alone would leak existence.
	if _, err := s.GetCampaign(ctx, userID, campaignID); err != nil {
		return nil, err
	}

	update := s.client.Campaign.UpdateOneID(campaignID)
	if req.Name != nil {
		if *req.Name == "" {
			return nil, NewValidationError("name", "cannot be empty")
		}
		update.SetName(*req.Name)
	}
	if req.Description != nil {
		update.SetDescription(*req.Description)
	}

	c, err := update.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	return c, nil
}

// DeleteCampaign removes a campaign and, via cascades, its resources,
// entities, and derived rows.
func (s *CampaignService) DeleteCampaign(httpCtx context.Context, userID, campaignID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.GetCampaign(ctx, userID, campaignID); err != nil {
		return err
	}
	if err := s.client.Campaign.DeleteOneID(campaignID).Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return nil
}

// DeleteAllCampaigns removes every campaign owned by userID and returns the
// deleted count.
func (s *CampaignService) DeleteAllCampaigns(httpCtx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.client.Campaign.Delete().
		Where(campaign.OwnerID(userID)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete campaigns: %w", err)
	}
	return n, nil
}
