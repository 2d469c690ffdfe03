package services

import (
	"context"
	"fmt"
	"time"

	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/shard"
)

// ShardService persists shards produced by the extraction pipeline.
type ShardService struct {
	client *ent.Client
}

// NewShardService creates a new ShardService.
func NewShardService(client *ent.Client) *ShardService {
	return &ShardService{client: client}
}

// ShardInsert is one validated shard candidate.
type ShardInsert struct {
	ID         string
	CampaignID string
	ResourceID string
	Type       string
	Content    string
	Metadata   map[string]any
}

// CreateBatch inserts a batch of shards in one transaction. Shards are
// immutable after creation.
func (s *ShardService) CreateBatch(httpCtx context.Context, inserts []ShardInsert) ([]*ent.Shard, error) {
	if len(inserts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	builders := make([]*ent.ShardCreate, 0, len(inserts))
	for _, in := range inserts {
		builders = append(builders, tx.Shard.Create().
			SetID(in.ID).
			SetCampaignID(in.CampaignID).
			SetResourceID(in.ResourceID).
			SetType(in.Type).
			SetContent(in.Content).
			SetMetadata(in.Metadata))
	}
	created, err := tx.Shard.CreateBulk(builders...).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to insert shard batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit shard batch: %w", err)
	}
	return created, nil
}

// ListByResource returns the shards extracted from one resource.
func (s *ShardService) ListByResource(ctx context.Context, campaignID, resourceID string) ([]*ent.Shard, error) {
	ss, err := s.client.Shard.Query().
		Where(shard.CampaignID(campaignID), shard.ResourceID(resourceID)).
		Order(ent.Asc(shard.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list shards: %w", err)
	}
	return ss, nil
}

// CountByCampaign returns the number of shards in a campaign.
func (s *ShardService) CountByCampaign(ctx context.Context, campaignID string) (int, error) {
	n, err := s.client.Shard.Query().
		Where(shard.CampaignID(campaignID)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count shards: %w", err)
	}
	return n, nil
}
