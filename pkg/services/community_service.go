package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/community"
	"github.com/loresmith/loresmith/ent/communitysummary"
	"github.com/loresmith/loresmith/ent/entityimportance"
)

// CommunityService persists detected communities, their summaries, and
// entity importance rows. All of these are derived data: always safe to
// delete and regenerate.
type CommunityService struct {
	client *ent.Client
}

// NewCommunityService creates a new CommunityService.
func NewCommunityService(client *ent.Client) *CommunityService {
	return &CommunityService{client: client}
}

// CommunityInsert is one detected community ready for persistence. ID is
// pre-generated by the detector so child communities can reference their
// parent within the same batch; left empty, one is generated here.
type CommunityInsert struct {
	ID                string
	CampaignID        string
	Level             int
	ParentCommunityID string
	EntityIDs         []string
	Metadata          map[string]any
}

// ReplaceAll deletes every community for the campaign and inserts the new
// partition in one transaction. Orphaned summaries are removed with them.
func (s *CommunityService) ReplaceAll(httpCtx context.Context, campaignID string, inserts []CommunityInsert) ([]*ent.Community, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Community.Delete().
		Where(community.CampaignID(campaignID)).
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to delete existing communities: %w", err)
	}
	if _, err := tx.CommunitySummary.Delete().
		Where(communitysummary.CampaignID(campaignID)).
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to delete existing summaries: %w", err)
	}

	created, err := s.insertTx(ctx, tx, inserts)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit community replace: %w", err)
	}
	return created, nil
}

// ReplaceSubset deletes a specific set of communities and inserts their
// replacements (incremental update path). Summaries of deleted communities
// go with them.
func (s *CommunityService) ReplaceSubset(httpCtx context.Context, campaignID string, deleteIDs []string, inserts []CommunityInsert) ([]*ent.Community, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(deleteIDs) > 0 {
		if _, err := tx.Community.Delete().
			Where(
				community.CampaignID(campaignID),
				community.IDIn(deleteIDs...),
			).
			Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to delete affected communities: %w", err)
		}
		if _, err := tx.CommunitySummary.Delete().
			Where(communitysummary.CommunityIDIn(deleteIDs...)).
			Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to delete affected summaries: %w", err)
		}
	}

	created, err := s.insertTx(ctx, tx, inserts)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit community update: %w", err)
	}
	return created, nil
}

func (s *CommunityService) insertTx(ctx context.Context, tx *ent.Tx, inserts []CommunityInsert) ([]*ent.Community, error) {
	created := make([]*ent.Community, 0, len(inserts))
	for _, in := range inserts {
		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}
		builder := tx.Community.Create().
			SetID(id).
			SetCampaignID(in.CampaignID).
			SetLevel(in.Level).
			SetEntityIds(in.EntityIDs).
			SetMetadata(in.Metadata)
		if in.ParentCommunityID != "" {
			builder.SetParentCommunityID(in.ParentCommunityID)
		}
		c, err := builder.Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to insert community: %w", err)
		}
		created = append(created, c)
	}
	return created, nil
}

// ListCommunities returns all communities for a campaign ordered by level.
func (s *CommunityService) ListCommunities(ctx context.Context, campaignID string) ([]*ent.Community, error) {
	cs, err := s.client.Community.Query().
		Where(community.CampaignID(campaignID)).
		Order(ent.Asc(community.FieldLevel)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	return cs, nil
}

// SaveSummary upserts the summary for one community.
func (s *CommunityService) SaveSummary(httpCtx context.Context, communityID, campaignID string, level int, summaryText string, keyEntities []string) (*ent.CommunitySummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	existing, err := s.client.CommunitySummary.Query().
		Where(communitysummary.CommunityID(communityID)).
		Only(ctx)
	if err == nil {
		sum, err := existing.Update().
			SetSummaryText(summaryText).
			SetKeyEntities(keyEntities).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to update summary: %w", err)
		}
		return sum, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up summary: %w", err)
	}

	sum, err := s.client.CommunitySummary.Create().
		SetID(uuid.New().String()).
		SetCommunityID(communityID).
		SetCampaignID(campaignID).
		SetLevel(level).
		SetSummaryText(summaryText).
		SetKeyEntities(keyEntities).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary: %w", err)
	}
	return sum, nil
}

// ListSummaries returns all summaries for a campaign.
func (s *CommunityService) ListSummaries(ctx context.Context, campaignID string) ([]*ent.CommunitySummary, error) {
	sums, err := s.client.CommunitySummary.Query().
		Where(communitysummary.CampaignID(campaignID)).
		Order(ent.Asc(communitysummary.FieldLevel)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	return sums, nil
}

// ImportanceUpsert is one computed importance row.
type ImportanceUpsert struct {
	EntityID              string
	CampaignID            string
	PageRank              float64
	BetweennessCentrality float64
	HierarchyLevel        float64
	ImportanceScore       float64
}

// UpsertImportanceBatch writes importance rows for a campaign in one
// transaction, creating or updating per entity.
func (s *CommunityService) UpsertImportanceBatch(httpCtx context.Context, rows []ImportanceUpsert) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range rows {
		n, err := tx.EntityImportance.Update().
			Where(entityimportance.EntityID(row.EntityID)).
			SetPagerank(row.PageRank).
			SetBetweennessCentrality(row.BetweennessCentrality).
			SetHierarchyLevel(row.HierarchyLevel).
			SetImportanceScore(row.ImportanceScore).
			Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to update importance for %s: %w", row.EntityID, err)
		}
		if n > 0 {
			continue
		}
		if err := tx.EntityImportance.Create().
			SetEntityID(row.EntityID).
			SetCampaignID(row.CampaignID).
			SetPagerank(row.PageRank).
			SetBetweennessCentrality(row.BetweennessCentrality).
			SetHierarchyLevel(row.HierarchyLevel).
			SetImportanceScore(row.ImportanceScore).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert importance for %s: %w", row.EntityID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit importance batch: %w", err)
	}
	return nil
}

// GetImportance returns the importance row for one entity.
func (s *CommunityService) GetImportance(ctx context.Context, entityID string) (*ent.EntityImportance, error) {
	imp, err := s.client.EntityImportance.Query().
		Where(entityimportance.EntityID(entityID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get importance: %w", err)
	}
	return imp, nil
}

// ListImportance returns all importance rows for a campaign.
func (s *CommunityService) ListImportance(ctx context.Context, campaignID string) ([]*ent.EntityImportance, error) {
	imps, err := s.client.EntityImportance.Query().
		Where(entityimportance.CampaignID(campaignID)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list importance: %w", err)
	}
	return imps, nil
}
