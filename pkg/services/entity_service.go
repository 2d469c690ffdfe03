package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/entity"
	"github.com/loresmith/loresmith/ent/entityrelationship"
	"github.com/loresmith/loresmith/pkg/models"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify normalizes an entity name: lowercase, non-alphanumerics collapsed
// to single underscores, trimmed.
func Slugify(name string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}

// EntityID builds the tenant-scoped entity id "<campaignId>_<slug>".
func EntityID(campaignID, name string) string {
	return campaignID + "_" + Slugify(name)
}

// NormalizeEntityID guarantees the campaign prefix on an entity id,
// prepending it when missing.
func NormalizeEntityID(campaignID, id string) string {
	if strings.HasPrefix(id, campaignID+"_") {
		return id
	}
	return campaignID + "_" + id
}

// EntityService manages knowledge graph entities and relationships.
type EntityService struct {
	client *ent.Client
}

// NewEntityService creates a new EntityService.
func NewEntityService(client *ent.Client) *EntityService {
	return &EntityService{client: client}
}

// EntityUpsert is one entity candidate from the projector.
type EntityUpsert struct {
	CampaignID string
	Name       string
	EntityType string
	Content    string
	Metadata   map[string]any
}

// UpsertEntity creates the entity or merges into the existing row on
// (campaignID, slug) collision. Merging keeps existing metadata keys and
// overwrites with the newer non-nil values; content is replaced only when
// the new value is non-empty. The bool reports whether a new row was
// created.
func (s *EntityService) UpsertEntity(httpCtx context.Context, up EntityUpsert) (*ent.Entity, bool, error) {
	if up.Name == "" {
		return nil, false, NewValidationError("name", "required")
	}
	slug := Slugify(up.Name)
	if slug == "" {
		return nil, false, NewValidationError("name", "must contain at least one alphanumeric character")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	metadata := up.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if _, ok := metadata["shardStatus"]; !ok {
		metadata["shardStatus"] = models.ShardStatusStaging
	}

	existing, err := s.client.Entity.Query().
		Where(entity.CampaignID(up.CampaignID), entity.Slug(slug)).
		Only(ctx)
	if err == nil {
		merged := mergeMetadata(existing.Metadata, metadata)
		update := existing.Update().
			SetEntityType(up.EntityType).
			SetMetadata(merged)
		if up.Content != "" {
			update.SetContent(up.Content)
		}
		e, err := update.Save(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("failed to merge entity %s: %w", existing.ID, err)
		}
		return e, false, nil
	}
	if !ent.IsNotFound(err) {
		return nil, false, fmt.Errorf("failed to look up entity: %w", err)
	}

	e, err := s.client.Entity.Create().
		SetID(up.CampaignID + "_" + slug).
		SetCampaignID(up.CampaignID).
		SetSlug(slug).
		SetEntityType(up.EntityType).
		SetName(up.Name).
		SetContent(up.Content).
		SetMetadata(metadata).
		Save(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create entity: %w", err)
	}
	return e, true, nil
}

// mergeMetadata overlays newer values onto existing metadata. Existing keys
// survive unless the newer map carries a non-nil replacement.
func mergeMetadata(existing, newer map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(newer))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range newer {
		if v == nil {
			continue
		}
		merged[k] = v
	}
	return merged
}

// GetEntity returns one entity by id within a campaign.
func (s *EntityService) GetEntity(ctx context.Context, campaignID, entityID string) (*ent.Entity, error) {
	e, err := s.client.Entity.Query().
		Where(entity.ID(entityID), entity.CampaignID(campaignID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return e, nil
}

// ListEntities returns all entities of a campaign.
func (s *EntityService) ListEntities(ctx context.Context, campaignID string) ([]*ent.Entity, error) {
	es, err := s.client.Entity.Query().
		Where(entity.CampaignID(campaignID)).
		Order(ent.Asc(entity.FieldName)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return es, nil
}

// ExistsEntity reports whether an entity id exists in the campaign.
func (s *EntityService) ExistsEntity(ctx context.Context, campaignID, entityID string) (bool, error) {
	exists, err := s.client.Entity.Query().
		Where(entity.ID(entityID), entity.CampaignID(campaignID)).
		Exist(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check entity existence: %w", err)
	}
	return exists, nil
}

// SetShardStatus flips an entity's review state (staging/accepted/rejected).
// Rejection is a metadata flag, never a delete.
func (s *EntityService) SetShardStatus(httpCtx context.Context, campaignID, entityID, status string) (*ent.Entity, error) {
	switch status {
	case models.ShardStatusStaging, models.ShardStatusAccepted, models.ShardStatusRejected:
	default:
		return nil, NewValidationError("status", "must be staging, accepted, or rejected")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e, err := s.GetEntity(ctx, campaignID, entityID)
	if err != nil {
		return nil, err
	}
	metadata := mergeMetadata(e.Metadata, map[string]any{"shardStatus": status})
	if status == models.ShardStatusRejected {
		metadata["rejected"] = true
	}
	updated, err := e.Update().SetMetadata(metadata).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to set shard status: %w", err)
	}
	return updated, nil
}

// DeleteEntity physically removes an entity. Only reachable through the
// explicit delete tool; review rejections go through SetShardStatus.
func (s *EntityService) DeleteEntity(httpCtx context.Context, campaignID, entityID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e, err := s.GetEntity(ctx, campaignID, entityID)
	if err != nil {
		return err
	}
	if err := s.client.Entity.DeleteOne(e).Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

// RelationshipUpsert is one relationship candidate from the projector.
type RelationshipUpsert struct {
	CampaignID       string
	FromEntityID     string
	ToEntityID       string
	RelationshipType string
	Strength         float64
	Metadata         map[string]any
}

// UpsertRelationship creates or updates the edge identified by
// (campaignID, from, to, type). The type is normalized into the closed
// vocabulary before writing.
func (s *EntityService) UpsertRelationship(httpCtx context.Context, up RelationshipUpsert) (*ent.EntityRelationship, error) {
	if up.FromEntityID == "" || up.ToEntityID == "" {
		return nil, NewValidationError("entity_ids", "both endpoints required")
	}
	relType := models.NormalizeRelationshipType(up.RelationshipType)
	strength := up.Strength
	if strength <= 0 || strength > 1 {
		strength = 0.5
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	metadata := up.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if _, ok := metadata["shardStatus"]; !ok {
		metadata["shardStatus"] = models.ShardStatusStaging
	}

	existing, err := s.client.EntityRelationship.Query().
		Where(
			entityrelationship.CampaignID(up.CampaignID),
			entityrelationship.FromEntityID(up.FromEntityID),
			entityrelationship.ToEntityID(up.ToEntityID),
			entityrelationship.RelationshipType(relType),
		).
		Only(ctx)
	if err == nil {
		r, err := existing.Update().
			SetStrength(strength).
			SetMetadata(mergeMetadata(existing.Metadata, metadata)).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to update relationship: %w", err)
		}
		return r, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up relationship: %w", err)
	}

	r, err := s.client.EntityRelationship.Create().
		SetID(uuid.New().String()).
		SetCampaignID(up.CampaignID).
		SetFromEntityID(up.FromEntityID).
		SetToEntityID(up.ToEntityID).
		SetRelationshipType(relType).
		SetStrength(strength).
		SetMetadata(metadata).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create relationship: %w", err)
	}
	return r, nil
}

// ListRelationships returns all relationships of a campaign.
func (s *EntityService) ListRelationships(ctx context.Context, campaignID string) ([]*ent.EntityRelationship, error) {
	rs, err := s.client.EntityRelationship.Query().
		Where(entityrelationship.CampaignID(campaignID)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	return rs, nil
}

// DeleteRelationship physically removes an edge (explicit tool path only).
func (s *EntityService) DeleteRelationship(httpCtx context.Context, campaignID, relationshipID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := s.client.EntityRelationship.Delete().
		Where(
			entityrelationship.ID(relationshipID),
			entityrelationship.CampaignID(campaignID),
		).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete relationship: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
