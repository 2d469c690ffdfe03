package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/services"
)

// Projector turns parsed structured content into knowledge-graph entities
// and relationships.
type Projector struct {
	entities *services.EntityService
}

// NewProjector creates a Projector.
func NewProjector(entities *services.EntityService) *Projector {
	return &Projector{entities: entities}
}

// ProjectionResult is the outcome of projecting one batch, shaped so the
// caller can record it straight into the changelog.
type ProjectionResult struct {
	NewEntities         []models.ChangelogNewEntity
	EntityUpdates       []models.ChangelogEntityUpdate
	RelationshipUpdates []models.ChangelogRelationshipUpdate

	// Dropped lists skipped items with reasons (hidden diagnostic).
	Dropped []string
}

// Empty reports whether the projection produced no graph changes.
func (r *ProjectionResult) Empty() bool {
	return len(r.NewEntities) == 0 && len(r.EntityUpdates) == 0 && len(r.RelationshipUpdates) == 0
}

// rawRelationship is the relationship shape items may embed.
type rawRelationship struct {
	TargetID string  `json:"target_id"`
	Target   string  `json:"target"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// Project upserts one entity per item (id <campaignId>_<slug(name)>) and one
// relationship per embedded relationship whose target resolves to an entity
// in this batch or an existing row. Unresolved targets are dropped with a
// diagnostic. Everything lands in shardStatus=staging until approved.
func (p *Projector) Project(ctx context.Context, campaignID string, parsed *ParsedContent) (*ProjectionResult, error) {
	result := &ProjectionResult{}

	// Pass 1: entities, building the batch id set relationships resolve
	// against.
	batchIDs := make(map[string]bool)
	type pendingRel struct {
		fromID string
		rel    rawRelationship
	}
	var rels []pendingRel

	for contentType, items := range parsed.Items {
		for i, item := range items {
			name, _ := item["name"].(string)
			if name == "" {
				result.Dropped = append(result.Dropped,
					fmt.Sprintf("%s[%d]: missing name", contentType, i))
				continue
			}

			content, err := json.Marshal(item)
			if err != nil {
				result.Dropped = append(result.Dropped,
					fmt.Sprintf("%s[%d]: unserializable: %v", contentType, i, err))
				continue
			}

			metadata := map[string]any{
				"shardStatus": models.ShardStatusStaging,
			}
			if c, ok := item["confidence"].(float64); ok {
				metadata["confidence"] = c
			}

			entity, created, err := p.entities.UpsertEntity(ctx, services.EntityUpsert{
				CampaignID: campaignID,
				Name:       name,
				EntityType: contentType,
				Content:    string(content),
				Metadata:   metadata,
			})
			if err != nil {
				if services.IsValidationError(err) {
					result.Dropped = append(result.Dropped,
						fmt.Sprintf("%s[%d]: %v", contentType, i, err))
					continue
				}
				return nil, fmt.Errorf("failed to project entity %q: %w", name, err)
			}

			batchIDs[entity.ID] = true
			if created {
				result.NewEntities = append(result.NewEntities, models.ChangelogNewEntity{
					EntityID:   entity.ID,
					EntityType: contentType,
				})
			} else {
				result.EntityUpdates = append(result.EntityUpdates, models.ChangelogEntityUpdate{
					EntityID:   entity.ID,
					ChangeType: models.ChangeEntityModified,
				})
			}

			for _, raw := range extractRelationships(item) {
				rels = append(rels, pendingRel{fromID: entity.ID, rel: raw})
			}
		}
	}

	// Pass 2: relationships, once the whole batch is known.
	for _, pr := range rels {
		targetID := p.resolveTarget(ctx, campaignID, pr.rel, batchIDs)
		if targetID == "" {
			result.Dropped = append(result.Dropped,
				fmt.Sprintf("relationship from %s: unresolved target %q",
					pr.fromID, firstNonEmpty(pr.rel.TargetID, pr.rel.Target)))
			continue
		}

		rel, err := p.entities.UpsertRelationship(ctx, services.RelationshipUpsert{
			CampaignID:       campaignID,
			FromEntityID:     pr.fromID,
			ToEntityID:       targetID,
			RelationshipType: pr.rel.Type,
			Strength:         pr.rel.Strength,
		})
		if err != nil {
			if services.IsValidationError(err) {
				result.Dropped = append(result.Dropped,
					fmt.Sprintf("relationship from %s: %v", pr.fromID, err))
				continue
			}
			return nil, fmt.Errorf("failed to project relationship: %w", err)
		}
		result.RelationshipUpdates = append(result.RelationshipUpdates, models.ChangelogRelationshipUpdate{
			FromEntityID:     rel.FromEntityID,
			ToEntityID:       rel.ToEntityID,
			RelationshipType: rel.RelationshipType,
		})
	}

	return result, nil
}

// resolveTarget maps a raw relationship target onto an entity id: batch
// members first, then existing rows. Bare names are slug-normalized into the
// campaign's id space before lookup.
func (p *Projector) resolveTarget(ctx context.Context, campaignID string, rel rawRelationship, batchIDs map[string]bool) string {
	candidates := []string{}
	if rel.TargetID != "" {
		candidates = append(candidates, services.NormalizeEntityID(campaignID, rel.TargetID))
	}
	if rel.Target != "" {
		candidates = append(candidates, services.EntityID(campaignID, rel.Target))
	}

	for _, id := range candidates {
		if batchIDs[id] {
			return id
		}
		exists, err := p.entities.ExistsEntity(ctx, campaignID, id)
		if err == nil && exists {
			return id
		}
	}
	return ""
}

// extractRelationships pulls the embedded relationships array out of an
// item, tolerating absent or malformed values.
func extractRelationships(item map[string]any) []rawRelationship {
	rawList, ok := item["relationships"].([]any)
	if !ok {
		return nil
	}
	var rels []rawRelationship
	for _, raw := range rawList {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		var rel rawRelationship
		if err := json.Unmarshal(data, &rel); err != nil {
			continue
		}
		if rel.TargetID == "" && rel.Target == "" {
			continue
		}
		rels = append(rels, rel)
	}
	return rels
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
