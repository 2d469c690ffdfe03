package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/entity"
	"github.com/loresmith/loresmith/ent/entityrelationship"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/models"
)

// Loader builds analytics graphs from the relational store. It loads only
// ids, edges, and filter-relevant metadata — never entity content.
type Loader struct {
	client *ent.Client
	cfg    *config.GraphConfig
}

// NewLoader creates a Loader.
func NewLoader(client *ent.Client, cfg *config.GraphConfig) *Loader {
	return &Loader{client: client, cfg: cfg}
}

// LoadOptions tunes the exclusion filters.
type LoadOptions struct {
	// IncludeStaging keeps relationships still in shardStatus=staging.
	// Entities in staging are always included; only rejected/ignored ones
	// are filtered.
	IncludeStaging bool
}

// Load builds the campaign's graph, applying the exclusion filters and the
// memory guardrails. Exceeding a cap fails with *LimitError before any
// algorithm runs.
func (l *Loader) Load(ctx context.Context, campaignID string, opts LoadOptions) (*Graph, error) {
	entities, err := l.client.Entity.Query().
		Where(entity.CampaignID(campaignID)).
		Select(entity.FieldID, entity.FieldMetadata).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}

	included := make(map[string]bool, len(entities))
	var nodeIDs []string
	for _, e := range entities {
		if excludedEntity(e.Metadata) {
			continue
		}
		included[e.ID] = true
		nodeIDs = append(nodeIDs, e.ID)
	}

	relationships, err := l.client.EntityRelationship.Query().
		Where(entityrelationship.CampaignID(campaignID)).
		Select(
			entityrelationship.FieldFromEntityID,
			entityrelationship.FieldToEntityID,
			entityrelationship.FieldStrength,
			entityrelationship.FieldMetadata,
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load relationships: %w", err)
	}

	var edges []Edge
	for _, r := range relationships {
		if excludedRelationship(r.Metadata, opts.IncludeStaging) {
			continue
		}
		// Edges touching an excluded entity go with it.
		if !included[r.FromEntityID] || !included[r.ToEntityID] {
			continue
		}
		edges = append(edges, Edge{
			From:     r.FromEntityID,
			To:       r.ToEntityID,
			Strength: r.Strength,
		})
	}

	if err := l.checkLimits(campaignID, len(nodeIDs), len(edges)); err != nil {
		return nil, err
	}
	return NewGraph(nodeIDs, edges), nil
}

// checkLimits enforces the entity/relationship caps and the memory estimate
// before anything is materialized further.
func (l *Loader) checkLimits(campaignID string, entities, relationships int) error {
	if entities > l.cfg.MaxEntities {
		return &LimitError{Reason: fmt.Sprintf(
			"campaign %s has %d entities, cap is %d", campaignID, entities, l.cfg.MaxEntities)}
	}
	if relationships > l.cfg.MaxRelationships {
		return &LimitError{Reason: fmt.Sprintf(
			"campaign %s has %d relationships, cap is %d", campaignID, relationships, l.cfg.MaxRelationships)}
	}

	estMB := EstimateMemoryMB(entities, relationships)
	if estMB > l.cfg.MemoryFailMB {
		return &LimitError{Reason: fmt.Sprintf(
			"estimated %.1f MB exceeds the %.0f MB limit (%d entities, %d relationships)",
			estMB, l.cfg.MemoryFailMB, entities, relationships)}
	}
	if estMB > l.cfg.MemoryWarnMB {
		slog.Warn("Graph memory estimate approaching limit",
			"campaign_id", campaignID,
			"estimated_mb", estMB,
			"entities", entities,
			"relationships", relationships)
	}
	return nil
}

// excludedEntity applies the entity filter: rejected review state, explicit
// rejected flag, or ignored flag.
func excludedEntity(metadata map[string]any) bool {
	if metadata == nil {
		return false
	}
	if status, _ := metadata["shardStatus"].(string); status == models.ShardStatusRejected {
		return true
	}
	if rejected, _ := metadata["rejected"].(bool); rejected {
		return true
	}
	if ignored, _ := metadata["ignored"].(bool); ignored {
		return true
	}
	return false
}

// excludedRelationship applies the edge filter; staging edges are excluded
// unless explicitly included.
func excludedRelationship(metadata map[string]any, includeStaging bool) bool {
	if metadata == nil {
		return false
	}
	if rejected, _ := metadata["rejected"].(bool); rejected {
		return true
	}
	if ignored, _ := metadata["ignored"].(bool); ignored {
		return true
	}
	if status, _ := metadata["shardStatus"].(string); status == models.ShardStatusRejected {
		return true
	}
	if !includeStaging {
		if status, _ := metadata["shardStatus"].(string); status == models.ShardStatusStaging {
			return true
		}
	}
	return false
}
