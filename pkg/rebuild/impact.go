// Package rebuild implements the graph rebuild orchestrator: changelog
// impact scoring, the per-campaign impact accumulator, threshold-triggered
// full/partial rebuild scheduling, the rebuild pipeline itself, and the
// overlay projection for read-time "current" world state.
package rebuild

import (
	"github.com/loresmith/loresmith/pkg/models"
)

// Impact weights per change type.
const (
	weightEntityDeleted       = 3.0
	weightEntityModified      = 1.5
	weightRelationshipChanged = 1.0
	weightNewEntity           = 1.2
)

// ImportanceLookup resolves an entity's importance score in [0,100].
// Returns false when no score is known.
type ImportanceLookup func(entityID string) (float64, bool)

// ComputeImpact scores one changelog payload.
//
// With an importance lookup, each update contributes
// weight × (importance/100); relationship updates use the average importance
// of both endpoints and are additionally scaled by 1 + 0.5·avgImp/100.
// Without a lookup the score falls back to weighted counts.
func ComputeImpact(payload models.ChangelogPayload, lookup ImportanceLookup) float64 {
	if lookup == nil {
		return 1.0*float64(len(payload.EntityUpdates)) +
			1.5*float64(len(payload.RelationshipUpdates)) +
			1.2*float64(len(payload.NewEntities))
	}

	score := 0.0
	for _, up := range payload.EntityUpdates {
		weight := weightEntityModified
		if up.ChangeType == models.ChangeEntityDeleted {
			weight = weightEntityDeleted
		}
		score += weight * importanceOrDefault(lookup, up.EntityID) / 100
	}
	for _, rel := range payload.RelationshipUpdates {
		avgImp := (importanceOrDefault(lookup, rel.FromEntityID) +
			importanceOrDefault(lookup, rel.ToEntityID)) / 2
		score += weightRelationshipChanged * (avgImp / 100) * (1 + 0.5*avgImp/100)
	}
	for range payload.NewEntities {
		// New entities have no computed importance yet; they score at the default.
		score += weightNewEntity * defaultImportance / 100
	}
	return score
}

// defaultImportance stands in for entities without a computed score.
const defaultImportance = 50.0

func importanceOrDefault(lookup ImportanceLookup, entityID string) float64 {
	if score, ok := lookup(entityID); ok {
		return score
	}
	return defaultImportance
}

// AffectedEntityIDs returns the distinct entity ids a payload touches, in
// first-seen order.
func AffectedEntityIDs(payload models.ChangelogPayload) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, up := range payload.EntityUpdates {
		add(up.EntityID)
	}
	for _, rel := range payload.RelationshipUpdates {
		add(rel.FromEntityID)
		add(rel.ToEntityID)
	}
	for _, ne := range payload.NewEntities {
		add(ne.EntityID)
	}
	return out
}
