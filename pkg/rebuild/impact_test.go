package rebuild

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loresmith/loresmith/pkg/models"
)

func TestComputeImpact_FallbackCounts(t *testing.T) {
	payload := models.ChangelogPayload{
		Timestamp: 1,
		EntityUpdates: []models.ChangelogEntityUpdate{
			{EntityID: "c1_a", ChangeType: models.ChangeEntityModified},
			{EntityID: "c1_b", ChangeType: models.ChangeEntityDeleted},
		},
		RelationshipUpdates: []models.ChangelogRelationshipUpdate{
			{FromEntityID: "c1_a", ToEntityID: "c1_b"},
		},
		NewEntities: []models.ChangelogNewEntity{
			{EntityID: "c1_c"},
		},
	}

	// 1·2 + 1.5·1 + 1.2·1 = 4.7 without an importance service.
	assert.InDelta(t, 4.7, ComputeImpact(payload, nil), 1e-9)
}

func TestComputeImpact_ImportanceWeighted(t *testing.T) {
	scores := map[string]float64{"c1_a": 100, "c1_b": 50}
	lookup := func(id string) (float64, bool) {
		s, ok := scores[id]
		return s, ok
	}

	deletion := models.ChangelogPayload{
		Timestamp: 1,
		EntityUpdates: []models.ChangelogEntityUpdate{
			{EntityID: "c1_a", ChangeType: models.ChangeEntityDeleted},
		},
	}
	// 3.0 · (100/100)
	assert.InDelta(t, 3.0, ComputeImpact(deletion, lookup), 1e-9)

	modification := models.ChangelogPayload{
		Timestamp: 1,
		EntityUpdates: []models.ChangelogEntityUpdate{
			{EntityID: "c1_b", ChangeType: models.ChangeEntityModified},
		},
	}
	// 1.5 · (50/100)
	assert.InDelta(t, 0.75, ComputeImpact(modification, lookup), 1e-9)

	relationship := models.ChangelogPayload{
		Timestamp: 1,
		RelationshipUpdates: []models.ChangelogRelationshipUpdate{
			{FromEntityID: "c1_a", ToEntityID: "c1_b"},
		},
	}
	// avg = 75; 1.0 · 0.75 · (1 + 0.375)
	assert.InDelta(t, 0.75*1.375, ComputeImpact(relationship, lookup), 1e-9)

	// Unknown entities fall back to importance 50.
	unknown := models.ChangelogPayload{
		Timestamp: 1,
		EntityUpdates: []models.ChangelogEntityUpdate{
			{EntityID: "c1_zzz", ChangeType: models.ChangeEntityModified},
		},
	}
	assert.InDelta(t, 1.5*0.5, ComputeImpact(unknown, lookup), 1e-9)
}

func TestComputeImpact_DeletionOutweighsModification(t *testing.T) {
	lookup := func(string) (float64, bool) { return 50, true }

	del := models.ChangelogPayload{EntityUpdates: []models.ChangelogEntityUpdate{
		{EntityID: "x", ChangeType: models.ChangeEntityDeleted}}}
	mod := models.ChangelogPayload{EntityUpdates: []models.ChangelogEntityUpdate{
		{EntityID: "x", ChangeType: models.ChangeEntityModified}}}

	assert.Greater(t, ComputeImpact(del, lookup), ComputeImpact(mod, lookup))
}

func TestAffectedEntityIDs(t *testing.T) {
	payload := models.ChangelogPayload{
		EntityUpdates: []models.ChangelogEntityUpdate{
			{EntityID: "c1_a"}, {EntityID: "c1_b"},
		},
		RelationshipUpdates: []models.ChangelogRelationshipUpdate{
			{FromEntityID: "c1_a", ToEntityID: "c1_c"},
		},
		NewEntities: []models.ChangelogNewEntity{
			{EntityID: "c1_d"}, {EntityID: "c1_a"},
		},
	}

	assert.Equal(t, []string{"c1_a", "c1_b", "c1_c", "c1_d"}, AffectedEntityIDs(payload))
}

func TestNormalizePayloadPrefixesIDs(t *testing.T) {
	payload := models.ChangelogPayload{
		EntityUpdates: []models.ChangelogEntityUpdate{{EntityID: "goblin"}},
		RelationshipUpdates: []models.ChangelogRelationshipUpdate{
			{FromEntityID: "goblin", ToEntityID: "c1_keep"},
		},
		NewEntities: []models.ChangelogNewEntity{{EntityID: "ogre"}},
	}

	normalizePayload("c1", &payload)

	assert.Equal(t, "c1_goblin", payload.EntityUpdates[0].EntityID)
	assert.Equal(t, "c1_goblin", payload.RelationshipUpdates[0].FromEntityID)
	assert.Equal(t, "c1_keep", payload.RelationshipUpdates[0].ToEntityID)
	assert.Equal(t, "c1_ogre", payload.NewEntities[0].EntityID)
}
