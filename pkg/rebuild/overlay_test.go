package rebuild

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loresmith/loresmith/pkg/models"
)

func TestReduceOverlay_LastWriteWins(t *testing.T) {
	payloads := []models.ChangelogPayload{
		{
			Timestamp:   1000,
			NewEntities: []models.ChangelogNewEntity{{EntityID: "c1_a", EntityType: "npc"}},
			RelationshipUpdates: []models.ChangelogRelationshipUpdate{
				{FromEntityID: "c1_a", ToEntityID: "c1_b", RelationshipType: "allied_with"},
			},
		},
		{
			Timestamp: 2000,
			EntityUpdates: []models.ChangelogEntityUpdate{
				{EntityID: "c1_a", ChangeType: models.ChangeEntityModified},
			},
			RelationshipUpdates: []models.ChangelogRelationshipUpdate{
				{FromEntityID: "c1_a", ToEntityID: "c1_b", RelationshipType: "enemy_of"},
			},
		},
		{
			Timestamp: 3000,
			EntityUpdates: []models.ChangelogEntityUpdate{
				{EntityID: "c1_a", ChangeType: models.ChangeEntityDeleted},
			},
		},
	}

	overlay := reduceOverlay(payloads)

	// The entity's latest state is the deletion from the last entry.
	assert.Equal(t, models.ChangeEntityDeleted, overlay.EntityState["c1_a"])
	// The relationship's latest type wins over the first.
	assert.Equal(t, "enemy_of", overlay.RelationshipState[RelationshipKey("c1_a", "c1_b")])
	// Creation is still visible alongside later updates.
	assert.Equal(t, "npc", overlay.NewEntities["c1_a"])
}

func TestReduceOverlay_Empty(t *testing.T) {
	overlay := reduceOverlay(nil)
	assert.Empty(t, overlay.EntityState)
	assert.Empty(t, overlay.RelationshipState)
	assert.Empty(t, overlay.NewEntities)
}
