package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/pkg/services"
)

// communitiesFromInserts lifts detector output into ent rows for functions
// that consume persisted communities.
func communitiesFromInserts(t *testing.T, inserts []services.CommunityInsert) []*ent.Community {
	t.Helper()
	out := make([]*ent.Community, 0, len(inserts))
	for _, in := range inserts {
		out = append(out, &ent.Community{
			ID:         in.ID,
			CampaignID: in.CampaignID,
			Level:      in.Level,
			EntityIds:  in.EntityIDs,
		})
	}
	return out
}

func TestHierarchyScores(t *testing.T) {
	g := triangleAndPair()
	communities := []*ent.Community{
		{ID: "c-0", Level: 0, EntityIds: []string{"a", "b", "c"}},
		{ID: "c-1", Level: 1, EntityIds: []string{"a", "b"}},
		// d, e belong to no community.
	}

	scores := HierarchyScores(g, communities)

	// No community ⇒ fixed 50.
	assert.Equal(t, 50.0, scores["d"])
	assert.Equal(t, 50.0, scores["e"])

	// a and b average levels (0+1)/2 = 0.5, c averages 0; normalized
	// within the campaign: c → 0, a/b → 100.
	assert.Equal(t, 0.0, scores["c"])
	assert.Equal(t, 100.0, scores["a"])
	assert.Equal(t, scores["a"], scores["b"])
}

func TestHierarchyScoresAllUngrouped(t *testing.T) {
	g := triangleAndPair()
	scores := HierarchyScores(g, nil)
	for _, id := range g.Nodes {
		assert.Equal(t, 50.0, scores[id])
	}
}
