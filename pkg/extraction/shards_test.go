package extraction

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildShards(t *testing.T) {
	parsed := &ParsedContent{Items: map[string][]map[string]any{
		"monster": {
			{"name": "Goblin", "confidence": 0.9, "source_ref": "p.12"},
			{"name": "Ogre"},
		},
	}}
	now := time.UnixMilli(1700000000000)

	result := BuildShards(parsed, "c1", "r1", "bestiary.pdf", now)

	require.Len(t, result.Inserts, 2)
	assert.Empty(t, result.Rejected)

	for _, in := range result.Inserts {
		assert.Equal(t, "c1", in.CampaignID)
		assert.Equal(t, "r1", in.ResourceID)
		assert.Equal(t, "monster", in.Type)
		assert.True(t, strings.HasPrefix(in.ID, "r1_monster_1700000000000_"),
			"id %q must carry resource, type, and epoch", in.ID)

		// Content is the canonical JSON of the item.
		var item map[string]any
		require.NoError(t, json.Unmarshal([]byte(in.Content), &item))
		assert.NotEmpty(t, item["name"])
	}

	// Confidence defaults to 0.5 when absent.
	byName := map[string]map[string]any{}
	for _, in := range result.Inserts {
		var item map[string]any
		require.NoError(t, json.Unmarshal([]byte(in.Content), &item))
		byName[item["name"].(string)] = in.Metadata
	}
	assert.Equal(t, 0.9, byName["Goblin"]["confidence"])
	assert.Equal(t, 0.5, byName["Ogre"]["confidence"])
	assert.Equal(t, "p.12", byName["Goblin"]["sourceRef"])
}

func TestBuildShardsEmptyContent(t *testing.T) {
	result := BuildShards(&ParsedContent{Items: map[string][]map[string]any{}}, "c1", "r1", "doc", time.Now())
	assert.Empty(t, result.Inserts)
	assert.Empty(t, result.Rejected)
}

func TestBuildShardsUniqueIDs(t *testing.T) {
	items := make([]map[string]any, 20)
	for i := range items {
		items[i] = map[string]any{"name": "same"}
	}
	result := BuildShards(&ParsedContent{Items: map[string][]map[string]any{"npc": items}},
		"c1", "r1", "doc", time.Now())

	seen := map[string]bool{}
	for _, in := range result.Inserts {
		assert.False(t, seen[in.ID], "duplicate shard id %s", in.ID)
		seen[in.ID] = true
	}
}
