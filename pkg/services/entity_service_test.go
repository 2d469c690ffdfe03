package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Goblin", "goblin"},
		{"spaces", "Lady Moira Blackwood", "lady_moira_blackwood"},
		{"punctuation", "The Dragon's Lair!", "the_dragon_s_lair"},
		{"collapses runs", "a  --  b", "a_b"},
		{"trims edges", "  ~Ember~  ", "ember"},
		{"digits kept", "Tower 2", "tower_2"},
		{"empty after normalization", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestEntityID(t *testing.T) {
	assert.Equal(t, "c1_lady_moira", EntityID("c1", "Lady Moira"))
}

func TestNormalizeEntityID(t *testing.T) {
	assert.Equal(t, "c1_goblin", NormalizeEntityID("c1", "goblin"))
	assert.Equal(t, "c1_goblin", NormalizeEntityID("c1", "c1_goblin"))
}

func TestMergeMetadata(t *testing.T) {
	existing := map[string]any{
		"shardStatus": "accepted",
		"confidence":  0.8,
		"sourceRef":   "doc-1",
	}
	newer := map[string]any{
		"confidence": 0.9,
		"sourceRef":  nil, // nil values never overwrite
		"ignored":    false,
	}

	merged := mergeMetadata(existing, newer)

	assert.Equal(t, "accepted", merged["shardStatus"])
	assert.Equal(t, 0.9, merged["confidence"])
	assert.Equal(t, "doc-1", merged["sourceRef"])
	assert.Equal(t, false, merged["ignored"])
}
