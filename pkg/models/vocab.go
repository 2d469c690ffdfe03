package models

// Structured-content vocabulary: the closed set of shard/entity types the AI
// search endpoint may return as top-level keys. "custom" is the escape hatch
// for primitives that fit no other type.
var StructuredContentTypes = []string{
	"monster", "npc", "spell", "item", "trap", "hazard", "condition",
	"vehicle", "env_effect", "hook", "plot_line", "quest", "scene",
	"location", "lair", "faction", "deity", "background", "feat",
	"subclass", "character", "character_sheet", "rule", "downtime",
	"table", "encounter_table", "treasure_table", "map", "handout",
	"puzzle", "timeline", "travel", "custom",
}

var structuredContentSet = func() map[string]bool {
	m := make(map[string]bool, len(StructuredContentTypes))
	for _, t := range StructuredContentTypes {
		m[t] = true
	}
	return m
}()

// IsStructuredContentType reports whether t is a known shard/entity type.
func IsStructuredContentType(t string) bool {
	return structuredContentSet[t]
}

// RelationshipGroup classifies relationship types for graph analytics.
type RelationshipGroup string

const (
	RelationshipGroupFamily         RelationshipGroup = "family"
	RelationshipGroupSocial         RelationshipGroup = "social"
	RelationshipGroupOrganizational RelationshipGroup = "organizational"
	RelationshipGroupSpatial        RelationshipGroup = "spatial"
	RelationshipGroupOwnership      RelationshipGroup = "ownership"
	RelationshipGroupNarrative      RelationshipGroup = "narrative"
)

// RelationshipDefault is the fallback for unknown relationship types.
const RelationshipDefault = "related_to"

// relationshipGroups maps each closed-vocabulary relationship type to its group.
var relationshipGroups = map[string]RelationshipGroup{
	"parent_of":           RelationshipGroupFamily,
	"child_of":            RelationshipGroupFamily,
	"sibling_of":          RelationshipGroupFamily,
	"married_to":          RelationshipGroupFamily,
	"related_to_by_blood": RelationshipGroupFamily,

	"allied_with": RelationshipGroupSocial,
	"enemy_of":    RelationshipGroupSocial,
	"rival_of":    RelationshipGroupSocial,
	"mentor_of":   RelationshipGroupSocial,
	"friend_of":   RelationshipGroupSocial,

	"member_of": RelationshipGroupOrganizational,
	"leader_of": RelationshipGroupOrganizational,
	"ruled_by":  RelationshipGroupOrganizational,

	"located_in": RelationshipGroupSpatial,
	"contains":   RelationshipGroupSpatial,
	"borders":    RelationshipGroupSpatial,

	"owns":     RelationshipGroupOwnership,
	"owned_by": RelationshipGroupOwnership,

	"related_to": RelationshipGroupNarrative,
	"appears_in": RelationshipGroupNarrative,
	"references": RelationshipGroupNarrative,
}

// NormalizeRelationshipType maps a raw relationship type to the closed
// vocabulary, falling back to related_to for anything unknown.
func NormalizeRelationshipType(t string) string {
	if _, ok := relationshipGroups[t]; ok {
		return t
	}
	return RelationshipDefault
}

// RelationshipGroupOf returns the group for a (normalized) relationship type.
func RelationshipGroupOf(t string) RelationshipGroup {
	if g, ok := relationshipGroups[t]; ok {
		return g
	}
	return RelationshipGroupNarrative
}

// Shard review states carried in entity/relationship metadata.
const (
	ShardStatusStaging  = "staging"
	ShardStatusAccepted = "accepted"
	ShardStatusRejected = "rejected"
)
