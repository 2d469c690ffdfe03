package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// EntityRelationship holds the schema definition for the EntityRelationship
// entity: one directed edge of a campaign's knowledge graph.
type EntityRelationship struct {
	ent.Schema
}

// Fields of the EntityRelationship.
func (EntityRelationship) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("relationship_id").
			Unique().
			Immutable(),
		field.String("campaign_id").
			Immutable(),
		field.String("from_entity_id"),
		field.String("to_entity_id"),
		field.String("relationship_type").
			Comment("Closed vocabulary; unknown types normalize to related_to"),
		field.Float("strength").
			Default(0.5).
			Comment("Edge weight in [0,1]"),
		field.JSON("metadata", map[string]any{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the EntityRelationship.
func (EntityRelationship) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("campaign_id"),
		index.Fields("campaign_id", "from_entity_id"),
		index.Fields("campaign_id", "to_entity_id"),
		index.Fields("campaign_id", "from_entity_id", "to_entity_id", "relationship_type").
			Unique(),
	}
}
