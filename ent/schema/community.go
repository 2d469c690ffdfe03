package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Community holds the schema definition for the Community entity: one group
// of a hierarchical partition discovered by community detection. Level 0 is
// coarsest; children point at their parent community.
type Community struct {
	ent.Schema
}

// Fields of the Community.
func (Community) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("community_id").
			Unique().
			Immutable(),
		field.String("campaign_id").
			Immutable(),
		field.Int("level").
			Default(0),
		field.String("parent_community_id").
			Optional().
			Nillable(),
		field.JSON("entity_ids", []string{}),
		field.JSON("metadata", map[string]any{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the Community.
func (Community) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("campaign_id", "level"),
		index.Fields("parent_community_id"),
	}
}
