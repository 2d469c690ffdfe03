package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Entity holds the schema definition for the Entity entity: one node of a
// campaign's knowledge graph. The id is "<campaignId>_<slug>" so every id is
// tenant-scoped by construction.
type Entity struct {
	ent.Schema
}

// Fields of the Entity.
func (Entity) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("entity_id").
			Unique().
			Immutable(),
		field.String("campaign_id").
			Immutable(),
		field.String("slug").
			Immutable().
			Comment("Normalized name; unique within the campaign"),
		field.String("entity_type").
			Comment("Structured-content type"),
		field.String("name"),
		field.Text("content").
			Optional(),
		field.JSON("metadata", map[string]any{}).
			Optional().
			Comment("shardStatus, ignored, rejected, importanceScore, importance override"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Entity.
func (Entity) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("campaign", Campaign.Type).
			Ref("entities").
			Field("campaign_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Entity.
func (Entity) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("campaign_id", "slug").
			Unique(),
		index.Fields("campaign_id", "entity_type"),
	}
}
