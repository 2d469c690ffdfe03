package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// EntityImportance holds the schema definition for the EntityImportance
// entity: derived centrality scores for one entity, all normalized to [0,100].
type EntityImportance struct {
	ent.Schema
}

// Fields of the EntityImportance.
func (EntityImportance) Fields() []ent.Field {
	return []ent.Field{
		field.String("entity_id").
			Unique().
			Immutable(),
		field.String("campaign_id").
			Immutable(),
		field.Float("pagerank").
			Default(0),
		field.Float("betweenness_centrality").
			Default(0),
		field.Float("hierarchy_level").
			Default(50),
		field.Float("importance_score").
			Default(0).
			Comment("0.4*pagerank + 0.4*betweenness + 0.2*hierarchy, clamped to [0,100]"),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the EntityImportance.
func (EntityImportance) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("campaign_id"),
		index.Fields("campaign_id", "importance_score"),
	}
}
