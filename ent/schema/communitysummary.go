package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CommunitySummary holds the schema definition for the CommunitySummary
// entity. Fully derived; regenerated whenever community membership changes.
type CommunitySummary struct {
	ent.Schema
}

// Fields of the CommunitySummary.
func (CommunitySummary) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("summary_id").
			Unique().
			Immutable(),
		field.String("community_id"),
		field.String("campaign_id").
			Immutable(),
		field.Int("level").
			Default(0),
		field.Text("summary_text"),
		field.JSON("key_entities", []string{}).
			Optional(),
		field.JSON("metadata", map[string]any{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the CommunitySummary.
func (CommunitySummary) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("community_id").
			Unique(),
		index.Fields("campaign_id", "level"),
	}
}
