package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Shard holds the schema definition for the Shard entity: one structured RPG
// primitive extracted from a source document. Immutable after creation;
// superseded by newer shards from later extractions.
type Shard struct {
	ent.Schema
}

// Fields of the Shard.
func (Shard) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("shard_id").
			Unique().
			Immutable(),
		field.String("campaign_id").
			Immutable(),
		field.String("resource_id").
			Immutable(),
		field.String("type").
			Immutable().
			Comment("Structured-content type (monster, npc, spell, ...)"),
		field.Text("content").
			Immutable().
			Comment("Canonical JSON for the primitive"),
		field.JSON("metadata", map[string]any{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the Shard.
func (Shard) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("campaign_id"),
		index.Fields("campaign_id", "resource_id"),
		index.Fields("campaign_id", "type"),
	}
}
