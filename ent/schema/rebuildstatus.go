package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RebuildStatus holds the schema definition for the RebuildStatus entity:
// one scheduled or executed graph rebuild. Doubles as the rebuild queue —
// pending rows are claimed by workers with FOR UPDATE SKIP LOCKED.
type RebuildStatus struct {
	ent.Schema
}

// Fields of the RebuildStatus.
func (RebuildStatus) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("rebuild_id").
			Unique().
			Immutable(),
		field.String("campaign_id").
			Immutable(),
		field.Enum("rebuild_type").
			Values("full", "partial"),
		field.Enum("status").
			Values("pending", "in_progress", "completed", "failed", "cancelled").
			Default("pending"),
		field.JSON("affected_entity_ids", []string{}).
			Optional().
			Comment("Affected entity union for partial rebuilds"),
		field.JSON("changelog_ids", []string{}).
			Optional().
			Comment("Snapshot of unapplied changelog entries, taken at start"),
		field.Int("attempt").
			Default(0),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.Time("last_heartbeat_at").
			Optional().
			Nillable(),
		field.String("error_message").
			Optional().
			Nillable(),
		field.JSON("metadata", map[string]any{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the RebuildStatus.
func (RebuildStatus) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("campaign_id", "status"),
		index.Fields("status", "created_at"),
	}
}
