package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ExtractionTask holds the schema definition for the ExtractionTask entity:
// one queued entity-extraction run for a campaign resource. Workers claim
// pending rows with FOR UPDATE SKIP LOCKED; at most one task per
// (campaign_id, resource_id) is in flight at a time.
type ExtractionTask struct {
	ent.Schema
}

// Fields of the ExtractionTask.
func (ExtractionTask) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("task_id").
			Unique().
			Immutable(),
		field.String("username").
			Immutable().
			Comment("Owning user; notification routing target"),
		field.String("campaign_id").
			Immutable(),
		field.String("resource_id").
			Immutable(),
		field.String("resource_name").
			Immutable(),
		field.String("file_key").
			Immutable(),
		field.String("api_key_ref").
			Optional().
			Comment("Opaque reference to the caller's provider key; never the key itself"),
		field.Enum("status").
			Values("pending", "in_progress", "completed", "failed").
			Default("pending"),
		field.Int("attempt").
			Default(0),
		field.String("error_code").
			Optional().
			Nillable(),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Time("not_before").
			Optional().
			Nillable().
			Comment("Earliest claim time; set by retry backoff"),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.Time("last_heartbeat_at").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the ExtractionTask.
func (ExtractionTask) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "created_at"),
		index.Fields("campaign_id", "resource_id", "status"),
	}
}
