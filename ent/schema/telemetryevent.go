package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TelemetryEvent holds the schema definition for the TelemetryEvent entity:
// one operational measurement (rebuild duration, community count, extraction
// batch size) kept for the ops dashboard.
type TelemetryEvent struct {
	ent.Schema
}

// Fields of the TelemetryEvent.
func (TelemetryEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("telemetry_id").
			Unique().
			Immutable(),
		field.String("campaign_id").
			Optional().
			Immutable(),
		field.String("kind").
			Immutable().
			Comment("e.g. rebuild.completed, extraction.batch"),
		field.JSON("attributes", map[string]any{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the TelemetryEvent.
func (TelemetryEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("kind", "created_at"),
		index.Fields("campaign_id", "created_at"),
	}
}
