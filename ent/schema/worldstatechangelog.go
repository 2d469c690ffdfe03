package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// WorldStateChangelog holds the schema definition for the WorldStateChangelog
// entity: an append-only record of entity/relationship changes. Entries are
// totally ordered by (timestamp, seq) within a campaign and flipped to
// applied_to_graph by the rebuild orchestrator.
type WorldStateChangelog struct {
	ent.Schema
}

// Fields of the WorldStateChangelog.
func (WorldStateChangelog) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("changelog_id").
			Unique().
			Immutable(),
		field.Int64("seq").
			Immutable().
			Comment("Insertion order tiebreaker within a campaign"),
		field.String("campaign_id").
			Immutable(),
		field.String("campaign_session_id").
			Optional().
			Nillable().
			Immutable(),
		field.Int64("timestamp").
			Immutable().
			Comment("UTC epoch milliseconds"),
		field.JSON("payload", map[string]any{}).
			Immutable().
			Comment("{entity_updates[], relationship_updates[], new_entities[]}"),
		field.Float("impact_score").
			Default(0),
		field.Bool("applied_to_graph").
			Default(false),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the WorldStateChangelog.
func (WorldStateChangelog) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("campaign_id", "applied_to_graph"),
		index.Fields("campaign_id", "timestamp", "seq"),
	}
}
