package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// MessageHistory holds the schema definition for the MessageHistory entity:
// one routed user message and the agent's reply, kept for context windows and
// the activity assessment endpoint.
type MessageHistory struct {
	ent.Schema
}

// Fields of the MessageHistory.
func (MessageHistory) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("message_id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("campaign_id").
			Optional().
			Immutable(),
		field.Enum("role").
			Values("user", "assistant", "tool"),
		field.String("agent_type").
			Optional().
			Comment("Agent that handled the message"),
		field.Text("content"),
		field.JSON("tool_calls", []map[string]any{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the MessageHistory.
func (MessageHistory) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "created_at"),
		index.Fields("campaign_id", "created_at"),
	}
}
