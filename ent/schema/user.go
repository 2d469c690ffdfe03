package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// User holds the schema definition for the User entity. Users are the tenant
// boundary: every campaign, file, and upload session is owned by exactly one.
type User struct {
	ent.Schema
}

// Fields of the User.
func (User) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("user_id").
			Unique().
			Immutable(),
		field.String("display_name"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the User.
func (User) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("campaigns", Campaign.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("files", File.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}
