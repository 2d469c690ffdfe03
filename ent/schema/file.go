package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// File holds the schema definition for the File entity: one uploaded blob.
// Only status=completed files may be attached to a campaign.
type File struct {
	ent.Schema
}

// Fields of the File.
func (File) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("file_id").
			Unique().
			Immutable(),
		field.String("owner_id").
			Immutable(),
		field.String("key").
			Comment("Object-store key, unique per owner"),
		field.String("name"),
		field.Int64("size").
			Default(0),
		field.Enum("status").
			Values("uploading", "uploaded", "indexing", "completed", "failed").
			Default("uploading"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the File.
func (File) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("owner", User.Type).
			Ref("files").
			Field("owner_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the File.
func (File) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("owner_id", "key").
			Unique(),
		index.Fields("owner_id", "status"),
	}
}
