package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// UploadSession holds the schema definition for the UploadSession entity.
// The relational row is the listing/audit mirror; live multipart state
// (including the parts set) is owned by the Upload-Session actor in KV.
type UploadSession struct {
	ent.Schema
}

// Fields of the UploadSession.
func (UploadSession) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("upload_session_id").
			Unique().
			Immutable(),
		field.String("owner_id").
			Immutable(),
		field.String("file_key"),
		field.String("upload_id").
			Comment("Object-store multipart upload identifier"),
		field.String("filename"),
		field.Int64("file_size"),
		field.Int("total_parts"),
		field.Int("uploaded_parts").
			Default(0),
		field.Enum("status").
			Values("pending", "uploading", "completed", "failed").
			Default("pending"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the UploadSession.
func (UploadSession) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("owner_id", "status"),
		index.Fields("owner_id", "file_key"),
	}
}
