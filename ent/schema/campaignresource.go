package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CampaignResource holds the schema definition for the CampaignResource
// entity: one file attached to one campaign. The (campaign_id, file_key)
// unique index makes attach idempotent.
type CampaignResource struct {
	ent.Schema
}

// Fields of the CampaignResource.
func (CampaignResource) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("resource_id").
			Unique().
			Immutable(),
		field.String("campaign_id").
			Immutable(),
		field.String("file_key"),
		field.String("file_name"),
		field.Enum("status").
			Values("pending", "extracting", "completed", "failed").
			Default("pending"),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the CampaignResource.
func (CampaignResource) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("campaign", Campaign.Type).
			Ref("resources").
			Field("campaign_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the CampaignResource.
func (CampaignResource) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("campaign_id", "file_key").
			Unique(),
	}
}
