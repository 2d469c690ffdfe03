package models

import (
	"fmt"
)

// AttachResourceRequest is the raw body of POST /campaigns/:id/resource.
// Clients historically send the file key under several field names; the
// canonical form is resolved by Normalize before anything downstream runs.
type AttachResourceRequest struct {
	Type     string `json:"type,omitempty"`
	ID       string `json:"id,omitempty"`
	FileKey  string `json:"file_key,omitempty"`
	FileKey2 string `json:"fileKey,omitempty"`
	Name     string `json:"name,omitempty"`
}

// CanonicalAttachResource is the single shape the attach flow operates on.
type CanonicalAttachResource struct {
	FileKey string
	Name    string
}

// Normalize resolves the duck-typed file-key variants into the canonical
// shape. Ambiguous input (two variants with different values) is refused —
// downstream code never branches on field spelling.
func (r *AttachResourceRequest) Normalize() (CanonicalAttachResource, error) {
	var key string
	for _, candidate := range []string{r.FileKey, r.FileKey2, r.ID} {
		if candidate == "" {
			continue
		}
		if key == "" {
			key = candidate
			continue
		}
		if key != candidate {
			return CanonicalAttachResource{}, fmt.Errorf(
				"ambiguous file key: %q vs %q", key, candidate)
		}
	}
	if key == "" {
		return CanonicalAttachResource{}, fmt.Errorf("file key is required")
	}
	return CanonicalAttachResource{FileKey: key, Name: r.Name}, nil
}

// CreateCampaignRequest is the body of POST /campaigns.
type CreateCampaignRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description,omitempty" validate:"max=5000"`
}

// UpdateCampaignRequest is the body of PUT /campaigns/:id.
type UpdateCampaignRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
}

// StartUploadRequest begins a multipart upload session.
type StartUploadRequest struct {
	Filename   string `json:"filename" validate:"required"`
	FileSize   int64  `json:"file_size" validate:"required,gt=0"`
	TotalParts int    `json:"total_parts" validate:"required,gt=0"`
}

// UploadPartAck acknowledges one uploaded part.
type UploadPartAck struct {
	PartNumber int    `json:"part_number" validate:"required,gt=0"`
	ETag       string `json:"etag" validate:"required"`
	Size       int64  `json:"size" validate:"required,gt=0"`
}

// AuthenticateRequest is the body of POST /authenticate.
type AuthenticateRequest struct {
	Username string `json:"username" validate:"required"`
	Secret   string `json:"secret" validate:"required"`
}

// ChatMessageRequest routes a user message through the agent router.
type ChatMessageRequest struct {
	CampaignID string `json:"campaign_id,omitempty"`
	Message    string `json:"message" validate:"required"`
}

// ToolConfirmationRequest resolves a pending mutating tool call.
type ToolConfirmationRequest struct {
	ToolCallID string `json:"tool_call_id" validate:"required"`
	Approved   bool   `json:"approved"`
}
