package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/campaignresource"
	"github.com/loresmith/loresmith/ent/file"
)

// ResourceService manages campaign resource attachments.
type ResourceService struct {
	client *ent.Client
}

// NewResourceService creates a new ResourceService.
func NewResourceService(client *ent.Client) *ResourceService {
	return &ResourceService{client: client}
}

// AttachResult reports whether the attach created a new row or found an
// existing one (idempotent attach).
type AttachResult struct {
	Resource *ent.CampaignResource
	Created  bool
}

// AttachResource attaches a completed file to a campaign. Idempotent on
// (campaignID, fileKey): a second attach returns the existing row with
// Created=false. A file that is not status=completed fails the precondition.
func (s *ResourceService) AttachResource(httpCtx context.Context, ownerID, campaignID, fileKey, fileName string) (*AttachResult, error) {
	if fileKey == "" {
		return nil, NewValidationError("file_key", "required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Idempotency check first: an existing row wins regardless of the
	// file's current status (it was completed at original attach time).
	existing, err := s.client.CampaignResource.Query().
		Where(
			campaignresource.CampaignID(campaignID),
			campaignresource.FileKey(fileKey),
		).
		Only(ctx)
	if err == nil {
		return &AttachResult{Resource: existing, Created: false}, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check existing resource: %w", err)
	}

	f, err := s.client.File.Query().
		Where(file.OwnerID(ownerID), file.Key(fileKey)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up file: %w", err)
	}
	if f.Status != file.StatusCompleted {
		return nil, fmt.Errorf("%w: file %s is %s, not completed", ErrPreconditionFailed, fileKey, f.Status)
	}

	name := fileName
	if name == "" {
		name = f.Name
	}
	res, err := s.client.CampaignResource.Create().
		SetID(uuid.New().String()).
		SetCampaignID(campaignID).
		SetFileKey(fileKey).
		SetFileName(name).
		Save(ctx)
	if err != nil {
		// Lost a race with a concurrent attach of the same file — return
		// the winner's row to keep the idempotency contract.
		if ent.IsConstraintError(err) {
			winner, qerr := s.client.CampaignResource.Query().
				Where(
					campaignresource.CampaignID(campaignID),
					campaignresource.FileKey(fileKey),
				).
				Only(ctx)
			if qerr == nil {
				return &AttachResult{Resource: winner, Created: false}, nil
			}
		}
		return nil, fmt.Errorf("failed to attach resource: %w", err)
	}
	return &AttachResult{Resource: res, Created: true}, nil
}

// GetResource returns a resource by id within a campaign.
func (s *ResourceService) GetResource(ctx context.Context, campaignID, resourceID string) (*ent.CampaignResource, error) {
	res, err := s.client.CampaignResource.Query().
		Where(
			campaignresource.ID(resourceID),
			campaignresource.CampaignID(campaignID),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return res, nil
}

// ListResources returns all resources of a campaign, oldest first.
func (s *ResourceService) ListResources(ctx context.Context, campaignID string) ([]*ent.CampaignResource, error) {
	rs, err := s.client.CampaignResource.Query().
		Where(campaignresource.CampaignID(campaignID)).
		Order(ent.Asc(campaignresource.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return rs, nil
}

// UpdateStatus transitions a resource's extraction state.
func (s *ResourceService) UpdateStatus(httpCtx context.Context, resourceID string, status campaignresource.Status, errorMessage string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := s.client.CampaignResource.UpdateOneID(resourceID).
		SetStatus(status)
	if errorMessage != "" {
		update.SetErrorMessage(errorMessage)
	} else {
		update.ClearErrorMessage()
	}
	if err := update.Exec(ctx); err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update resource status: %w", err)
	}
	return nil
}

// DetachResource removes a resource from a campaign.
func (s *ResourceService) DetachResource(httpCtx context.Context, campaignID, resourceID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.GetResource(ctx, campaignID, resourceID)
	if err != nil {
		return err
	}
	if err := s.client.CampaignResource.DeleteOne(res).Exec(ctx); err != nil {
		return fmt.Errorf("failed to detach resource: %w", err)
	}
	return nil
}
