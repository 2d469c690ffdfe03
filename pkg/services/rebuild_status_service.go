package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/rebuildstatus"
)

// RebuildStatusService manages rebuild lifecycle rows. Pending rows double
// as the rebuild queue.
type RebuildStatusService struct {
	client *ent.Client
}

// NewRebuildStatusService creates a new RebuildStatusService.
func NewRebuildStatusService(client *ent.Client) *RebuildStatusService {
	return &RebuildStatusService{client: client}
}

// Schedule creates a pending rebuild. Returns ErrAlreadyExists when the
// campaign already has a pending or in-progress rebuild, keeping at most
// one active rebuild per campaign.
func (s *RebuildStatusService) Schedule(httpCtx context.Context, campaignID string, rebuildType rebuildstatus.RebuildType, affectedEntityIDs []string) (*ent.RebuildStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	active, err := s.client.RebuildStatus.Query().
		Where(
			rebuildstatus.CampaignID(campaignID),
			rebuildstatus.StatusIn(rebuildstatus.StatusPending, rebuildstatus.StatusInProgress),
		).
		Exist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check active rebuilds: %w", err)
	}
	if active {
		return nil, ErrAlreadyExists
	}

	builder := s.client.RebuildStatus.Create().
		SetID(uuid.New().String()).
		SetCampaignID(campaignID).
		SetRebuildType(rebuildType).
		SetStatus(rebuildstatus.StatusPending)
	if len(affectedEntityIDs) > 0 {
		builder.SetAffectedEntityIds(affectedEntityIDs)
	}

	rb, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule rebuild: %w", err)
	}
	return rb, nil
}

// Get returns one rebuild row.
func (s *RebuildStatusService) Get(ctx context.Context, rebuildID string) (*ent.RebuildStatus, error) {
	rb, err := s.client.RebuildStatus.Get(ctx, rebuildID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rebuild status: %w", err)
	}
	return rb, nil
}

// Latest returns the newest rebuild row for a campaign.
func (s *RebuildStatusService) Latest(ctx context.Context, campaignID string) (*ent.RebuildStatus, error) {
	rb, err := s.client.RebuildStatus.Query().
		Where(rebuildstatus.CampaignID(campaignID)).
		Order(ent.Desc(rebuildstatus.FieldCreatedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest rebuild: %w", err)
	}
	return rb, nil
}

// MarkInProgress transitions a rebuild to in_progress and records the
// changelog snapshot it will apply.
func (s *RebuildStatusService) MarkInProgress(httpCtx context.Context, rebuildID string, changelogIDs []string) (*ent.RebuildStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rb, err := s.client.RebuildStatus.UpdateOneID(rebuildID).
		SetStatus(rebuildstatus.StatusInProgress).
		SetStartedAt(time.Now()).
		SetLastHeartbeatAt(time.Now()).
		SetChangelogIds(changelogIDs).
		AddAttempt(1).
		Save(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to mark rebuild in progress: %w", err)
	}
	return rb, nil
}

// MarkCompleted transitions a rebuild to completed with result metadata.
func (s *RebuildStatusService) MarkCompleted(httpCtx context.Context, rebuildID string, metadata map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := s.client.RebuildStatus.UpdateOneID(rebuildID).
		SetStatus(rebuildstatus.StatusCompleted).
		SetCompletedAt(time.Now())
	if metadata != nil {
		update.SetMetadata(metadata)
	}
	if err := update.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark rebuild completed: %w", err)
	}
	return nil
}

// MarkFailed transitions a rebuild to failed with the error message.
// Requeue can re-arm a failed row to pending; nothing calls it automatically.
func (s *RebuildStatusService) MarkFailed(httpCtx context.Context, rebuildID, errorMessage string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.RebuildStatus.UpdateOneID(rebuildID).
		SetStatus(rebuildstatus.StatusFailed).
		SetCompletedAt(time.Now()).
		SetErrorMessage(errorMessage).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark rebuild failed: %w", err)
	}
	return nil
}

// Requeue re-arms a failed rebuild for another attempt after backoff.
func (s *RebuildStatusService) Requeue(httpCtx context.Context, rebuildID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.RebuildStatus.UpdateOneID(rebuildID).
		SetStatus(rebuildstatus.StatusPending).
		ClearCompletedAt().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue rebuild: %w", err)
	}
	return nil
}

// Cancel transitions a pending rebuild to cancelled. In-progress rebuilds
// are cancelled via the worker's context; this handles the queued case.
func (s *RebuildStatusService) Cancel(httpCtx context.Context, rebuildID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := s.client.RebuildStatus.Update().
		Where(
			rebuildstatus.ID(rebuildID),
			rebuildstatus.StatusEQ(rebuildstatus.StatusPending),
		).
		SetStatus(rebuildstatus.StatusCancelled).
		SetCompletedAt(time.Now()).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel rebuild: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Heartbeat refreshes last_heartbeat_at on an in-progress rebuild.
func (s *RebuildStatusService) Heartbeat(ctx context.Context, rebuildID string) error {
	return s.client.RebuildStatus.UpdateOneID(rebuildID).
		SetLastHeartbeatAt(time.Now()).
		Exec(ctx)
}
