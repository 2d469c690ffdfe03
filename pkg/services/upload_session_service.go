package services

import (
	"context"
	"fmt"
	"time"

	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/uploadsession"
)

// UploadSessionService mirrors upload-session actor state into the
// relational store for listing and audit. The KV copy stays authoritative
// while the upload is live.
type UploadSessionService struct {
	client *ent.Client
}

// NewUploadSessionService creates a new UploadSessionService.
func NewUploadSessionService(client *ent.Client) *UploadSessionService {
	return &UploadSessionService{client: client}
}

// MirrorState is the actor-side snapshot being mirrored.
type MirrorState struct {
	ID            string
	OwnerID       string
	FileKey       string
	UploadID      string
	Filename      string
	FileSize      int64
	TotalParts    int
	UploadedParts int
	Status        string
}

// Mirror upserts the relational row from actor state.
func (s *UploadSessionService) Mirror(httpCtx context.Context, state MirrorState) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := uploadsession.Status(state.Status)
	existing, err := s.client.UploadSession.Get(ctx, state.ID)
	if err == nil {
		if err := existing.Update().
			SetUploadedParts(state.UploadedParts).
			SetStatus(status).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to update upload session mirror: %w", err)
		}
		return nil
	}
	if !ent.IsNotFound(err) {
		return fmt.Errorf("failed to look up upload session mirror: %w", err)
	}

	if err := s.client.UploadSession.Create().
		SetID(state.ID).
		SetOwnerID(state.OwnerID).
		SetFileKey(state.FileKey).
		SetUploadID(state.UploadID).
		SetFilename(state.Filename).
		SetFileSize(state.FileSize).
		SetTotalParts(state.TotalParts).
		SetUploadedParts(state.UploadedParts).
		SetStatus(status).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create upload session mirror: %w", err)
	}
	return nil
}

// ListByOwner returns a user's upload sessions, newest first.
func (s *UploadSessionService) ListByOwner(ctx context.Context, ownerID string) ([]*ent.UploadSession, error) {
	sessions, err := s.client.UploadSession.Query().
		Where(uploadsession.OwnerID(ownerID)).
		Order(ent.Desc(uploadsession.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload sessions: %w", err)
	}
	return sessions, nil
}
