package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/file"
)

// FileService manages file rows. The blob itself lives in object storage;
// rows track lifecycle from uploading through completed/failed.
type FileService struct {
	client *ent.Client
}

// NewFileService creates a new FileService.
func NewFileService(client *ent.Client) *FileService {
	return &FileService{client: client}
}

// CreateFile registers a new file at upload start (status=uploading).
// Re-uploading an existing key resets the row to uploading.
func (s *FileService) CreateFile(httpCtx context.Context, ownerID, key, name string, size int64) (*ent.File, error) {
	if key == "" {
		return nil, NewValidationError("key", "required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	existing, err := s.client.File.Query().
		Where(file.OwnerID(ownerID), file.Key(key)).
		Only(ctx)
	if err == nil {
		f, err := existing.Update().
			SetName(name).
			SetSize(size).
			SetStatus(file.StatusUploading).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to reset file for re-upload: %w", err)
		}
		return f, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up file: %w", err)
	}

	f, err := s.client.File.Create().
		SetID(uuid.New().String()).
		SetOwnerID(ownerID).
		SetKey(key).
		SetName(name).
		SetSize(size).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}

// GetFileByKey returns the file row for (ownerID, key).
func (s *FileService) GetFileByKey(ctx context.Context, ownerID, key string) (*ent.File, error) {
	f, err := s.client.File.Query().
		Where(file.OwnerID(ownerID), file.Key(key)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// ListFiles returns all files owned by ownerID, newest first.
func (s *FileService) ListFiles(ctx context.Context, ownerID string) ([]*ent.File, error) {
	fs, err := s.client.File.Query().
		Where(file.OwnerID(ownerID)).
		Order(ent.Desc(file.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return fs, nil
}

// UpdateStatus transitions a file's lifecycle state.
func (s *FileService) UpdateStatus(httpCtx context.Context, ownerID, key string, status file.Status) (*ent.File, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f, err := s.GetFileByKey(ctx, ownerID, key)
	if err != nil {
		return nil, err
	}
	updated, err := f.Update().SetStatus(status).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update file status: %w", err)
	}
	return updated, nil
}

// RenameFile updates a file's display name.
func (s *FileService) RenameFile(httpCtx context.Context, ownerID, key, name string) (*ent.File, error) {
	if name == "" {
		return nil, NewValidationError("name", "required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f, err := s.GetFileByKey(ctx, ownerID, key)
	if err != nil {
		return nil, err
	}
	updated, err := f.Update().SetName(name).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to rename file: %w", err)
	}
	return updated, nil
}

// DeleteFile removes the file row.
func (s *FileService) DeleteFile(httpCtx context.Context, ownerID, key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f, err := s.GetFileByKey(ctx, ownerID, key)
	if err != nil {
		return err
	}
	if err := s.client.File.DeleteOne(f).Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
