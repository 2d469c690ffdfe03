// Package uploads implements the Upload-Session actors: one single-writer
// actor per multipart upload, tracking part acknowledgements in KV and
// enforcing the completion invariants.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loresmith/loresmith/pkg/kv"
)

var (
	// ErrNotFound is returned for unknown upload sessions.
	ErrNotFound = errors.New("upload session not found")

	// ErrPartConflict is returned when a part number is acknowledged twice
	// with different content.
	ErrPartConflict = errors.New("conflicting part acknowledgement")

	// ErrIncomplete is returned when complete is called before every part
	// has been acknowledged.
	ErrIncomplete = errors.New("upload incomplete")

	// ErrTerminal is returned for mutations on completed/failed sessions.
	ErrTerminal = errors.New("upload session already terminal")
)

// Session statuses.
const (
	StatusPending   = "pending"
	StatusUploading = "uploading"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Session is the live multipart upload state. Invariants, enforced by the
// actor: UploadedParts == len(parts); Status == completed only when
// UploadedParts == TotalParts; part numbers unique within the session.
type Session struct {
	ID            string `json:"id"`
	OwnerID       string `json:"ownerId"`
	FileKey       string `json:"fileKey"`
	UploadID      string `json:"uploadId"`
	Filename      string `json:"filename"`
	FileSize      int64  `json:"fileSize"`
	TotalParts    int    `json:"totalParts"`
	UploadedParts int    `json:"uploadedParts"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// Part is one acknowledged upload part.
type Part struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
	Size       int64  `json:"size"`
}

// Store persists session state in KV. The session document and the parts
// list live under separate keys to keep part-ack writes small.
type Store struct {
	kv  *kv.Store
	ttl time.Duration
}

// NewStore creates a Store. Sessions expire from KV after ttl with no
// writes; the janitor fails them before that.
func NewStore(store *kv.Store, ttl time.Duration) *Store {
	return &Store{kv: store, ttl: ttl}
}

func sessionKey(id string) string { return "upload:" + id + ":session" }
func partsKey(id string) string   { return "upload:" + id + ":parts" }

// SaveSession persists the session document.
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	if err := s.kv.Put(ctx, sessionKey(sess.ID), sess, s.ttl); err != nil {
		return fmt.Errorf("failed to save upload session: %w", err)
	}
	return nil
}

// LoadSession returns the session document, or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	found, err := s.kv.Get(ctx, sessionKey(id), &sess)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// SaveParts persists the ordered parts list.
func (s *Store) SaveParts(ctx context.Context, id string, parts []Part) error {
	if err := s.kv.Put(ctx, partsKey(id), parts, s.ttl); err != nil {
		return fmt.Errorf("failed to save upload parts: %w", err)
	}
	return nil
}

// LoadParts returns the parts list (empty when none acknowledged yet).
func (s *Store) LoadParts(ctx context.Context, id string) ([]Part, error) {
	var parts []Part
	if _, err := s.kv.Get(ctx, partsKey(id), &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// Delete removes all state for a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.kv.Delete(ctx, sessionKey(id), partsKey(id))
}
