package uploads

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CompletionHook is invoked after a session reaches completed, outside the
// actor's critical path (the file row flip and user notification).
type CompletionHook func(ctx context.Context, sess Session)

// FailureHook is invoked when a session is failed (abort or expiry).
type FailureHook func(ctx context.Context, sess Session, reason string)

// Manager routes operations to per-session actors. Each actor is a mutex
// held per upload id: operations on one upload are strictly serial,
// different uploads proceed in parallel.
type Manager struct {
	store *Store

	mu     sync.Mutex
	actors map[string]*actor

	onComplete CompletionHook
	onFailure  FailureHook

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// actor serializes all state mutation for one upload session.
type actor struct {
	mu       sync.Mutex
	lastUsed time.Time
}

// NewManager creates a Manager and starts the expiry janitor.
func NewManager(store *Store, onComplete CompletionHook, onFailure FailureHook) *Manager {
	m := &Manager{
		store:      store,
		actors:     make(map[string]*actor),
		onComplete: onComplete,
		onFailure:  onFailure,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
	m.wg.Add(1)
	go m.runJanitor()
	return m
}

// Shutdown stops the janitor.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Manager) actorFor(id string) *actor {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[id]
	if !ok {
		a = &actor{}
		m.actors[id] = a
	}
	a.lastUsed = m.now()
	return a
}

// Create starts a new upload session.
func (m *Manager) Create(ctx context.Context, ownerID, fileKey, uploadID, filename string, fileSize int64, totalParts int) (*Session, error) {
	if totalParts <= 0 {
		return nil, fmt.Errorf("%w: total_parts must be positive", ErrIncomplete)
	}

	id := uuid.New().String()
	a := m.actorFor(id)
	a.mu.Lock()
	defer a.mu.Unlock()

	now := m.now().UnixMilli()
	sess := &Session{
		ID:         id,
		OwnerID:    ownerID,
		FileKey:    fileKey,
		UploadID:   uploadID,
		Filename:   filename,
		FileSize:   fileSize,
		TotalParts: totalParts,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the current session state with its parts.
func (m *Manager) Get(ctx context.Context, id string) (*Session, []Part, error) {
	a := m.actorFor(id)
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	parts, err := m.store.LoadParts(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return sess, parts, nil
}

// AddPart acknowledges one uploaded part. Re-acknowledging the same part
// with identical etag and size is idempotent; different content conflicts.
func (m *Manager) AddPart(ctx context.Context, id string, part Part) (*Session, error) {
	if part.PartNumber <= 0 {
		return nil, fmt.Errorf("%w: part_number must be positive", ErrPartConflict)
	}

	a := m.actorFor(id)
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusCompleted || sess.Status == StatusFailed {
		return nil, ErrTerminal
	}
	if part.PartNumber > sess.TotalParts {
		return nil, fmt.Errorf("%w: part %d exceeds total_parts %d",
			ErrPartConflict, part.PartNumber, sess.TotalParts)
	}

	parts, err := m.store.LoadParts(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, existing := range parts {
		if existing.PartNumber == part.PartNumber {
			if existing.ETag == part.ETag && existing.Size == part.Size {
				return sess, nil // idempotent re-ack
			}
			return nil, fmt.Errorf("%w: part %d already acknowledged with different content",
				ErrPartConflict, part.PartNumber)
		}
	}

	parts = append(parts, part)
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	if err := m.store.SaveParts(ctx, id, parts); err != nil {
		return nil, err
	}

	sess.UploadedParts = len(parts)
	sess.Status = StatusUploading
	sess.UpdatedAt = m.now().UnixMilli()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Complete finalizes the upload. Requires every part acknowledged.
func (m *Manager) Complete(ctx context.Context, id string) (*Session, error) {
	a := m.actorFor(id)
	a.mu.Lock()

	sess, err := m.store.LoadSession(ctx, id)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if sess.Status == StatusCompleted {
		a.mu.Unlock()
		return sess, nil // idempotent
	}
	if sess.Status == StatusFailed {
		a.mu.Unlock()
		return nil, ErrTerminal
	}

	parts, err := m.store.LoadParts(ctx, id)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if len(parts) != sess.TotalParts {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d parts acknowledged",
			ErrIncomplete, len(parts), sess.TotalParts)
	}

	sess.UploadedParts = len(parts)
	sess.Status = StatusCompleted
	sess.UpdatedAt = m.now().UnixMilli()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	done := *sess
	a.mu.Unlock()

	if m.onComplete != nil {
		m.onComplete(ctx, done)
	}
	return &done, nil
}

// Abort fails the session explicitly.
func (m *Manager) Abort(ctx context.Context, id, reason string) error {
	a := m.actorFor(id)
	a.mu.Lock()

	sess, err := m.store.LoadSession(ctx, id)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if sess.Status == StatusCompleted || sess.Status == StatusFailed {
		a.mu.Unlock()
		return ErrTerminal
	}
	sess.Status = StatusFailed
	sess.UpdatedAt = m.now().UnixMilli()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		a.mu.Unlock()
		return err
	}
	failed := *sess
	a.mu.Unlock()

	if m.onFailure != nil {
		m.onFailure(ctx, failed, reason)
	}
	return nil
}

// Delete removes all state for a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	a := m.actorFor(id)
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.actors, id)
	m.mu.Unlock()
	return nil
}

// expireAfter is how long a session may go without a write before the
// janitor fails it.
const expireAfter = 24 * time.Hour

// janitorInterval is how often idle actors are scanned.
const janitorInterval = time.Hour

func (m *Manager) runJanitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.expireStale(context.Background())
		}
	}
}

// expireStale fails sessions untouched for longer than expireAfter and
// forgets idle actors.
func (m *Manager) expireStale(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.actors))
	for id := range m.actors {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	cutoff := m.now().Add(-expireAfter).UnixMilli()
	for _, id := range ids {
		sess, err := m.store.LoadSession(ctx, id)
		if err != nil {
			// Session already expired from KV; drop the actor.
			m.mu.Lock()
			delete(m.actors, id)
			m.mu.Unlock()
			continue
		}
		if sess.Status == StatusCompleted || sess.Status == StatusFailed {
			m.mu.Lock()
			delete(m.actors, id)
			m.mu.Unlock()
			continue
		}
		if sess.UpdatedAt > cutoff {
			continue
		}
		slog.Info("Expiring stale upload session",
			"upload_session_id", id, "file_key", sess.FileKey)
		if err := m.Abort(ctx, id, "upload expired after 24h of inactivity"); err != nil {
			slog.Warn("Failed to expire upload session",
				"upload_session_id", id, "error", err)
		}
	}
}
