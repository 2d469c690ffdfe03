package uploads

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loresmith/loresmith/pkg/kv"
)

func newTestManager(t *testing.T) (*Manager, *completions) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewStore(kv.NewStoreFromClient(client), 48*time.Hour)
	c := &completions{}
	m := NewManager(store, c.onComplete, c.onFailure)
	t.Cleanup(m.Shutdown)
	return m, c
}

type completions struct {
	mu        sync.Mutex
	completed []Session
	failed    []string
}

func (c *completions) onComplete(_ context.Context, sess Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, sess)
}

func (c *completions) onFailure(_ context.Context, sess Session, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, sess.ID+": "+reason)
}

func TestUploadLifecycle(t *testing.T) {
	m, c := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "files/u1/doc.pdf", "mpu-1", "doc.pdf", 3000, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sess.Status)

	for i := 1; i <= 3; i++ {
		sess, err = m.AddPart(ctx, sess.ID, Part{PartNumber: i, ETag: "etag", Size: 1000})
		require.NoError(t, err)
	}
	assert.Equal(t, StatusUploading, sess.Status)
	assert.Equal(t, 3, sess.UploadedParts)

	done, err := m.Complete(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, done.UploadedParts, done.TotalParts)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.completed, 1)
	assert.Equal(t, sess.ID, c.completed[0].ID)
}

func TestCompleteRequiresAllParts(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "k", "mpu", "f", 100, 2)
	require.NoError(t, err)

	_, err = m.AddPart(ctx, sess.ID, Part{PartNumber: 1, ETag: "e", Size: 50})
	require.NoError(t, err)

	_, err = m.Complete(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestPartInvariants(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "k", "mpu", "f", 100, 2)
	require.NoError(t, err)

	// Idempotent re-ack of the same part.
	_, err = m.AddPart(ctx, sess.ID, Part{PartNumber: 1, ETag: "e1", Size: 50})
	require.NoError(t, err)
	got, err := m.AddPart(ctx, sess.ID, Part{PartNumber: 1, ETag: "e1", Size: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, got.UploadedParts)

	// Same number, different content: conflict.
	_, err = m.AddPart(ctx, sess.ID, Part{PartNumber: 1, ETag: "e2", Size: 50})
	assert.ErrorIs(t, err, ErrPartConflict)

	// Part number beyond total: conflict.
	_, err = m.AddPart(ctx, sess.ID, Part{PartNumber: 3, ETag: "e", Size: 50})
	assert.ErrorIs(t, err, ErrPartConflict)

	// uploadedParts mirrors the stored parts set.
	_, parts, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, parts, got.UploadedParts)
}

func TestTerminalSessionRejectsMutation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "k", "mpu", "f", 100, 1)
	require.NoError(t, err)
	_, err = m.AddPart(ctx, sess.ID, Part{PartNumber: 1, ETag: "e", Size: 100})
	require.NoError(t, err)
	_, err = m.Complete(ctx, sess.ID)
	require.NoError(t, err)

	_, err = m.AddPart(ctx, sess.ID, Part{PartNumber: 1, ETag: "e", Size: 100})
	assert.ErrorIs(t, err, ErrTerminal)

	// Complete is idempotent on a completed session.
	again, err := m.Complete(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)
}

func TestAbortInvokesFailureHook(t *testing.T) {
	m, c := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "k", "mpu", "f", 100, 2)
	require.NoError(t, err)
	require.NoError(t, m.Abort(ctx, sess.ID, "client gave up"))

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.failed, 1)
	assert.Contains(t, c.failed[0], "client gave up")
}

func TestGetUnknownSession(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
