package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/kv"
	"github.com/loresmith/loresmith/pkg/models"
)

// memWriter is an in-memory StreamWriter with failure injection.
type memWriter struct {
	mu      sync.Mutex
	frames  []string
	writes  int
	failOn  int // 1-based write index that fails; 0 = never
	failErr error
	closed  bool
}

func (w *memWriter) Write(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.failOn != 0 && w.writes >= w.failOn {
		return w.failErr
	}
	w.frames = append(w.frames, string(frame))
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.frames))
	copy(out, w.frames)
	return out
}

// payloadTypes decodes the data frames a writer received, skipping pings.
func payloadTypes(t *testing.T, frames []string) []string {
	t.Helper()
	var types []string
	for _, f := range frames {
		if !strings.HasPrefix(f, "data: ") {
			continue
		}
		var p models.NotificationPayload
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(f, "data: "), "\n\n")), &p))
		types = append(types, p.Type)
	}
	return types
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestHub(t *testing.T) (*Hub, *QueueStore, *fakeClock, *kv.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := kv.NewStoreFromClient(client)

	cfg := config.DefaultHubConfig()
	queue := NewQueueStore(store, cfg.QueueTTL)
	clock := &fakeClock{t: time.UnixMilli(0)}
	h := newHubWithClock("u1", queue, cfg, clock.Now)
	t.Cleanup(h.destroy)
	return h, queue, clock, store
}

func queuedKeys(t *testing.T, store *kv.Store) []string {
	t.Helper()
	keys, err := store.ListKeys(context.Background(), "user:u1:queued_notification:")
	require.NoError(t, err)
	return keys
}

func TestOfflineQueueThenReconnect(t *testing.T) {
	h, _, clock, store := newTestHub(t)

	// Publish with no subscribers: both payloads must be queued.
	clock.Set(time.UnixMilli(1000))
	h.Publish(models.NotificationPayload{
		Type: models.NotificationShardsGenerated,
		Data: map[string]any{"n": 3},
	})
	clock.Set(time.UnixMilli(2000))
	h.Publish(models.NotificationPayload{Type: models.NotificationFileUploaded})

	require.Eventually(t, func() bool {
		return len(queuedKeys(t, store)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Reconnect: replay in publish order, then the connected marker.
	clock.Set(time.UnixMilli(3000))
	w := &memWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Subscribe(ctx, w))

	assert.Equal(t, []string{
		models.NotificationShardsGenerated,
		models.NotificationFileUploaded,
		models.NotificationConnected,
	}, payloadTypes(t, w.snapshot()))

	// Delivered entries must be gone from KV.
	assert.Empty(t, queuedKeys(t, store))
}

func TestBrokenWriterMidReplay(t *testing.T) {
	h, queue, clock, store := newTestHub(t)
	ctx := context.Background()

	for i, ts := range []int64{1000, 2000, 3000} {
		require.NoError(t, queue.Enqueue(ctx, "u1", models.NotificationPayload{
			Type:      models.NotificationShardsGenerated,
			Message:   strings.Repeat("x", i+1),
			Timestamp: ts,
		}))
	}

	clock.Set(time.UnixMilli(4000))
	w := &memWriter{failOn: 2, failErr: errors.New("write: broken pipe")}
	err := h.Subscribe(ctx, w)
	require.Error(t, err)

	// First delivered and deleted; second and third stay queued.
	types := payloadTypes(t, w.snapshot())
	assert.Equal(t, []string{models.NotificationShardsGenerated}, types)
	assert.NotContains(t, types, models.NotificationConnected)
	assert.Len(t, queuedKeys(t, store), 2)
	assert.True(t, w.closed)
}

func TestLiveDeliveryAfterConnected(t *testing.T) {
	h, _, clock, store := newTestHub(t)

	clock.Set(time.UnixMilli(1000))
	w := &memWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Subscribe(ctx, w))

	clock.Set(time.UnixMilli(2000))
	h.Publish(models.NotificationPayload{Type: models.NotificationRebuildCompleted})

	require.Eventually(t, func() bool {
		types := payloadTypes(t, w.snapshot())
		return len(types) == 2 && types[1] == models.NotificationRebuildCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// Delivered live — nothing queued.
	assert.Empty(t, queuedKeys(t, store))
}

func TestReconnectReplacesExistingSubscriber(t *testing.T) {
	h, _, _, _ := newTestHub(t)
	ctx := context.Background()

	w1 := &memWriter{}
	require.NoError(t, h.Subscribe(ctx, w1))

	w2 := &memWriter{}
	require.NoError(t, h.Subscribe(ctx, w2))

	// The first writer was closed by the replacement.
	w1.mu.Lock()
	closed := w1.closed
	w1.mu.Unlock()
	assert.True(t, closed)

	h.Publish(models.NotificationPayload{Type: models.NotificationSuccess})
	require.Eventually(t, func() bool {
		return len(payloadTypes(t, w2.snapshot())) == 2
	}, 2*time.Second, 10*time.Millisecond)
	// Only the connected frame ever reached the replaced writer.
	assert.Equal(t, []string{models.NotificationConnected}, payloadTypes(t, w1.snapshot()))
}

func TestAllWritersFailedQueuesPayload(t *testing.T) {
	h, _, _, store := newTestHub(t)
	ctx := context.Background()

	// Fails on every write after the connected frame.
	w := &memWriter{failOn: 2, failErr: errors.New("connection closed")}
	require.NoError(t, h.Subscribe(ctx, w))

	h.Publish(models.NotificationPayload{Type: models.NotificationRebuildFailed})

	require.Eventually(t, func() bool {
		return len(queuedKeys(t, store)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueueTTLBoundary(t *testing.T) {
	h, queue, clock, store := newTestHub(t)
	ctx := context.Background()

	now := time.UnixMilli(10_000_000_000)
	ttl := config.DefaultHubConfig().QueueTTL

	// Exactly at the TTL edge (now - 7d + 1ms) must survive; 1ms older is reaped.
	keep := now.Add(-ttl).Add(time.Millisecond).UnixMilli()
	reap := now.Add(-ttl).UnixMilli()
	require.NoError(t, queue.Enqueue(ctx, "u1", models.NotificationPayload{
		Type: models.NotificationSuccess, Timestamp: keep,
	}))
	require.NoError(t, queue.Enqueue(ctx, "u1", models.NotificationPayload{
		Type: models.NotificationError, Timestamp: reap,
	}))

	clock.Set(now)
	w := &memWriter{}
	require.NoError(t, h.Subscribe(ctx, w))

	types := payloadTypes(t, w.snapshot())
	assert.Equal(t, []string{models.NotificationSuccess, models.NotificationConnected}, types)
	assert.Empty(t, queuedKeys(t, store))
}

func TestCancelledSubscriberIsSkippedOnPublish(t *testing.T) {
	h, _, _, store := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	w := &memWriter{}
	require.NoError(t, h.Subscribe(ctx, w))
	cancel()

	// The publish after cancellation must not reach the writer; with no
	// remaining subscribers the payload is queued.
	require.Eventually(t, func() bool {
		h.Publish(models.NotificationPayload{Type: models.NotificationSuccess})
		return len(queuedKeys(t, store)) > 0
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{models.NotificationConnected}, payloadTypes(t, w.snapshot()))
}

func TestDedupKeyStable(t *testing.T) {
	a := models.NotificationPayload{
		Type:      models.NotificationShardsGenerated,
		Timestamp: 1234,
		Data:      map[string]any{"n": 3, "resource": "r1"},
	}
	b := models.NotificationPayload{
		Type:      models.NotificationShardsGenerated,
		Timestamp: 1234,
		Data:      map[string]any{"resource": "r1", "n": 3},
	}
	assert.Equal(t, a.DedupKey(), b.DedupKey())

	c := a
	c.Timestamp = 1235
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
}
