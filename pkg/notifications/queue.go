package notifications

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/pkg/kv"
	"github.com/loresmith/loresmith/pkg/models"
)

// QueueStore persists undelivered notifications per user in KV.
//
// Key layout: "user:<userID>:queued_notification:<epochMs>:<uuid>", written
// with the hub's queue TTL so abandoned entries expire server-side too.
type QueueStore struct {
	store *kv.Store
	ttl   time.Duration
}

// NewQueueStore creates a QueueStore with the given entry TTL.
func NewQueueStore(store *kv.Store, ttl time.Duration) *QueueStore {
	return &QueueStore{store: store, ttl: ttl}
}

// QueuedItem is one pending notification with its storage key.
type QueuedItem struct {
	Key     string
	Payload models.NotificationPayload
}

func queuePrefix(userID string) string {
	return "user:" + userID + ":queued_notification:"
}

// Enqueue stores one payload under a timestamp-ordered key.
func (q *QueueStore) Enqueue(ctx context.Context, userID string, payload models.NotificationPayload) error {
	key := fmt.Sprintf("%s%d:%s", queuePrefix(userID), payload.Timestamp, uuid.New().String())
	if err := q.store.Put(ctx, key, payload, q.ttl); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// Pending returns all queued notifications newer than the cutoff, sorted
// ascending by (timestamp, key). An entry exactly one millisecond inside the
// TTL window still delivers; one at the cutoff is reaped instead.
func (q *QueueStore) Pending(ctx context.Context, userID string, cutoff int64) ([]QueuedItem, error) {
	prefix := queuePrefix(userID)
	keys, err := q.store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	items := make([]QueuedItem, 0, len(keys))
	for _, key := range keys {
		ts, ok := parseQueueKeyTimestamp(prefix, key)
		if !ok || ts <= cutoff {
			continue
		}
		var payload models.NotificationPayload
		found, err := q.store.Get(ctx, key, &payload)
		if err != nil {
			return nil, err
		}
		if !found {
			continue // expired between scan and read
		}
		items = append(items, QueuedItem{Key: key, Payload: payload})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Payload.Timestamp != items[j].Payload.Timestamp {
			return items[i].Payload.Timestamp < items[j].Payload.Timestamp
		}
		return items[i].Key < items[j].Key
	})
	return items, nil
}

// Remove deletes one delivered entry.
func (q *QueueStore) Remove(ctx context.Context, key string) error {
	return q.store.Delete(ctx, key)
}

// CleanupExpired deletes all entries at or before cutoff (epoch ms) and
// returns the number removed. Run at hub start and on every subscribe.
func (q *QueueStore) CleanupExpired(ctx context.Context, userID string, cutoff int64) (int, error) {
	prefix := queuePrefix(userID)
	keys, err := q.store.ListKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}

	var expired []string
	for _, key := range keys {
		ts, ok := parseQueueKeyTimestamp(prefix, key)
		if ok && ts <= cutoff {
			expired = append(expired, key)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := q.store.Delete(ctx, expired...); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// parseQueueKeyTimestamp extracts the epoch-ms timestamp from a queue key.
func parseQueueKeyTimestamp(prefix, key string) (int64, bool) {
	rest := strings.TrimPrefix(key, prefix)
	idx := strings.IndexByte(rest, ':')
	if idx <= 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(rest[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
