package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/telemetry"
)

// kvOpTimeout bounds one KV operation issued from the hub loop. Without it a
// stalled redis connection would freeze the actor and every subscriber on it.
const kvOpTimeout = 5 * time.Second

// subscriber is one connected SSE stream.
type subscriber struct {
	id       string
	writer   StreamWriter
	ctx      context.Context
	lastPing time.Time
}

// hubCmd is one mailbox message. Exactly one field set.
type hubCmd struct {
	subscribe   *subscribeCmd
	publish     *models.NotificationPayload
	unsubscribe string // subscriber id
	probe       chan hubProbe
	destroy     chan struct{}
}

type subscribeCmd struct {
	id     string
	writer StreamWriter
	ctx    context.Context
	result chan error
}

// hubProbe reports actor state to the manager's idle janitor.
type hubProbe struct {
	subscribers  int
	lastActivity time.Time
}

// Hub is the single-writer actor for one user's notification stream.
// All mutation of subscriber state happens on the run goroutine.
type Hub struct {
	userID string
	queue  *QueueStore
	cfg    *config.HubConfig

	cmds chan hubCmd
	done chan struct{}

	// now is injectable for tests.
	now func() time.Time

	// Owned by the run goroutine.
	subscribers  map[string]*subscriber
	lastActivity time.Time
}

// newHub creates and starts a hub actor for one user.
func newHub(userID string, queue *QueueStore, cfg *config.HubConfig) *Hub {
	return newHubWithClock(userID, queue, cfg, time.Now)
}

// newHubWithClock injects the clock; used by tests to control timestamps.
func newHubWithClock(userID string, queue *QueueStore, cfg *config.HubConfig, now func() time.Time) *Hub {
	h := &Hub{
		userID:      userID,
		queue:       queue,
		cfg:         cfg,
		cmds:        make(chan hubCmd, 64),
		done:        make(chan struct{}),
		now:         now,
		subscribers: make(map[string]*subscriber),
	}
	go h.run()
	return h
}

// run is the actor loop: processes mailbox commands serially and drives the
// periodic ping. Serial processing is what guarantees the
// queued → connected → live ordering on every stream.
func (h *Hub) run() {
	// Reap anything expired before the first subscriber shows up.
	h.cleanupExpired()
	h.lastActivity = h.now()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-h.cmds:
			switch {
			case cmd.subscribe != nil:
				cmd.subscribe.result <- h.handleSubscribe(cmd.subscribe)
			case cmd.publish != nil:
				h.handlePublish(cmd.publish)
			case cmd.unsubscribe != "":
				h.removeSubscriber(cmd.unsubscribe)
			case cmd.probe != nil:
				cmd.probe <- hubProbe{
					subscribers:  len(h.subscribers),
					lastActivity: h.lastActivity,
				}
			case cmd.destroy != nil:
				h.closeAll()
				close(cmd.destroy)
				close(h.done)
				return
			}
		case <-ticker.C:
			h.ping()
		}
	}
}

// Subscribe registers a stream for this hub's user and blocks until replay
// has finished (or failed). Live events flow to the writer afterwards until
// ctx is cancelled or a write fails.
func (h *Hub) Subscribe(ctx context.Context, writer StreamWriter) error {
	sub := &subscribeCmd{
		id:     uuid.New().String(),
		writer: writer,
		ctx:    ctx,
		result: make(chan error, 1),
	}
	select {
	case h.cmds <- hubCmd{subscribe: sub}:
	case <-h.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-sub.result:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	// Drop the subscriber when the client goes away.
	go func() {
		select {
		case <-ctx.Done():
			select {
			case h.cmds <- hubCmd{unsubscribe: sub.id}:
			case <-h.done:
			}
		case <-h.done:
		}
	}()
	return nil
}

// Publish stamps and delivers (or queues) one payload. Fire-and-forget:
// delivery errors are handled inside the actor.
func (h *Hub) Publish(payload models.NotificationPayload) {
	payload.Timestamp = h.now().UnixMilli()
	select {
	case h.cmds <- hubCmd{publish: &payload}:
	case <-h.done:
	}
}

// probeState asks the actor for its idle status.
func (h *Hub) probeState() (hubProbe, bool) {
	reply := make(chan hubProbe, 1)
	select {
	case h.cmds <- hubCmd{probe: reply}:
		return <-reply, true
	case <-h.done:
		return hubProbe{}, false
	}
}

// destroy closes every writer and stops the actor.
func (h *Hub) destroy() {
	ack := make(chan struct{})
	select {
	case h.cmds <- hubCmd{destroy: ack}:
		<-ack
	case <-h.done:
	}
}

// --- Actor-side handlers (run goroutine only) ---

// handleSubscribe implements the reconnect contract, in client-observable
// order: replace any existing stream, replay the queue, emit connected.
func (h *Hub) handleSubscribe(cmd *subscribeCmd) error {
	h.lastActivity = h.now()

	// Reconnection replaces: close existing streams for this user first.
	for id := range h.subscribers {
		h.removeSubscriber(id)
	}

	h.cleanupExpired()

	since := h.now().Add(-h.cfg.QueueTTL).UnixMilli()
	ctx, cancel := context.WithTimeout(context.Background(), kvOpTimeout)
	pending, err := h.queue.Pending(ctx, h.userID, since)
	cancel()
	if err != nil {
		// Queue unavailable: the stream still opens, it just starts live.
		slog.Error("Failed to load queued notifications",
			"user_id", h.userID, "error", err)
		pending = nil
	}

	sub := &subscriber{
		id:       cmd.id,
		writer:   cmd.writer,
		ctx:      cmd.ctx,
		lastPing: h.now(),
	}

	// Replay strictly before registration-visible live traffic. Delivered
	// entries are deleted only after the write completed; a broken stream
	// aborts replay with the remainder still queued and no connected event.
	for _, item := range pending {
		frame, err := eventFrame(&item.Payload)
		if err != nil {
			slog.Warn("Skipping malformed queued notification",
				"user_id", h.userID, "key", item.Key, "error", err)
			continue
		}
		if werr := sub.writer.Write(frame); werr != nil {
			if isBrokenStream(werr) {
				slog.Warn("Stream broken during replay, leaving remainder queued",
					"user_id", h.userID, "key", item.Key, "error", werr)
				_ = sub.writer.Close()
				return werr
			}
			// Transient write failure: this entry stays queued for the next
			// reconnect; replay continues.
			slog.Warn("Replay write failed, entry stays queued",
				"user_id", h.userID, "key", item.Key, "error", werr)
			continue
		}
		telemetry.NotificationsReplayedTotal.Inc()
		delCtx, delCancel := context.WithTimeout(context.Background(), kvOpTimeout)
		if derr := h.queue.Remove(delCtx, item.Key); derr != nil {
			// Entry stays queued; the client dedupes by (timestamp, type,
			// data hash) on the next reconnect. At-least-once.
			slog.Warn("Failed to delete delivered notification",
				"user_id", h.userID, "key", item.Key, "error", derr)
		}
		delCancel()
	}

	connected := models.NotificationPayload{
		Type:      models.NotificationConnected,
		Timestamp: h.now().UnixMilli(),
	}
	frame, err := eventFrame(&connected)
	if err != nil {
		_ = sub.writer.Close()
		return err
	}
	if err := sub.writer.Write(frame); err != nil {
		_ = sub.writer.Close()
		return err
	}

	h.subscribers[sub.id] = sub
	telemetry.HubSubscribersActive.Inc()
	return nil
}

// handlePublish fans one payload out to live subscribers, queuing it when
// nobody (or nobody healthy) is listening.
func (h *Hub) handlePublish(payload *models.NotificationPayload) {
	h.lastActivity = h.now()

	if len(h.subscribers) == 0 {
		h.enqueue(payload)
		return
	}

	frame, err := eventFrame(payload)
	if err != nil {
		slog.Error("Failed to encode notification", "user_id", h.userID, "error", err)
		return
	}

	delivered := 0
	var dead []string
	for id, sub := range h.subscribers {
		if sub.ctx.Err() != nil {
			dead = append(dead, id)
			continue
		}
		if werr := sub.writer.Write(frame); werr != nil {
			slog.Warn("Notification write failed, reaping subscriber",
				"user_id", h.userID, "subscriber_id", id, "error", werr)
			dead = append(dead, id)
			continue
		}
		delivered++
	}
	for _, id := range dead {
		h.removeSubscriber(id)
	}

	if delivered > 0 {
		telemetry.NotificationsPublishedTotal.WithLabelValues("delivered").Inc()
		return
	}
	// Every subscriber failed and none remain: keep the payload.
	h.enqueue(payload)
}

// enqueue persists a payload for later replay. KV failures are logged; the
// payload is lost only if the store is down, which the spec accepts.
func (h *Hub) enqueue(payload *models.NotificationPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), kvOpTimeout)
	defer cancel()
	if err := h.queue.Enqueue(ctx, h.userID, *payload); err != nil {
		slog.Error("Failed to queue notification", "user_id", h.userID, "error", err)
		return
	}
	telemetry.NotificationsPublishedTotal.WithLabelValues("queued").Inc()
}

// ping writes the SSE keep-alive comment to every subscriber and reaps any
// whose write fails.
func (h *Hub) ping() {
	var dead []string
	for id, sub := range h.subscribers {
		if sub.ctx.Err() != nil {
			dead = append(dead, id)
			continue
		}
		if err := sub.writer.Write([]byte(pingFrame)); err != nil {
			slog.Info("Ping failed, reaping subscriber",
				"user_id", h.userID, "subscriber_id", id, "error", err)
			dead = append(dead, id)
			continue
		}
		sub.lastPing = h.now()
	}
	for _, id := range dead {
		h.removeSubscriber(id)
		telemetry.SubscribersReapedTotal.Inc()
	}
}

// cleanupExpired reaps queue entries past the TTL.
func (h *Hub) cleanupExpired() {
	cutoff := h.now().Add(-h.cfg.QueueTTL).UnixMilli()
	ctx, cancel := context.WithTimeout(context.Background(), kvOpTimeout)
	defer cancel()
	n, err := h.queue.CleanupExpired(ctx, h.userID, cutoff)
	if err != nil {
		slog.Warn("Failed to clean up expired notifications",
			"user_id", h.userID, "error", err)
		return
	}
	if n > 0 {
		slog.Debug("Reaped expired queued notifications",
			"user_id", h.userID, "count", n)
	}
}

// removeSubscriber drops one subscriber and closes its writer idempotently.
func (h *Hub) removeSubscriber(id string) {
	sub, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	_ = sub.writer.Close()
	telemetry.HubSubscribersActive.Dec()
}

// closeAll tells every subscriber to reconnect immediately, then drops them
// (destroy path).
func (h *Hub) closeAll() {
	reset := models.NotificationPayload{
		Type:      models.NotificationDurableObjectReset,
		Timestamp: h.now().UnixMilli(),
	}
	if frame, err := eventFrame(&reset); err == nil {
		for _, sub := range h.subscribers {
			_ = sub.writer.Write(frame)
		}
	}
	for id := range h.subscribers {
		h.removeSubscriber(id)
	}
}
