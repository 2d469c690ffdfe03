package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/kv"
	"github.com/loresmith/loresmith/pkg/models"
)

// Manager owns the per-user hub actors: lazy creation on first use, idle
// destruction by a background janitor, and a single shutdown path.
type Manager struct {
	queue *QueueStore
	cfg   *config.HubConfig

	mu   sync.Mutex
	hubs map[string]*Hub

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a Manager and starts its idle janitor.
func NewManager(store *kv.Store, cfg *config.HubConfig) *Manager {
	m := &Manager{
		queue:  NewQueueStore(store, cfg.QueueTTL),
		cfg:    cfg,
		hubs:   make(map[string]*Hub),
		stopCh: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.runJanitor()
	return m
}

// hub returns the actor for userID, creating it on first use.
func (m *Manager) hub(userID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hubs[userID]
	if !ok {
		h = newHub(userID, m.queue, m.cfg)
		m.hubs[userID] = h
	}
	return h
}

// Subscribe attaches a stream to userID's hub and blocks until replay has
// finished. The stream stays registered until ctx cancels or a write fails.
func (m *Manager) Subscribe(ctx context.Context, userID string, writer StreamWriter) error {
	return m.hub(userID).Subscribe(ctx, writer)
}

// Publish delivers (or queues) one payload for userID.
func (m *Manager) Publish(userID string, payload models.NotificationPayload) {
	m.hub(userID).Publish(payload)
}

// runJanitor periodically destroys hubs that have been idle with no
// subscribers for longer than IdleHubTTL.
func (m *Manager) runJanitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.IdleHubTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapIdleHubs()
		}
	}
}

func (m *Manager) reapIdleHubs() {
	cutoff := time.Now().Add(-m.cfg.IdleHubTTL)

	m.mu.Lock()
	candidates := make(map[string]*Hub, len(m.hubs))
	for id, h := range m.hubs {
		candidates[id] = h
	}
	m.mu.Unlock()

	for userID, h := range candidates {
		probe, alive := h.probeState()
		if !alive {
			m.mu.Lock()
			delete(m.hubs, userID)
			m.mu.Unlock()
			continue
		}
		if probe.subscribers > 0 || probe.lastActivity.After(cutoff) {
			continue
		}
		slog.Debug("Destroying idle notification hub", "user_id", userID)
		h.destroy()
		m.mu.Lock()
		delete(m.hubs, userID)
		m.mu.Unlock()
	}
}

// Shutdown destroys every hub and stops the janitor.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	hubs := m.hubs
	m.hubs = make(map[string]*Hub)
	m.mu.Unlock()

	for _, h := range hubs {
		h.destroy()
	}
}
