package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/extractiontask"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/telemetry"
)

// WorkerPool manages the extraction queue workers and orphan recovery.
type WorkerPool struct {
	podID    string
	client   *ent.Client
	cfg      *config.QueueConfig
	extCfg   *config.ExtractionConfig
	executor TaskExecutor
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(podID string, client *ent.Client, cfg *config.QueueConfig, extCfg *config.ExtractionConfig, executor TaskExecutor) *WorkerPool {
	return &WorkerPool{
		podID:    podID,
		client:   client,
		cfg:      cfg,
		extCfg:   extCfg,
		executor: executor,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns the workers and the orphan-detection task. Safe to call
// multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("Extraction pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	slog.Info("Starting extraction worker pool",
		"pod_id", p.podID, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker := NewWorker(
			fmt.Sprintf("%s-extraction-%d", p.podID, i),
			p.podID, p.client, p.cfg, p.extCfg, p.executor)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()
}

// Stop signals all workers and waits; in-flight tasks finish first.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping extraction worker pool")
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("Extraction worker pool stopped")
}

// runOrphanDetection periodically requeues tasks whose worker died between
// heartbeats (pod crash, OOM kill).
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.recoverOrphans(ctx); err != nil {
				slog.Error("Orphan detection failed", "error", err)
			}
		}
	}
}

func (p *WorkerPool) recoverOrphans(ctx context.Context) error {
	cutoff := time.Now().Add(-p.cfg.OrphanThreshold)
	n, err := p.client.ExtractionTask.Update().
		Where(
			extractiontask.StatusEQ(extractiontask.StatusInProgress),
			extractiontask.LastHeartbeatAtLT(cutoff),
		).
		SetStatus(extractiontask.StatusPending).
		ClearStartedAt().
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to requeue orphaned tasks: %w", err)
	}
	if n > 0 {
		slog.Warn("Recovered orphaned extraction tasks", "count", n)
		telemetry.QueueOrphansRecoveredTotal.WithLabelValues("extraction").Add(float64(n))
	}
	return nil
}
