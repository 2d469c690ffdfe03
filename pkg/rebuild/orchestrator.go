package rebuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/campaign"
	"github.com/loresmith/loresmith/ent/rebuildstatus"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/graph"
	"github.com/loresmith/loresmith/pkg/notifications"
	"github.com/loresmith/loresmith/pkg/services"
	"github.com/loresmith/loresmith/pkg/telemetry"
)

// errNoRebuilds signals an empty queue poll.
var errNoRebuilds = errors.New("no rebuilds pending")

// Orchestrator consumes pending rebuild rows and executes the pipeline:
// community re-detection, async summaries, importance recalculation,
// changelog application, telemetry, and notifications.
type Orchestrator struct {
	client      *ent.Client
	loader      *graph.Loader
	detector    *graph.Detector
	communities *services.CommunityService
	changelog   *services.ChangelogService
	rebuilds    *services.RebuildStatusService
	recorder    *Recorder
	summarizer  *graph.Summarizer // nil when summaries are unavailable
	publisher   *notifications.Publisher
	telemetrySv *services.TelemetryService
	cfg         *config.RebuildConfig
	queueCfg    *config.QueueConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an Orchestrator. summarizer may be nil (summaries
// disabled or no LLM key); the rebuild result never depends on it.
func NewOrchestrator(
	client *ent.Client,
	loader *graph.Loader,
	detector *graph.Detector,
	communities *services.CommunityService,
	changelog *services.ChangelogService,
	rebuilds *services.RebuildStatusService,
	recorder *Recorder,
	summarizer *graph.Summarizer,
	publisher *notifications.Publisher,
	telemetrySv *services.TelemetryService,
	cfg *config.RebuildConfig,
	queueCfg *config.QueueConfig,
) *Orchestrator {
	return &Orchestrator{
		client:      client,
		loader:      loader,
		detector:    detector,
		communities: communities,
		changelog:   changelog,
		rebuilds:    rebuilds,
		recorder:    recorder,
		summarizer:  summarizer,
		publisher:   publisher,
		telemetrySv: telemetrySv,
		cfg:         cfg,
		queueCfg:    queueCfg,
		stopCh:      make(chan struct{}),
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// Start begins the polling loop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(1)
	go o.run(ctx)
}

// Stop signals the loop and waits for the in-flight rebuild to finish.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()
	slog.Info("Rebuild orchestrator started")

	for {
		select {
		case <-o.stopCh:
			slog.Info("Rebuild orchestrator shutting down")
			return
		case <-ctx.Done():
			return
		default:
			if err := o.pollAndProcess(ctx); err != nil {
				if errors.Is(err, errNoRebuilds) {
					o.idle()
					continue
				}
				slog.Error("Rebuild processing error", "error", err)
				o.idle()
			}
		}
	}
}

func (o *Orchestrator) idle() {
	interval := o.queueCfg.PollInterval
	if jitter := o.queueCfg.PollIntervalJitter; jitter > 0 {
		interval += time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	}
	select {
	case <-o.stopCh:
	case <-time.After(interval):
	}
}

// pollAndProcess claims one pending rebuild and drives it through the
// retry budget.
func (o *Orchestrator) pollAndProcess(ctx context.Context) error {
	rb, err := o.claimNext(ctx)
	if err != nil {
		return err
	}

	ownerID, err := o.campaignOwner(ctx, rb.CampaignID)
	if err != nil {
		// Campaign gone: nothing to rebuild.
		return o.rebuilds.MarkFailed(ctx, rb.ID, fmt.Sprintf("campaign lookup failed: %v", err))
	}

	rebuildCtx, cancel := context.WithTimeout(ctx, o.queueCfg.TaskTimeout)
	defer cancel()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(rebuildCtx)
	go o.runHeartbeat(heartbeatCtx, rb.ID)
	defer cancelHeartbeat()

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		lastErr = o.executeOnce(rebuildCtx, rb, ownerID)
		if lastErr == nil {
			return nil
		}
		if rebuildCtx.Err() != nil {
			break
		}
		if attempt < o.cfg.MaxAttempts {
			delay := o.cfg.RetryBaseDelay << (attempt - 1)
			slog.Warn("Rebuild attempt failed, retrying",
				"rebuild_id", rb.ID, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := o.sleep(rebuildCtx, delay); err != nil {
				break
			}
		}
	}

	// Dead-letter: terminal failure after the retry budget.
	slog.Error("Rebuild dead-lettered",
		"rebuild_id", rb.ID, "campaign_id", rb.CampaignID, "error", lastErr)
	if err := o.rebuilds.MarkFailed(context.Background(), rb.ID, lastErr.Error()); err != nil {
		slog.Error("Failed to mark rebuild failed", "rebuild_id", rb.ID, "error", err)
	}
	telemetry.RebuildsTotal.WithLabelValues(string(rb.RebuildType), "failed").Inc()
	o.publisher.PublishRebuildFailed(ownerID, rb.CampaignID, lastErr.Error())
	return nil
}

// executeOnce runs the full pipeline for one attempt. Any error leaves the
// snapshotted changelog entries unapplied.
func (o *Orchestrator) executeOnce(ctx context.Context, rb *ent.RebuildStatus, ownerID string) error {
	start := time.Now()

	// Snapshot the unapplied changelog before touching the graph: entries
	// recorded after this point belong to the next rebuild.
	unapplied, err := o.changelog.ListUnapplied(ctx, rb.CampaignID)
	if err != nil {
		return err
	}
	snapshotIDs := make([]string, 0, len(unapplied))
	for _, entry := range unapplied {
		snapshotIDs = append(snapshotIDs, entry.ID)
	}

	rb, err = o.rebuilds.MarkInProgress(ctx, rb.ID, snapshotIDs)
	if err != nil {
		return err
	}
	o.publisher.PublishRebuildStarted(ownerID, rb.CampaignID, string(rb.RebuildType))

	g, err := o.loader.Load(ctx, rb.CampaignID, graph.LoadOptions{})
	if err != nil {
		return err
	}

	var communities []*ent.Community
	switch rb.RebuildType {
	case rebuildstatus.RebuildTypeFull:
		inserts := o.detector.DetectMultiLevel(g, rb.CampaignID)
		communities, err = o.communities.ReplaceAll(ctx, rb.CampaignID, inserts)
	case rebuildstatus.RebuildTypePartial:
		existing, listErr := o.communities.ListCommunities(ctx, rb.CampaignID)
		if listErr != nil {
			return listErr
		}
		deleteIDs, inserts := o.detector.IncrementalUpdate(g, rb.CampaignID, rb.AffectedEntityIds, existing)
		communities, err = o.communities.ReplaceSubset(ctx, rb.CampaignID, deleteIDs, inserts)
	}
	if err != nil {
		return err
	}
	o.publisher.PublishRebuildProgress(ownerID, rb.CampaignID,
		fmt.Sprintf("Detected %d communities", len(communities)))

	// Summaries run async and never block (or fail) the rebuild result.
	if o.cfg.SummariesEnabled && o.summarizer != nil && len(communities) > 0 {
		batch := communities
		go func() {
			sumCtx, cancel := context.WithTimeout(context.Background(), o.queueCfg.TaskTimeout)
			defer cancel()
			n := o.summarizer.SummarizeAll(sumCtx, batch)
			slog.Info("Community summaries generated",
				"campaign_id", batch[0].CampaignID, "succeeded", n, "total", len(batch))
		}()
	}

	if err := o.recalculateImportance(ctx, rb.CampaignID, g); err != nil {
		return err
	}
	o.publisher.PublishRebuildProgress(ownerID, rb.CampaignID, "Importance scores updated")

	if _, err := o.changelog.MarkApplied(ctx, snapshotIDs); err != nil {
		return err
	}

	meta := map[string]any{
		"communities":     len(communities),
		"entities":        g.NodeCount(),
		"applied_entries": len(snapshotIDs),
	}
	if err := o.rebuilds.MarkCompleted(ctx, rb.ID, meta); err != nil {
		return err
	}
	o.recorder.ResetAccumulator(ctx, rb.CampaignID)

	duration := time.Since(start)
	telemetry.RebuildsTotal.WithLabelValues(string(rb.RebuildType), "completed").Inc()
	telemetry.RebuildDuration.WithLabelValues(string(rb.RebuildType)).Observe(duration.Seconds())
	o.recordTelemetry(ctx, rb, len(communities), duration)

	o.publisher.PublishRebuildCompleted(ownerID, rb.CampaignID, len(communities))
	slog.Info("Rebuild completed",
		"rebuild_id", rb.ID, "campaign_id", rb.CampaignID,
		"type", rb.RebuildType, "communities", len(communities),
		"duration", duration)
	return nil
}

// recalculateImportance recomputes PageRank, betweenness, hierarchy, and
// the combined score for the whole campaign in one pass over the loaded
// graph. Manual overrides live in entity metadata and replace the computed
// value at read time, so stored rows always hold the computed scores.
func (o *Orchestrator) recalculateImportance(ctx context.Context, campaignID string, g *graph.Graph) error {
	if g.NodeCount() == 0 {
		return nil
	}

	pagerank := graph.PageRankNormalized(g)
	betweenness := graph.BetweennessNormalized(g)

	communities, err := o.communities.ListCommunities(ctx, campaignID)
	if err != nil {
		return err
	}
	hierarchy := graph.HierarchyScores(g, communities)

	rows := make([]services.ImportanceUpsert, 0, g.NodeCount())
	for i, id := range g.Nodes {
		h := hierarchy[id]
		rows = append(rows, services.ImportanceUpsert{
			EntityID:              id,
			CampaignID:            campaignID,
			PageRank:              pagerank[i],
			BetweennessCentrality: betweenness[i],
			HierarchyLevel:        h,
			ImportanceScore:       graph.CombinedImportance(pagerank[i], betweenness[i], h),
		})
	}
	return o.communities.UpsertImportanceBatch(ctx, rows)
}

func (o *Orchestrator) recordTelemetry(ctx context.Context, rb *ent.RebuildStatus, communityCount int, duration time.Duration) {
	attrs := map[string]any{
		"rebuild_id":  rb.ID,
		"type":        string(rb.RebuildType),
		"duration_ms": duration.Milliseconds(),
		"communities": communityCount,
	}
	if prev, err := o.previousCompletion(ctx, rb); err == nil && !prev.IsZero() {
		attrs["ms_since_last_rebuild"] = time.Since(prev).Milliseconds()
	}
	o.telemetrySv.Record(ctx, rb.CampaignID, "rebuild.completed", attrs)
}

// previousCompletion finds the completion time of the campaign's prior
// rebuild, for the time-since-last-rebuild telemetry attribute.
func (o *Orchestrator) previousCompletion(ctx context.Context, rb *ent.RebuildStatus) (time.Time, error) {
	prev, err := o.client.RebuildStatus.Query().
		Where(
			rebuildstatus.CampaignID(rb.CampaignID),
			rebuildstatus.StatusEQ(rebuildstatus.StatusCompleted),
			rebuildstatus.IDNEQ(rb.ID),
		).
		Order(ent.Desc(rebuildstatus.FieldCompletedAt)).
		First(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if prev.CompletedAt == nil {
		return time.Time{}, nil
	}
	return *prev.CompletedAt, nil
}

// claimNext atomically claims the oldest pending rebuild.
func (o *Orchestrator) claimNext(ctx context.Context) (*ent.RebuildStatus, error) {
	tx, err := o.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rb, err := tx.RebuildStatus.Query().
		Where(rebuildstatus.StatusEQ(rebuildstatus.StatusPending)).
		Order(ent.Asc(rebuildstatus.FieldCreatedAt)).
		Limit(1).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, errNoRebuilds
		}
		return nil, fmt.Errorf("failed to query pending rebuilds: %w", err)
	}

	rb, err = rb.Update().
		SetStatus(rebuildstatus.StatusInProgress).
		SetLastHeartbeatAt(time.Now()).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to claim rebuild: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return rb, nil
}

func (o *Orchestrator) runHeartbeat(ctx context.Context, rebuildID string) {
	ticker := time.NewTicker(o.queueCfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.rebuilds.Heartbeat(ctx, rebuildID); err != nil {
				slog.Warn("Rebuild heartbeat failed", "rebuild_id", rebuildID, "error", err)
			}
		}
	}
}

func (o *Orchestrator) campaignOwner(ctx context.Context, campaignID string) (string, error) {
	c, err := o.client.Campaign.Query().
		Where(campaign.ID(campaignID)).
		Select(campaign.FieldOwnerID).
		Only(ctx)
	if err != nil {
		return "", err
	}
	return c.OwnerID, nil
}
