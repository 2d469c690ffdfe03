package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/campaign"
	"github.com/loresmith/loresmith/ent/campaignresource"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/notifications"
	"github.com/loresmith/loresmith/pkg/services"
	"github.com/loresmith/loresmith/pkg/telemetry"
)

// maxBatchBytes caps the aggregate search-result text one task may process.
// Larger payloads fail with MEMORY_LIMIT_EXCEEDED; the file must be split.
const maxBatchBytes = 4 * 1024 * 1024

// structuredContentQuery is the retrieval prompt sent to AI search. The
// provider answers with the closed-vocabulary JSON object.
const structuredContentQuery = "Extract every structured RPG primitive (monsters, NPCs, spells, items, " +
	"locations, quests, factions, and the rest of the structured content vocabulary) from these documents. " +
	"Respond with a single JSON object keyed by content type, each an array of items with name, " +
	"description, confidence, and relationships."

// ChangelogRecorder records one changelog entry for a projection batch.
// Implemented by the rebuild recorder.
type ChangelogRecorder interface {
	Record(ctx context.Context, campaignID string, payload models.ChangelogPayload) error
}

// Executor runs one extraction task end to end: AI search in chunks, parse,
// shard persistence, graph projection, changelog recording, notifications.
type Executor struct {
	client    *ent.Client
	search    SearchClient
	shards    *services.ShardService
	projector *Projector
	resources *services.ResourceService
	recorder  ChangelogRecorder
	publisher *notifications.Publisher
	cfg       *config.ExtractionConfig
	searchCfg *config.AISearchConfig

	// sleep is injectable so tests skip real chunk delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor.
func NewExecutor(
	client *ent.Client,
	search SearchClient,
	shards *services.ShardService,
	projector *Projector,
	resources *services.ResourceService,
	recorder ChangelogRecorder,
	publisher *notifications.Publisher,
	cfg *config.ExtractionConfig,
	searchCfg *config.AISearchConfig,
) *Executor {
	return &Executor{
		client:    client,
		search:    search,
		shards:    shards,
		projector: projector,
		resources: resources,
		recorder:  recorder,
		publisher: publisher,
		cfg:       cfg,
		searchCfg: searchCfg,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Execute implements TaskExecutor.
func (e *Executor) Execute(ctx context.Context, task *ent.ExtractionTask) error {
	camp, err := e.client.Campaign.Query().
		Where(campaign.ID(task.CampaignID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return Permanent(CodeMissingCampaign,
				fmt.Errorf("campaign %s not found", task.CampaignID))
		}
		return Transient(fmt.Errorf("failed to load campaign: %w", err))
	}
	if camp.RagBasePath == "" {
		return Permanent(CodeMissingCampaign,
			fmt.Errorf("campaign %s has no rag base path", task.CampaignID))
	}

	if _, err := e.client.CampaignResource.Query().
		Where(
			campaignresource.ID(task.ResourceID),
			campaignresource.CampaignID(task.CampaignID),
		).
		Only(ctx); err != nil {
		if ent.IsNotFound(err) {
			return Permanent(CodeDeletedResource,
				fmt.Errorf("resource %s not found", task.ResourceID))
		}
		return Transient(fmt.Errorf("failed to load resource: %w", err))
	}

	if err := e.resources.UpdateStatus(ctx, task.ResourceID, campaignresource.StatusExtracting, ""); err != nil {
		return Transient(fmt.Errorf("failed to mark resource extracting: %w", err))
	}
	e.publisher.PublishIndexingStarted(task.Username, task.CampaignID, task.ResourceName)

	folder := camp.RagBasePath + task.FileKey
	results, err := e.collectResults(ctx, task, folder)
	if err != nil {
		return err
	}

	totalBytes := 0
	for _, r := range results {
		totalBytes += len(r.Text)
	}
	if totalBytes > maxBatchBytes {
		return Memory(fmt.Errorf("aggregate search payload %d bytes exceeds %d", totalBytes, maxBatchBytes))
	}

	merged, parseIssues := e.parseResults(results)
	factory := BuildShards(merged, task.CampaignID, task.ResourceID, task.ResourceName, time.Now())

	if len(factory.Inserts) == 0 {
		e.publisher.PublishExtractionSummary(task.Username, task.CampaignID, task.ResourceName, 0)
		if len(parseIssues) > 0 || len(factory.Rejected) > 0 {
			e.publisher.PublishDiagnostic(task.Username, "Parse Issue",
				"Structured content could not be parsed from search results",
				map[string]any{
					"campaignId":  task.CampaignID,
					"resourceId":  task.ResourceID,
					"parseIssues": parseIssues,
					"rejected":    factory.Rejected,
				})
		}
		return e.finishResource(ctx, task)
	}

	if _, err := e.shards.CreateBatch(ctx, factory.Inserts); err != nil {
		return Transient(fmt.Errorf("failed to persist shard batch: %w", err))
	}
	telemetry.ExtractionShardsTotal.Add(float64(len(factory.Inserts)))

	projection, err := e.projector.Project(ctx, task.CampaignID, merged)
	if err != nil {
		return Transient(fmt.Errorf("failed to project shards: %w", err))
	}

	if !projection.Empty() {
		payload := models.ChangelogPayload{
			Timestamp:           time.Now().UnixMilli(),
			EntityUpdates:       projection.EntityUpdates,
			RelationshipUpdates: projection.RelationshipUpdates,
			NewEntities:         projection.NewEntities,
		}
		if err := e.recorder.Record(ctx, task.CampaignID, payload); err != nil {
			return Transient(fmt.Errorf("failed to record changelog: %w", err))
		}
	}

	dropped := append(append([]string{}, factory.Rejected...), projection.Dropped...)
	if len(dropped) > 0 {
		e.publisher.PublishDiagnostic(task.Username, "Extraction Diagnostics",
			fmt.Sprintf("%d candidates dropped during projection", len(dropped)),
			map[string]any{
				"campaignId": task.CampaignID,
				"resourceId": task.ResourceID,
				"dropped":    dropped,
			})
	}

	e.publisher.PublishExtractionSummary(task.Username, task.CampaignID, task.ResourceName, len(factory.Inserts))
	return e.finishResource(ctx, task)
}

func (e *Executor) finishResource(ctx context.Context, task *ent.ExtractionTask) error {
	if err := e.resources.UpdateStatus(ctx, task.ResourceID, campaignresource.StatusCompleted, ""); err != nil {
		return Transient(fmt.Errorf("failed to mark resource completed: %w", err))
	}
	return nil
}

// collectResults pulls up to MaxChunks chunks of results, pausing between
// chunks, and falls back to one ultra-minimal request (1 result, no
// retries) when both chunks come back empty.
func (e *Executor) collectResults(ctx context.Context, task *ent.ExtractionTask, folder string) ([]SearchResult, error) {
	var all []SearchResult
	for chunk := 1; chunk <= e.cfg.MaxChunks; chunk++ {
		if chunk > 1 {
			if err := e.sleep(ctx, e.cfg.ChunkDelay); err != nil {
				return nil, Transient(err)
			}
		}

		results, err := e.searchWithRetries(ctx, SearchRequest{
			Query:      structuredContentQuery,
			Folder:     folder,
			MaxResults: e.cfg.ChunkSize,
		})
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			e.publisher.PublishShardsGenerated(task.Username, task.CampaignID, task.ResourceName, chunk, len(results))
		}
		all = append(all, results...)
	}

	if len(all) == 0 {
		slog.Info("No results from chunked search, trying ultra-minimal fallback",
			"task_id", task.ID)
		results, err := e.search.Search(ctx, SearchRequest{
			Query:      structuredContentQuery,
			Folder:     folder,
			MaxResults: 1,
		})
		if err == nil {
			all = results
		}
	}
	return all, nil
}

// searchWithRetries performs one chunk request with the class-specific
// retry schedule: 3s/6s/12s after timeouts, 10s/20s/40s after capacity
// errors. Rate limits and permanent errors are surfaced immediately.
func (e *Executor) searchWithRetries(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	var lastErr error
	attempt := 0
	for {
		results, err := e.search.Search(ctx, req)
		if err == nil {
			return results, nil
		}
		lastErr = err

		var schedule []time.Duration
		switch {
		case errors.Is(err, ErrSearchTimeout):
			schedule = e.searchCfg.TimeoutRetryDelays
		case errors.Is(err, ErrSearchCapacity):
			schedule = e.searchCfg.CapacityRetryDelays
		case errors.Is(err, ErrSearchRateLimited):
			return nil, RateLimited(retryAfterFromError(err), err)
		default:
			return nil, Permanent(CodeMalformedPayload, err)
		}

		if attempt >= len(schedule) {
			return nil, Transient(fmt.Errorf("chunk retries exhausted: %w", lastErr))
		}
		if err := e.sleep(ctx, schedule[attempt]); err != nil {
			return nil, Transient(err)
		}
		attempt++
	}
}

// retryAfterFromError digs the retry-after hint out of a rate limit error.
func retryAfterFromError(err error) time.Duration {
	msg := err.Error()
	idx := strings.Index(msg, "retry after ")
	if idx < 0 {
		return 30 * time.Second
	}
	var secs int
	if _, scanErr := fmt.Sscanf(msg[idx:], "retry after %ds", &secs); scanErr != nil || secs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(secs) * time.Second
}

// parseResults merges every result's structured content into one batch,
// collecting parse failures as diagnostics instead of failing the task.
func (e *Executor) parseResults(results []SearchResult) (*ParsedContent, []string) {
	merged := &ParsedContent{Items: make(map[string][]map[string]any)}
	var issues []string
	for i, r := range results {
		parsed, err := ParseAIResponse(r.Text)
		if err != nil {
			issues = append(issues, fmt.Sprintf("result[%d]: %v", i, err))
			continue
		}
		for contentType, items := range parsed.Items {
			merged.Items[contentType] = append(merged.Items[contentType], items...)
		}
		for _, key := range parsed.UnknownKeys {
			issues = append(issues, fmt.Sprintf("result[%d]: unknown content type %q", i, key))
		}
	}
	return merged, issues
}

// ReportTerminalFailure marks the resource failed and notifies the user.
// Called by the worker when a task exhausts its retries or fails
// permanently.
func (e *Executor) ReportTerminalFailure(ctx context.Context, task *ent.ExtractionTask, taskErr *TaskError) {
	if err := e.resources.UpdateStatus(ctx, task.ResourceID, campaignresource.StatusFailed, taskErr.Error()); err != nil {
		slog.Warn("Failed to mark resource failed",
			"resource_id", task.ResourceID, "error", err)
	}
	e.publisher.PublishIndexingFailed(task.Username, task.CampaignID, task.ResourceName, taskErr.Error())
}
