package rebuild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loresmith/loresmith/ent/rebuildstatus"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/kv"
	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/services"
	"github.com/loresmith/loresmith/pkg/telemetry"
)

// ImportanceReader resolves stored importance scores. nil disables
// importance-aware scoring (count-based fallback).
type ImportanceReader interface {
	GetImportance(ctx context.Context, entityID string) (float64, error)
}

// importanceServiceReader adapts the community service's importance rows.
type importanceServiceReader struct {
	svc *services.CommunityService
}

// NewImportanceReader wraps the community service as an ImportanceReader.
func NewImportanceReader(svc *services.CommunityService) ImportanceReader {
	return &importanceServiceReader{svc: svc}
}

func (r *importanceServiceReader) GetImportance(ctx context.Context, entityID string) (float64, error) {
	row, err := r.svc.GetImportance(ctx, entityID)
	if err != nil {
		return 0, err
	}
	return row.ImportanceScore, nil
}

// Recorder is the write side of the orchestrator: scores and persists
// changelog entries, maintains the per-campaign impact accumulator in KV
// (surviving restarts), and schedules a rebuild when the accumulated impact
// crosses the threshold.
type Recorder struct {
	changelog  *services.ChangelogService
	rebuilds   *services.RebuildStatusService
	importance ImportanceReader
	store      *kv.Store
	cfg        *config.RebuildConfig
}

// NewRecorder creates a Recorder. importance may be nil (count-based
// scoring fallback).
func NewRecorder(
	changelog *services.ChangelogService,
	rebuilds *services.RebuildStatusService,
	importance ImportanceReader,
	store *kv.Store,
	cfg *config.RebuildConfig,
) *Recorder {
	return &Recorder{
		changelog:  changelog,
		rebuilds:   rebuilds,
		importance: importance,
		store:      store,
		cfg:        cfg,
	}
}

func accumulatorKey(campaignID string) string {
	return "campaign:" + campaignID + ":impact_accumulator"
}

func affectedKey(campaignID string) string {
	return "campaign:" + campaignID + ":affected_entities"
}

// Record validates, scores, and appends one changelog entry, then updates
// the accumulator and possibly schedules a rebuild. Implements the
// extraction package's ChangelogRecorder.
func (r *Recorder) Record(ctx context.Context, campaignID string, payload models.ChangelogPayload) error {
	if payload.Timestamp == 0 {
		return services.NewValidationError("timestamp", "required")
	}
	normalizePayload(campaignID, &payload)

	score := ComputeImpact(payload, r.lookupFn(ctx))

	payloadMap, err := payloadToMap(payload)
	if err != nil {
		return err
	}
	if _, err := r.changelog.Append(ctx, services.ChangelogInsert{
		CampaignID:  campaignID,
		Timestamp:   payload.Timestamp,
		Payload:     payloadMap,
		ImpactScore: score,
	}); err != nil {
		return err
	}
	telemetry.ChangelogImpactAccumulated.WithLabelValues(campaignID).Add(score)

	r.accumulate(ctx, campaignID, score, AffectedEntityIDs(payload))
	return nil
}

// accumulate advances the running impact sum and the affected-entity set,
// scheduling a rebuild once the threshold is crossed. KV failures are
// logged: the changelog entry is already durable, and the next record (or a
// manual trigger) catches up.
func (r *Recorder) accumulate(ctx context.Context, campaignID string, score float64, affected []string) {
	total, err := r.store.IncrByFloat(ctx, accumulatorKey(campaignID), score)
	if err != nil {
		slog.Error("Failed to advance impact accumulator",
			"campaign_id", campaignID, "error", err)
		return
	}

	affectedSet := r.mergeAffected(ctx, campaignID, affected)

	if total < r.cfg.ImpactThreshold {
		return
	}

	rebuildType := rebuildstatus.RebuildTypeFull
	var affectedIDs []string
	if len(affectedSet) > 0 && len(affectedSet) <= r.cfg.PartialMaxAffected {
		rebuildType = rebuildstatus.RebuildTypePartial
		affectedIDs = affectedSet
	}

	_, err = r.rebuilds.Schedule(ctx, campaignID, rebuildType, affectedIDs)
	if err != nil {
		if errors.Is(err, services.ErrAlreadyExists) {
			// A rebuild is already queued or running; it will drain the
			// accumulator when it completes.
			return
		}
		slog.Error("Failed to schedule rebuild",
			"campaign_id", campaignID, "type", rebuildType, "error", err)
		return
	}
	slog.Info("Rebuild scheduled",
		"campaign_id", campaignID, "type", rebuildType,
		"accumulated_impact", total, "affected_entities", len(affectedSet))
}

// mergeAffected unions the new affected ids into the campaign's KV set and
// returns the result.
func (r *Recorder) mergeAffected(ctx context.Context, campaignID string, affected []string) []string {
	var existing []string
	if _, err := r.store.Get(ctx, affectedKey(campaignID), &existing); err != nil {
		slog.Warn("Failed to load affected entity set",
			"campaign_id", campaignID, "error", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range affected {
		if !seen[id] {
			seen[id] = true
			existing = append(existing, id)
		}
	}
	if err := r.store.Put(ctx, affectedKey(campaignID), existing, 0); err != nil {
		slog.Warn("Failed to save affected entity set",
			"campaign_id", campaignID, "error", err)
	}
	return existing
}

// ResetAccumulator clears the impact sum and affected set after a completed
// rebuild.
func (r *Recorder) ResetAccumulator(ctx context.Context, campaignID string) {
	if err := r.store.SetFloat(ctx, accumulatorKey(campaignID), 0); err != nil {
		slog.Error("Failed to reset impact accumulator",
			"campaign_id", campaignID, "error", err)
	}
	if err := r.store.Delete(ctx, affectedKey(campaignID)); err != nil {
		slog.Warn("Failed to clear affected entity set",
			"campaign_id", campaignID, "error", err)
	}
}

// AccumulatedImpact reads the current impact sum.
func (r *Recorder) AccumulatedImpact(ctx context.Context, campaignID string) (float64, error) {
	return r.store.GetFloat(ctx, accumulatorKey(campaignID))
}

// lookupFn adapts the ImportanceReader into the pure scoring function's
// lookup shape. A nil reader yields a nil lookup (count-based fallback).
func (r *Recorder) lookupFn(ctx context.Context) ImportanceLookup {
	if r.importance == nil {
		return nil
	}
	return func(entityID string) (float64, bool) {
		score, err := r.importance.GetImportance(ctx, entityID)
		if err != nil {
			return 0, false
		}
		return score, true
	}
}

// normalizePayload guarantees every entity id carries the campaign prefix.
func normalizePayload(campaignID string, payload *models.ChangelogPayload) {
	for i := range payload.EntityUpdates {
		payload.EntityUpdates[i].EntityID = services.NormalizeEntityID(campaignID, payload.EntityUpdates[i].EntityID)
	}
	for i := range payload.RelationshipUpdates {
		payload.RelationshipUpdates[i].FromEntityID = services.NormalizeEntityID(campaignID, payload.RelationshipUpdates[i].FromEntityID)
		payload.RelationshipUpdates[i].ToEntityID = services.NormalizeEntityID(campaignID, payload.RelationshipUpdates[i].ToEntityID)
	}
	for i := range payload.NewEntities {
		payload.NewEntities[i].EntityID = services.NormalizeEntityID(campaignID, payload.NewEntities[i].EntityID)
	}
}

// payloadToMap converts the typed payload into the JSON map the changelog
// row stores.
func payloadToMap(payload models.ChangelogPayload) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal changelog payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to convert changelog payload: %w", err)
	}
	return m, nil
}
