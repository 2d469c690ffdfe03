package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/telemetryevent"
)

// TelemetryService records operational measurements. Best-effort: callers
// log and continue when recording fails.
type TelemetryService struct {
	client *ent.Client
}

// NewTelemetryService creates a new TelemetryService.
func NewTelemetryService(client *ent.Client) *TelemetryService {
	return &TelemetryService{client: client}
}

// Record stores one telemetry event. Errors are logged, not returned —
// telemetry must never fail the operation it measures.
func (s *TelemetryService) Record(httpCtx context.Context, campaignID, kind string, attributes map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	builder := s.client.TelemetryEvent.Create().
		SetID(uuid.New().String()).
		SetKind(kind).
		SetAttributes(attributes)
	if campaignID != "" {
		builder.SetCampaignID(campaignID)
	}
	if err := builder.Exec(ctx); err != nil {
		slog.Warn("Failed to record telemetry event", "kind", kind, "error", err)
	}
}

// ListByKind returns recent telemetry rows of one kind.
func (s *TelemetryService) ListByKind(ctx context.Context, kind string, limit int) ([]*ent.TelemetryEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	evs, err := s.client.TelemetryEvent.Query().
		Where(telemetryevent.Kind(kind)).
		Order(ent.Desc(telemetryevent.FieldCreatedAt)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list telemetry events: %w", err)
	}
	return evs, nil
}
