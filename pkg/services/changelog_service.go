package services

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/worldstatechangelog"
)

// ChangelogService persists world-state changelog entries. Entries are
// append-only and totally ordered within a campaign by (timestamp, seq).
type ChangelogService struct {
	client *ent.Client
	db     *stdsql.DB
}

// NewChangelogService creates a new ChangelogService. The raw db handle is
// used for the insertion-order sequence, which Ent does not model.
func NewChangelogService(client *ent.Client, db *stdsql.DB) *ChangelogService {
	return &ChangelogService{client: client, db: db}
}

// ChangelogInsert is one scored entry ready for persistence. The impact
// score is computed by the rebuild recorder before insert.
type ChangelogInsert struct {
	CampaignID        string
	CampaignSessionID string
	Timestamp         int64
	Payload           map[string]any
	ImpactScore       float64
}

// Append persists one entry with applied_to_graph=false. The per-campaign
// insertion sequence comes from a database sequence so concurrent writers
// never collide.
func (s *ChangelogService) Append(httpCtx context.Context, in ChangelogInsert) (*ent.WorldStateChangelog, error) {
	if in.CampaignID == "" {
		return nil, NewValidationError("campaign_id", "required")
	}
	if in.Timestamp == 0 {
		return nil, NewValidationError("timestamp", "required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var seq int64
	if err := s.querySeq(ctx, &seq); err != nil {
		return nil, err
	}

	builder := s.client.WorldStateChangelog.Create().
		SetID(uuid.New().String()).
		SetSeq(seq).
		SetCampaignID(in.CampaignID).
		SetTimestamp(in.Timestamp).
		SetPayload(in.Payload).
		SetImpactScore(in.ImpactScore).
		SetAppliedToGraph(false)
	if in.CampaignSessionID != "" {
		builder.SetCampaignSessionID(in.CampaignSessionID)
	}

	entry, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to append changelog entry: %w", err)
	}
	return entry, nil
}

// querySeq pulls the next value from the shared changelog sequence.
func (s *ChangelogService) querySeq(ctx context.Context, seq *int64) error {
	err := s.db.QueryRowContext(ctx, "SELECT nextval('world_state_changelog_seq')").Scan(seq)
	if err != nil {
		return fmt.Errorf("failed to get changelog sequence: %w", err)
	}
	return nil
}

// ListUnapplied returns unapplied entries for a campaign in total order.
func (s *ChangelogService) ListUnapplied(ctx context.Context, campaignID string) ([]*ent.WorldStateChangelog, error) {
	entries, err := s.client.WorldStateChangelog.Query().
		Where(
			worldstatechangelog.CampaignID(campaignID),
			worldstatechangelog.AppliedToGraph(false),
		).
		Order(
			ent.Asc(worldstatechangelog.FieldTimestamp),
			ent.Asc(worldstatechangelog.FieldSeq),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unapplied changelog entries: %w", err)
	}
	return entries, nil
}

// MarkApplied flips applied_to_graph for the snapshotted entry ids.
func (s *ChangelogService) MarkApplied(httpCtx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.client.WorldStateChangelog.Update().
		Where(worldstatechangelog.IDIn(ids...)).
		SetAppliedToGraph(true).
		Save(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to mark changelog entries applied: %w", err)
	}
	return n, nil
}

// ListRecent returns the newest entries for a campaign, for debugging and
// the overlay endpoint's bounded reads.
func (s *ChangelogService) ListRecent(ctx context.Context, campaignID string, limit int) ([]*ent.WorldStateChangelog, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := s.client.WorldStateChangelog.Query().
		Where(worldstatechangelog.CampaignID(campaignID)).
		Order(
			ent.Desc(worldstatechangelog.FieldTimestamp),
			ent.Desc(worldstatechangelog.FieldSeq),
		).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent changelog entries: %w", err)
	}
	return entries, nil
}
