package services

import (
	"context"
	"fmt"
	"time"

	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/campaign"
	"github.com/loresmith/loresmith/ent/file"
	"github.com/loresmith/loresmith/ent/messagehistory"
)

// AssessmentService computes the user-state, recommendation, and activity
// shapes served by the assessment endpoints.
type AssessmentService struct {
	client *ent.Client
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(client *ent.Client) *AssessmentService {
	return &AssessmentService{client: client}
}

// UserState summarizes a user's standing in the product funnel.
type UserState struct {
	CampaignCount  int    `json:"campaignCount"`
	FileCount      int    `json:"fileCount"`
	CompletedFiles int    `json:"completedFiles"`
	HasActivity    bool   `json:"hasActivity"`
	Stage          string `json:"stage"` // new, uploading, building, active
}

// GetUserState computes the user's current state.
func (s *AssessmentService) GetUserState(ctx context.Context, userID string) (*UserState, error) {
	campaigns, err := s.client.Campaign.Query().
		Where(campaign.OwnerID(userID)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}
	files, err := s.client.File.Query().
		Where(file.OwnerID(userID)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	completed, err := s.client.File.Query().
		Where(file.OwnerID(userID), file.StatusEQ(file.StatusCompleted)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed files: %w", err)
	}
	hasActivity, err := s.client.MessageHistory.Query().
		Where(messagehistory.UserID(userID)).
		Exist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check activity: %w", err)
	}

	stage := "new"
	switch {
	case campaigns > 0 && completed > 0:
		stage = "active"
	case campaigns > 0:
		stage = "building"
	case files > 0:
		stage = "uploading"
	}

	return &UserState{
		CampaignCount:  campaigns,
		FileCount:      files,
		CompletedFiles: completed,
		HasActivity:    hasActivity,
		Stage:          stage,
	}, nil
}

// Recommendation is one suggested next action.
type Recommendation struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// GetRecommendations derives suggested next steps from the user state.
func (s *AssessmentService) GetRecommendations(ctx context.Context, userID string) ([]Recommendation, error) {
	state, err := s.GetUserState(ctx, userID)
	if err != nil {
		return nil, err
	}

	var recs []Recommendation
	if state.FileCount == 0 {
		recs = append(recs, Recommendation{
			Action: "upload_file",
			Reason: "Upload a source document to start building your world",
		})
	}
	if state.CampaignCount == 0 {
		recs = append(recs, Recommendation{
			Action: "create_campaign",
			Reason: "Create a campaign to organize your documents",
		})
	}
	if state.CampaignCount > 0 && state.CompletedFiles > 0 {
		recs = append(recs, Recommendation{
			Action: "attach_resource",
			Reason: "Attach a completed file to extract entities into your knowledge graph",
		})
	}
	if recs == nil {
		recs = []Recommendation{}
	}
	return recs, nil
}

// ActivityEntry is one recent-activity row.
type ActivityEntry struct {
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// GetActivity returns the user's recent activity, newest first.
func (s *AssessmentService) GetActivity(ctx context.Context, userID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	msgs, err := s.client.MessageHistory.Query().
		Where(messagehistory.UserID(userID), messagehistory.RoleEQ(messagehistory.RoleUser)).
		Order(ent.Desc(messagehistory.FieldCreatedAt)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity messages: %w", err)
	}
	files, err := s.client.File.Query().
		Where(file.OwnerID(userID)).
		Order(ent.Desc(file.FieldUpdatedAt)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity files: %w", err)
	}

	entries := make([]ActivityEntry, 0, len(msgs)+len(files))
	for _, m := range msgs {
		entries = append(entries, ActivityEntry{
			Kind:      "message",
			Detail:    m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	for _, f := range files {
		entries = append(entries, ActivityEntry{
			Kind:      "file:" + string(f.Status),
			Detail:    f.Name,
			Timestamp: f.UpdatedAt,
		})
	}
	sortActivityDesc(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func sortActivityDesc(entries []ActivityEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Timestamp.After(entries[j-1].Timestamp); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
