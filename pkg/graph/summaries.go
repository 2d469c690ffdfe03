package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/entity"
	"github.com/loresmith/loresmith/ent/entityrelationship"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/llm"
	"github.com/loresmith/loresmith/pkg/services"
)

// Summary generation bounds: members and relationships per prompt, key
// entities per summary, and content truncation length.
const (
	summaryMaxMembers       = 50
	summaryMaxRelationships = 50
	summaryMaxKeyEntities   = 10
	summaryContentTruncate  = 200
)

// Summarizer generates LLM-backed community summaries. Batches run
// sequentially to respect provider rate limits; one failed community never
// aborts the batch.
type Summarizer struct {
	client      *ent.Client
	llm         llm.Client
	communities *services.CommunityService
	cfg         *config.LLMConfig
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(client *ent.Client, llmClient llm.Client, communities *services.CommunityService, cfg *config.LLMConfig) *Summarizer {
	return &Summarizer{
		client:      client,
		llm:         llmClient,
		communities: communities,
		cfg:         cfg,
	}
}

// SummarizeAll regenerates summaries for every given community, returning
// the number that succeeded.
func (s *Summarizer) SummarizeAll(ctx context.Context, communities []*ent.Community) int {
	succeeded := 0
	for _, c := range communities {
		if err := ctx.Err(); err != nil {
			slog.Info("Summary batch cancelled", "remaining", len(communities)-succeeded)
			break
		}
		if err := s.summarizeOne(ctx, c); err != nil {
			slog.Warn("Community summary failed",
				"community_id", c.ID, "campaign_id", c.CampaignID, "error", err)
			continue
		}
		succeeded++
	}
	return succeeded
}

func (s *Summarizer) summarizeOne(ctx context.Context, c *ent.Community) error {
	members, err := s.loadMembers(ctx, c)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("community %s has no loadable members", c.ID)
	}
	relations, err := s.loadIntraRelationships(ctx, c)
	if err != nil {
		return err
	}

	prompt := buildSummaryPrompt(c.Level, members, relations)
	text, err := s.llm.Complete(ctx, llm.CompletionRequest{
		System:      summarySystemPrompt,
		Prompt:      prompt,
		Temperature: s.cfg.SummaryTemperature,
		MaxTokens:   s.cfg.SummaryMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("summary completion failed: %w", err)
	}

	keyEntities := extractKeyEntities(text, members)
	_, err = s.communities.SaveSummary(ctx, c.ID, c.CampaignID, c.Level, text, keyEntities)
	return err
}

// memberInfo is the minimal entity view a summary prompt needs.
type memberInfo struct {
	ID      string
	Name    string
	Type    string
	Content string
}

func (s *Summarizer) loadMembers(ctx context.Context, c *ent.Community) ([]memberInfo, error) {
	ids := c.EntityIds
	if len(ids) > summaryMaxMembers {
		ids = ids[:summaryMaxMembers]
	}
	rows, err := s.client.Entity.Query().
		Where(entity.IDIn(ids...)).
		Select(entity.FieldID, entity.FieldName, entity.FieldEntityType, entity.FieldContent).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load community members: %w", err)
	}

	members := make([]memberInfo, 0, len(rows))
	for _, row := range rows {
		content := row.Content
		if len(content) > summaryContentTruncate {
			content = content[:summaryContentTruncate] + "…"
		}
		members = append(members, memberInfo{
			ID:      row.ID,
			Name:    row.Name,
			Type:    row.EntityType,
			Content: content,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members, nil
}

func (s *Summarizer) loadIntraRelationships(ctx context.Context, c *ent.Community) ([]string, error) {
	memberSet := make(map[string]bool, len(c.EntityIds))
	for _, id := range c.EntityIds {
		memberSet[id] = true
	}

	rows, err := s.client.EntityRelationship.Query().
		Where(
			entityrelationship.CampaignID(c.CampaignID),
			entityrelationship.FromEntityIDIn(c.EntityIds...),
		).
		Limit(summaryMaxRelationships * 2).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load community relationships: %w", err)
	}

	var lines []string
	for _, r := range rows {
		if !memberSet[r.ToEntityID] {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s -[%s]-> %s", r.FromEntityID, r.RelationshipType, r.ToEntityID))
		if len(lines) >= summaryMaxRelationships {
			break
		}
	}
	return lines, nil
}

const summarySystemPrompt = "You are a campaign lore archivist. Write a cohesive prose summary of the " +
	"given group of entities and their relationships. Mention the most significant entities by name."

// buildSummaryPrompt renders the level-aware prompt. Level 0 asks for a
// world-level view, deeper levels narrow the scope.
func buildSummaryPrompt(level int, members []memberInfo, relations []string) string {
	var scope string
	switch level {
	case 0:
		scope = "Summarize this world-level group: the major factions, arcs, and places it spans."
	case 1:
		scope = "Summarize this region-level group: how its entities relate within the larger world."
	case 2:
		scope = "Summarize this location-level group: the specific place or cluster these entities share."
	default:
		scope = "Summarize this closely-knit group of entities and what binds them."
	}

	var b strings.Builder
	b.WriteString(scope)
	b.WriteString("\n\nEntities:\n")
	for _, m := range members {
		b.WriteString(fmt.Sprintf("- %s (%s)", m.Name, m.Type))
		if m.Content != "" {
			b.WriteString(": " + m.Content)
		}
		b.WriteString("\n")
	}
	if len(relations) > 0 {
		b.WriteString("\nRelationships:\n")
		for _, r := range relations {
			b.WriteString("- " + r + "\n")
		}
	}
	return b.String()
}

// extractKeyEntities picks up to ten members whose names appear verbatim in
// the summary text, in member order.
func extractKeyEntities(summary string, members []memberInfo) []string {
	lower := strings.ToLower(summary)
	var keys []string
	for _, m := range members {
		if m.Name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(m.Name)) {
			keys = append(keys, m.ID)
			if len(keys) >= summaryMaxKeyEntities {
				break
			}
		}
	}
	return keys
}
