package extraction

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/pkg/services"
)

// ShardCandidate is one shard before persistence validation.
type ShardCandidate struct {
	ID        string
	Text      string
	Metadata  ShardMetadata
	SourceRef string
}

// ShardMetadata carries the routing fields every shard needs.
type ShardMetadata struct {
	CampaignID   string  `json:"campaignId"`
	ResourceID   string  `json:"resourceId"`
	ResourceName string  `json:"resourceName"`
	EntityType   string  `json:"entityType"`
	Confidence   float64 `json:"confidence"`
	SourceRef    string  `json:"sourceRef"`
}

// ShardFactoryResult separates valid inserts from rejected candidates.
type ShardFactoryResult struct {
	Inserts  []services.ShardInsert
	Rejected []string // human-readable reasons, emitted as a hidden diagnostic
}

// BuildShards is the pure transformer from parsed AI-search content into
// shard inserts. Each item of a known content type becomes one shard whose
// text is the canonical JSON of the item. Candidates missing a required
// field are rejected with a reason instead of an error.
func BuildShards(parsed *ParsedContent, campaignID, resourceID, resourceName string, now time.Time) ShardFactoryResult {
	var result ShardFactoryResult
	epochMs := now.UnixMilli()

	for contentType, items := range parsed.Items {
		for i, item := range items {
			text, err := json.Marshal(item)
			if err != nil {
				result.Rejected = append(result.Rejected,
					fmt.Sprintf("%s[%d]: unserializable item: %v", contentType, i, err))
				continue
			}

			confidence := 0.5
			if c, ok := item["confidence"].(float64); ok {
				confidence = c
			}
			sourceRef, _ := item["source_ref"].(string)

			candidate := ShardCandidate{
				ID: fmt.Sprintf("%s_%s_%d_%d_%s",
					resourceID, contentType, epochMs, i, uuid.New().String()[:8]),
				Text: string(text),
				Metadata: ShardMetadata{
					CampaignID:   campaignID,
					ResourceID:   resourceID,
					ResourceName: resourceName,
					EntityType:   contentType,
					Confidence:   confidence,
					SourceRef:    sourceRef,
				},
				SourceRef: sourceRef,
			}

			if reason, ok := validateCandidate(candidate); !ok {
				result.Rejected = append(result.Rejected,
					fmt.Sprintf("%s[%d]: %s", contentType, i, reason))
				continue
			}

			result.Inserts = append(result.Inserts, services.ShardInsert{
				ID:         candidate.ID,
				CampaignID: campaignID,
				ResourceID: resourceID,
				Type:       contentType,
				Content:    candidate.Text,
				Metadata: map[string]any{
					"resourceName": resourceName,
					"confidence":   confidence,
					"sourceRef":    sourceRef,
				},
			})
		}
	}
	return result
}

// validateCandidate rejects shards missing any required field.
func validateCandidate(c ShardCandidate) (string, bool) {
	switch {
	case c.ID == "":
		return "missing id", false
	case c.Text == "":
		return "missing text", false
	case c.Metadata.CampaignID == "":
		return "missing campaign id", false
	case c.Metadata.EntityType == "":
		return "missing entity type", false
	}
	return "", true
}
