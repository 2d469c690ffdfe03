package notifications

import (
	"fmt"

	"github.com/loresmith/loresmith/pkg/models"
)

// Publisher is the typed facade components use to emit lifecycle
// notifications. Each method builds one closed-vocabulary payload and hands
// it to the owning user's hub.
type Publisher struct {
	manager *Manager
}

// NewPublisher creates a Publisher over a hub manager.
func NewPublisher(manager *Manager) *Publisher {
	return &Publisher{manager: manager}
}

// Publish sends a raw payload. Prefer the typed helpers.
func (p *Publisher) Publish(userID string, payload models.NotificationPayload) {
	p.manager.Publish(userID, payload)
}

// PublishShardsGenerated reports freshly discovered shards, streamed per
// chunk during extraction.
func (p *Publisher) PublishShardsGenerated(userID, campaignID, resourceName string, chunk, count int) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationShardsGenerated,
		Title:   "Shards Discovered",
		Message: fmt.Sprintf("Found %d shards in %s (chunk %d)", count, resourceName, chunk),
		Data: map[string]any{
			"campaignId": campaignID,
			"resource":   resourceName,
			"chunk":      chunk,
			"count":      count,
		},
	})
}

// PublishExtractionSummary reports the aggregate result of one extraction.
// A zero count becomes a "No Shards Found" notification.
func (p *Publisher) PublishExtractionSummary(userID, campaignID, resourceName string, total int) {
	if total == 0 {
		p.manager.Publish(userID, models.NotificationPayload{
			Type:    models.NotificationIndexingCompleted,
			Title:   "No Shards Found",
			Message: fmt.Sprintf("No structured content found in %s", resourceName),
			Data: map[string]any{
				"campaignId": campaignID,
				"resource":   resourceName,
				"count":      0,
			},
		})
		return
	}
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationIndexingCompleted,
		Title:   "Indexing Complete",
		Message: fmt.Sprintf("Extracted %d shards from %s", total, resourceName),
		Data: map[string]any{
			"campaignId": campaignID,
			"resource":   resourceName,
			"count":      total,
		},
	})
}

// PublishDiagnostic emits a hidden engineering-detail notification that the
// UI does not render in the list.
func (p *Publisher) PublishDiagnostic(userID, title, message string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["hidden"] = true
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationError,
		Title:   title,
		Message: message,
		Data:    data,
	})
}

// PublishFileStatus reports a file lifecycle change. Hidden: the UI applies
// it in place instead of rendering a list entry.
func (p *Publisher) PublishFileStatus(userID, fileKey, status string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationFileStatusUpdated,
		Title:   "File Status",
		Message: fmt.Sprintf("%s is now %s", fileKey, status),
		Data: map[string]any{
			"fileKey": fileKey,
			"status":  status,
			"hidden":  true,
		},
	})
}

// PublishFileUploaded reports a finished upload.
func (p *Publisher) PublishFileUploaded(userID, fileKey, filename string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationFileUploaded,
		Title:   "File Uploaded",
		Message: fmt.Sprintf("%s uploaded", filename),
		Data: map[string]any{
			"fileKey":  fileKey,
			"filename": filename,
		},
	})
}

// PublishFileUploadFailed reports a failed or expired upload.
func (p *Publisher) PublishFileUploadFailed(userID, fileKey, reason string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationFileUploadFailed,
		Title:   "Upload Failed",
		Message: reason,
		Data: map[string]any{
			"fileKey": fileKey,
		},
	})
}

// PublishIndexingStarted reports the start of extraction for a resource.
func (p *Publisher) PublishIndexingStarted(userID, campaignID, resourceName string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationIndexingStarted,
		Title:   "Indexing Started",
		Message: fmt.Sprintf("Extracting entities from %s", resourceName),
		Data: map[string]any{
			"campaignId": campaignID,
			"resource":   resourceName,
		},
	})
}

// PublishIndexingFailed reports a permanently failed extraction.
func (p *Publisher) PublishIndexingFailed(userID, campaignID, resourceName, reason string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationIndexingFailed,
		Title:   "Indexing Failed",
		Message: fmt.Sprintf("Could not extract entities from %s: %s", resourceName, reason),
		Data: map[string]any{
			"campaignId": campaignID,
			"resource":   resourceName,
		},
	})
}

// PublishCampaignFileAdded reports a successful resource attach.
func (p *Publisher) PublishCampaignFileAdded(userID, campaignID, fileName string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationCampaignFileAdded,
		Title:   "File Added",
		Message: fmt.Sprintf("%s added to campaign", fileName),
		Data: map[string]any{
			"campaignId": campaignID,
			"fileName":   fileName,
		},
	})
}

// PublishRebuildStarted reports a rebuild entering in_progress.
func (p *Publisher) PublishRebuildStarted(userID, campaignID, rebuildType string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationRebuildStarted,
		Title:   "Rebuild Started",
		Message: fmt.Sprintf("%s graph rebuild started", rebuildType),
		Data: map[string]any{
			"campaignId":  campaignID,
			"rebuildType": rebuildType,
		},
	})
}

// PublishRebuildProgress reports intermediate rebuild progress.
func (p *Publisher) PublishRebuildProgress(userID, campaignID, phase string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationRebuildProgress,
		Title:   "Rebuild Progress",
		Message: phase,
		Data: map[string]any{
			"campaignId": campaignID,
			"phase":      phase,
		},
	})
}

// PublishRebuildCompleted reports a finished rebuild.
func (p *Publisher) PublishRebuildCompleted(userID, campaignID string, communities int) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationRebuildCompleted,
		Title:   "Rebuild Complete",
		Message: fmt.Sprintf("Graph rebuilt into %d communities", communities),
		Data: map[string]any{
			"campaignId":  campaignID,
			"communities": communities,
		},
	})
}

// PublishRebuildFailed reports a failed rebuild.
func (p *Publisher) PublishRebuildFailed(userID, campaignID, reason string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationRebuildFailed,
		Title:   "Rebuild Failed",
		Message: reason,
		Data: map[string]any{
			"campaignId": campaignID,
		},
	})
}

// PublishCampaignCreated reports a new campaign.
func (p *Publisher) PublishCampaignCreated(userID, campaignID, name string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationCampaignCreated,
		Title:   "Campaign Created",
		Message: name,
		Data: map[string]any{
			"campaignId": campaignID,
		},
	})
}

// PublishCampaignDeleted reports a deleted campaign.
func (p *Publisher) PublishCampaignDeleted(userID, campaignID string) {
	p.manager.Publish(userID, models.NotificationPayload{
		Type:    models.NotificationCampaignDeleted,
		Title:   "Campaign Deleted",
		Message: "Campaign and its resources were removed",
		Data: map[string]any{
			"campaignId": campaignID,
		},
	})
}
