package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// NotificationPayload is the wire format for every event delivered on a
// user's SSE stream. Timestamp is UTC epoch milliseconds, stamped at publish.
type NotificationPayload struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Hidden reports whether the payload carries data.hidden=true, meaning the
// client applies it silently instead of rendering it in the notification list.
func (p *NotificationPayload) Hidden() bool {
	if p.Data == nil {
		return false
	}
	hidden, _ := p.Data["hidden"].(bool)
	return hidden
}

// DedupKey returns the stable (timestamp, type, data-hash) tuple clients use
// to deduplicate at-least-once deliveries across reconnects.
func (p *NotificationPayload) DedupKey() string {
	return fmt.Sprintf("%d:%s:%s", p.Timestamp, p.Type, hashData(p.Data))
}

// hashData produces a stable hash of the data map: keys are sorted before
// marshaling so the same logical payload always hashes identically.
func hashData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		vb, err := json.Marshal(data[k])
		if err != nil {
			continue
		}
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(vb)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Notification type vocabulary. Closed set: every notification published
// anywhere in the backend uses one of these constants.
const (
	NotificationShardsGenerated    = "shards_generated"
	NotificationShardApproved      = "shard_approved"
	NotificationShardRejected      = "shard_rejected"
	NotificationFileUploaded       = "file_uploaded"
	NotificationFileUploadFailed   = "file_upload_failed"
	NotificationIndexingStarted    = "indexing_started"
	NotificationIndexingCompleted  = "indexing_completed"
	NotificationIndexingFailed     = "indexing_failed"
	NotificationCampaignFileAdded  = "campaign_file_added"
	NotificationFileStatusUpdated  = "file_status_updated"
	NotificationCampaignCreated    = "campaign_created"
	NotificationCampaignDeleted    = "campaign_deleted"
	NotificationRebuildStarted     = "rebuild_started"
	NotificationRebuildProgress    = "rebuild_progress"
	NotificationRebuildCompleted   = "rebuild_completed"
	NotificationRebuildFailed      = "rebuild_failed"
	NotificationRebuildCancelled   = "rebuild_cancelled"
	NotificationSuccess            = "success"
	NotificationError              = "error"
	NotificationConnected          = "connected"
	NotificationDurableObjectReset = "durable-object-reset"

	// NotificationSystemPrefix namespaces internal system events ("system:*").
	NotificationSystemPrefix = "system:"
)
