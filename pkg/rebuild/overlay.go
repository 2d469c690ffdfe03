package rebuild

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/services"
)

// Overlay is the read-time projection of unapplied changelog entries.
// Clients layer it over stale graph reads to see "current" world state
// without waiting for the next rebuild.
type Overlay struct {
	// EntityState maps entity id to its latest unapplied change type.
	EntityState map[string]string `json:"entityState"`

	// RelationshipState maps "from::to" to the latest relationship type.
	RelationshipState map[string]string `json:"relationshipState"`

	// NewEntities maps entity id to entity type for entities created since
	// the last applied rebuild.
	NewEntities map[string]string `json:"newEntities"`

	// EntryCount is the number of unapplied entries reduced.
	EntryCount int `json:"entryCount"`
}

// OverlayReader reduces unapplied changelog entries into overlay snapshots.
type OverlayReader struct {
	changelog *services.ChangelogService
}

// NewOverlayReader creates an OverlayReader.
func NewOverlayReader(changelog *services.ChangelogService) *OverlayReader {
	return &OverlayReader{changelog: changelog}
}

// RelationshipKey builds the overlay key for a relationship.
func RelationshipKey(fromID, toID string) string {
	return fromID + "::" + toID
}

// Read builds the overlay for a campaign. Entries are reduced in total
// order (timestamp, seq); the last write wins per entity/relationship key.
func (r *OverlayReader) Read(ctx context.Context, campaignID string) (*Overlay, error) {
	entries, err := r.changelog.ListUnapplied(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	payloads := make([]models.ChangelogPayload, 0, len(entries))
	for _, entry := range entries {
		payload, err := payloadFromMap(entry.Payload)
		if err != nil {
			// A malformed historical entry must not break reads forever.
			continue
		}
		payloads = append(payloads, payload)
	}
	overlay := reduceOverlay(payloads)
	overlay.EntryCount = len(entries)
	return overlay, nil
}

// reduceOverlay folds payloads in order; the last write wins per key.
func reduceOverlay(payloads []models.ChangelogPayload) *Overlay {
	overlay := &Overlay{
		EntityState:       make(map[string]string),
		RelationshipState: make(map[string]string),
		NewEntities:       make(map[string]string),
	}
	for _, payload := range payloads {
		for _, ne := range payload.NewEntities {
			overlay.NewEntities[ne.EntityID] = ne.EntityType
		}
		for _, up := range payload.EntityUpdates {
			overlay.EntityState[up.EntityID] = up.ChangeType
		}
		for _, rel := range payload.RelationshipUpdates {
			overlay.RelationshipState[RelationshipKey(rel.FromEntityID, rel.ToEntityID)] = rel.RelationshipType
		}
	}
	return overlay
}

// payloadFromMap recovers the typed payload from a stored changelog row.
func payloadFromMap(m map[string]any) (models.ChangelogPayload, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return models.ChangelogPayload{}, fmt.Errorf("failed to marshal stored payload: %w", err)
	}
	var payload models.ChangelogPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.ChangelogPayload{}, fmt.Errorf("failed to parse stored payload: %w", err)
	}
	return payload, nil
}
