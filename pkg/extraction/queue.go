package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/extractiontask"
)

// Sentinel errors for queue operations.
var (
	// ErrNoTasksAvailable indicates no pending tasks are claimable.
	ErrNoTasksAvailable = errors.New("no tasks available")

	// ErrAtCapacity indicates the global concurrent task limit is reached.
	ErrAtCapacity = errors.New("at capacity")
)

// TaskSpec describes one extraction to enqueue.
type TaskSpec struct {
	Username     string
	CampaignID   string
	ResourceID   string
	ResourceName string
	FileKey      string
	APIKeyRef    string
}

// Queue provides the enqueue side of the extraction pipeline.
type Queue struct {
	client *ent.Client
}

// NewQueue creates a Queue.
func NewQueue(client *ent.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue creates a pending task for (campaignID, resourceID). At most one
// task per key may be pending or in flight: an existing active task is
// returned instead of a duplicate, keeping per-resource extraction strictly
// serial no matter how fast files are attached.
func (q *Queue) Enqueue(httpCtx context.Context, spec TaskSpec) (*ent.ExtractionTask, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	active, err := q.client.ExtractionTask.Query().
		Where(
			extractiontask.CampaignID(spec.CampaignID),
			extractiontask.ResourceID(spec.ResourceID),
			extractiontask.StatusIn(extractiontask.StatusPending, extractiontask.StatusInProgress),
		).
		First(ctx)
	if err == nil {
		return active, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check active tasks: %w", err)
	}

	builder := q.client.ExtractionTask.Create().
		SetID(uuid.New().String()).
		SetUsername(spec.Username).
		SetCampaignID(spec.CampaignID).
		SetResourceID(spec.ResourceID).
		SetResourceName(spec.ResourceName).
		SetFileKey(spec.FileKey).
		SetStatus(extractiontask.StatusPending)
	if spec.APIKeyRef != "" {
		builder.SetAPIKeyRef(spec.APIKeyRef)
	}

	task, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue extraction task: %w", err)
	}
	return task, nil
}

// Status returns the latest task for (campaignID, resourceID).
func (q *Queue) Status(ctx context.Context, campaignID, resourceID string) (*ent.ExtractionTask, error) {
	task, err := q.client.ExtractionTask.Query().
		Where(
			extractiontask.CampaignID(campaignID),
			extractiontask.ResourceID(resourceID),
		).
		Order(ent.Desc(extractiontask.FieldCreatedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNoTasksAvailable
		}
		return nil, fmt.Errorf("failed to query task status: %w", err)
	}
	return task, nil
}
