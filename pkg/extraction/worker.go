package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/ent/extractiontask"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/telemetry"
)

// TaskExecutor processes one claimed task. Returned errors are classified
// with the package's TaskError constructors; anything else counts as
// transient.
type TaskExecutor interface {
	Execute(ctx context.Context, task *ent.ExtractionTask) error
}

// terminalFailureReporter lets an executor react when its task dies for
// good (mark the resource failed, notify the user). Optional.
type terminalFailureReporter interface {
	ReportTerminalFailure(ctx context.Context, task *ent.ExtractionTask, taskErr *TaskError)
}

// Worker is a single queue worker that polls for and processes tasks.
type Worker struct {
	id       string
	podID    string
	client   *ent.Client
	cfg      *config.QueueConfig
	extCfg   *config.ExtractionConfig
	executor TaskExecutor
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a queue worker.
func NewWorker(id, podID string, client *ent.Client, cfg *config.QueueConfig, extCfg *config.ExtractionConfig, executor TaskExecutor) *Worker {
	return &Worker{
		id:       id,
		podID:    podID,
		client:   client,
		cfg:      cfg,
		extCfg:   extCfg,
		executor: executor,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker and waits for the current task to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "queue", "extraction")
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoTasksAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing task", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// pollAndProcess checks capacity, claims a task, and processes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	// Best-effort global capacity check; racy across workers but bounded
	// by worker count and mitigated by poll jitter.
	activeCount, err := w.client.ExtractionTask.Query().
		Where(extractiontask.StatusEQ(extractiontask.StatusInProgress)).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("checking active tasks: %w", err)
	}
	if activeCount >= w.cfg.MaxConcurrentTasks {
		return ErrAtCapacity
	}

	task, err := w.claimNextTask(ctx)
	if err != nil {
		return err
	}

	log := slog.With("task_id", task.ID, "worker_id", w.id,
		"campaign_id", task.CampaignID, "resource_id", task.ResourceID)
	log.Info("Task claimed", "attempt", task.Attempt)
	telemetry.QueueWorkersActive.WithLabelValues("extraction").Inc()
	defer telemetry.QueueWorkersActive.WithLabelValues("extraction").Dec()

	taskCtx, cancelTask := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancelTask()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(taskCtx)
	go w.runHeartbeat(heartbeatCtx, task.ID)

	execErr := w.executor.Execute(taskCtx, task)
	cancelHeartbeat()

	if execErr == nil {
		if err := w.client.ExtractionTask.UpdateOneID(task.ID).
			SetStatus(extractiontask.StatusCompleted).
			SetCompletedAt(time.Now()).
			Exec(context.Background()); err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		telemetry.ExtractionTasksTotal.WithLabelValues("completed").Inc()
		log.Info("Task completed")
		return nil
	}

	if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		execErr = Transient(fmt.Errorf("task timed out after %v", w.cfg.TaskTimeout))
	}
	return w.handleFailure(task, classify(execErr), log)
}

// handleFailure applies the retry policy: transient failures requeue with
// exponential backoff (2s, 4s, 8s) until the attempt budget runs out;
// rate limits requeue after the provider's hint; permanent and memory
// failures terminate immediately with their error code.
func (w *Worker) handleFailure(task *ent.ExtractionTask, taskErr *TaskError, log *slog.Logger) error {
	ctx := context.Background()
	attempt := task.Attempt + 1

	var delay time.Duration
	retryable := false
	switch taskErr.class {
	case classTransient:
		if attempt < w.extCfg.MaxAttempts {
			retryable = true
			delay = w.extCfg.RetryBaseDelay << (attempt - 1)
		}
	case classRateLimited:
		if attempt < w.extCfg.MaxAttempts {
			retryable = true
			delay = taskErr.RetryAfter
			if delay <= 0 {
				delay = 30 * time.Second
			}
		}
	case classPermanent, classMemory:
		// never retried
	}

	if retryable {
		log.Warn("Task failed, requeueing", "attempt", attempt, "delay", delay, "error", taskErr)
		err := w.client.ExtractionTask.UpdateOneID(task.ID).
			SetStatus(extractiontask.StatusPending).
			SetAttempt(attempt).
			SetNotBefore(time.Now().Add(delay)).
			SetErrorMessage(taskErr.Error()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to requeue task: %w", err)
		}
		telemetry.ExtractionTasksTotal.WithLabelValues("retried").Inc()
		return nil
	}

	log.Error("Task failed permanently", "attempt", attempt, "code", taskErr.Code, "error", taskErr)
	if reporter, ok := w.executor.(terminalFailureReporter); ok {
		reporter.ReportTerminalFailure(ctx, task, taskErr)
	}
	update := w.client.ExtractionTask.UpdateOneID(task.ID).
		SetStatus(extractiontask.StatusFailed).
		SetAttempt(attempt).
		SetCompletedAt(time.Now()).
		SetErrorMessage(taskErr.Error())
	if taskErr.Code != "" {
		update.SetErrorCode(taskErr.Code)
	}
	if err := update.Exec(ctx); err != nil {
		return fmt.Errorf("failed to fail task: %w", err)
	}
	telemetry.ExtractionTasksTotal.WithLabelValues("failed").Inc()
	return nil
}

// claimNextTask atomically claims the next pending task using
// FOR UPDATE SKIP LOCKED, ordered by creation for FIFO processing.
func (w *Worker) claimNextTask(ctx context.Context) (*ent.ExtractionTask, error) {
	tx, err := w.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	task, err := tx.ExtractionTask.Query().
		Where(
			extractiontask.StatusEQ(extractiontask.StatusPending),
			extractiontask.Or(
				extractiontask.NotBeforeIsNil(),
				extractiontask.NotBeforeLTE(time.Now()),
			),
		).
		Order(ent.Asc(extractiontask.FieldCreatedAt)).
		Limit(1).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNoTasksAvailable
		}
		return nil, fmt.Errorf("failed to query pending task: %w", err)
	}

	now := time.Now()
	task, err = task.Update().
		SetStatus(extractiontask.StatusInProgress).
		SetStartedAt(now).
		SetLastHeartbeatAt(now).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return task, nil
}

// runHeartbeat refreshes last_heartbeat_at for orphan detection.
func (w *Worker) runHeartbeat(ctx context.Context, taskID string) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.client.ExtractionTask.UpdateOneID(taskID).
				SetLastHeartbeatAt(time.Now()).
				Exec(ctx); err != nil {
				slog.Warn("Heartbeat update failed", "task_id", taskID, "error", err)
			}
		}
	}
}
