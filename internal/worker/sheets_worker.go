package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"physioheal/internal/logging"
	"physioheal/internal/metrics"
	"physioheal/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskAppend = "append"
	TaskUpsert = "upsert"
)

// TaskStore persists sync tasks so they survive restarts.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// SheetsClient is the subset of the Sheets service used by the worker.
type SheetsClient interface {
	AppendBooking(ctx context.Context, booking *models.Booking) error
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	AppendContact(ctx context.Context, msg *models.ContactMessage) error
}

// sheetTaskPayload is persisted in SyncTask.Payload as JSON.
type sheetTaskPayload struct {
	Booking *models.Booking        `json:"booking,omitempty"`
	Contact *models.ContactMessage `json:"contact,omitempty"`
}

// SheetsWorker mirrors stored submissions into Google Sheets.
type SheetsWorker struct {
	store         TaskStore
	sheets        SheetsClient
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSheetsWorker builds a worker with sane defaults. store and redisClient may be nil.
func NewSheetsWorker(store TaskStore, sheets SheetsClient, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	return &SheetsWorker{
		store:         store,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "sheets:queue",
		deadLetterKey: "sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logging.Component(logger, "sheets_worker"),
	}
}

// EnqueueBooking schedules a booking append or upsert.
func (w *SheetsWorker) EnqueueBooking(ctx context.Context, taskType string, booking *models.Booking) error {
	if booking == nil || booking.ID == 0 {
		return errors.New("booking id is required")
	}
	if taskType != TaskAppend && taskType != TaskUpsert {
		return fmt.Errorf("unknown task type: %s", taskType)
	}
	return w.enqueue(ctx, taskType, models.EntityBooking, booking.ID, sheetTaskPayload{Booking: booking})
}

// EnqueueContact schedules a contact message append.
func (w *SheetsWorker) EnqueueContact(ctx context.Context, msg *models.ContactMessage) error {
	if msg == nil || msg.ID == 0 {
		return errors.New("contact id is required")
	}
	return w.enqueue(ctx, TaskAppend, models.EntityContact, msg.ID, sheetTaskPayload{Contact: msg})
}

// enqueue persists the task and schedules it via redis or the in-memory queue.
func (w *SheetsWorker) enqueue(ctx context.Context, taskType, kind string, entityID int64, payload sheetTaskPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	syncTask := models.SyncTask{
		TaskType:   taskType,
		EntityKind: kind,
		EntityID:   entityID,
		Payload:    string(payloadBytes),
		Status:     models.SyncStatusPending,
		CreatedAt:  time.Now(),
	}

	if w.store != nil {
		if err := w.store.CreateSyncTask(ctx, &syncTask); err != nil {
			return fmt.Errorf("persist sync task: %w", err)
		}
	}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, syncTask); err != nil {
			w.logger.Warn().Err(err).Msg("Redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- syncTask:
	default:
		if w.store == nil {
			return errors.New("sheets queue is full")
		}
		w.logger.Warn().Int64("task_id", syncTask.ID).Msg("In-memory queue full, task left to polling")
	}

	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Sheets worker started")
	defer w.logger.Info().Msg("Sheets worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if w.store == nil {
			w.sleep(ctx)
			continue
		}

		tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("Fetch pending tasks failed")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SheetsWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("Redis BRPOP failed")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Decode redis task failed")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleSheetTask(ctx, task.TaskType, task.EntityKind, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncSyncTask(models.SyncStatusCompleted)
	w.updateStatus(ctx, task, models.SyncStatusCompleted, "", nil)
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, taskType, kind string, payload sheetTaskPayload) error {
	switch kind {
	case models.EntityBooking:
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		switch taskType {
		case TaskAppend:
			return w.sheets.AppendBooking(ctx, payload.Booking)
		case TaskUpsert:
			return w.sheets.UpsertBooking(ctx, payload.Booking)
		}
	case models.EntityContact:
		if payload.Contact == nil {
			return errors.New("contact payload missing")
		}
		if taskType == TaskAppend {
			return w.sheets.AppendContact(ctx, payload.Contact)
		}
	default:
		return fmt.Errorf("unknown entity kind: %s", kind)
	}
	return fmt.Errorf("unknown task type %s for %s", taskType, kind)
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncSyncTask(models.SyncStatusRetry)
	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.updateStatus(ctx, task, models.SyncStatusRetry, cause.Error(), &nextTime)

	// без базы повтор держится только в памяти
	if w.store == nil {
		task.RetryCount = attempt
		time.AfterFunc(time.Until(nextTime), func() {
			select {
			case w.queue <- *task:
			default:
				w.logger.Warn().Str("kind", task.EntityKind).Int64("entity_id", task.EntityID).Msg("Retry dropped, queue full")
			}
		})
	}
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, err error) {
	metrics.IncSyncTask(models.SyncStatusFailed)
	w.logger.Error().Err(err).
		Str("kind", task.EntityKind).
		Int64("entity_id", task.EntityID).
		Msg("Sync task failed")
	w.updateStatus(ctx, task, models.SyncStatusFailed, err.Error(), nil)
	w.pushDeadLetter(ctx, task)
}

func (w *SheetsWorker) updateStatus(ctx context.Context, task *models.SyncTask, status, errMsg string, next *time.Time) {
	if w.store == nil || task.ID == 0 {
		return
	}
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, status, errMsg, next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Str("status", status).Msg("Update task status failed")
	}
}

func (w *SheetsWorker) decodePayload(raw string) (sheetTaskPayload, error) {
	var payload sheetTaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Encode deadletter failed")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Deadletter push failed")
	}
}
