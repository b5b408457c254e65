package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"physioheal/internal/config"
	"physioheal/internal/database"
	"physioheal/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeSheets struct {
	mu            sync.Mutex
	err           error
	appendCalls   int
	upsertCalls   int
	contactCalls  int
	lastBookingID int64
}

func (f *fakeSheets) AppendBooking(ctx context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	f.lastBookingID = b.ID
	return f.err
}

func (f *fakeSheets) UpsertBooking(ctx context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	f.lastBookingID = b.ID
	return f.err
}

func (f *fakeSheets) AppendContact(ctx context.Context, m *models.ContactMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactCalls++
	return f.err
}

func (f *fakeSheets) calls() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendCalls, f.upsertCalls, f.contactCalls
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}

func testBooking(id int64) *models.Booking {
	return &models.Booking{
		ID:        id,
		FirstName: "Jane",
		Phone:     "+100",
		Service:   "Manual Therapy",
		Date:      time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		TimeSlot:  "9:00 AM",
		Message:   "pain",
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	if err := worker.EnqueueBooking(ctx, TaskAppend, testBooking(1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.SyncStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if appends, _, _ := sheets.calls(); appends != 1 {
		t.Fatalf("expected append call, got %d", appends)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	if err := worker.EnqueueBooking(ctx, TaskUpsert, testBooking(2)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.SyncStatusRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	if err := worker.EnqueueContact(ctx, &models.ContactMessage{ID: 3, Name: "Ann", Email: "a@b.c"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.SyncStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: TaskAppend, EntityKind: models.EntityBooking, EntityID: 5, Payload: "{broken"}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.SyncStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestSheetsWorker_HandleSheetTask(t *testing.T) {
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(nil, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		task    string
		kind    string
		payload sheetTaskPayload
		wantErr bool
	}{
		{"AppendBooking", TaskAppend, models.EntityBooking, sheetTaskPayload{Booking: testBooking(1)}, false},
		{"UpsertBooking", TaskUpsert, models.EntityBooking, sheetTaskPayload{Booking: testBooking(1)}, false},
		{"AppendContact", TaskAppend, models.EntityContact, sheetTaskPayload{Contact: &models.ContactMessage{ID: 1}}, false},
		{"UpsertContact", TaskUpsert, models.EntityContact, sheetTaskPayload{Contact: &models.ContactMessage{ID: 1}}, true},
		{"MissingBooking", TaskAppend, models.EntityBooking, sheetTaskPayload{}, true},
		{"UnknownKind", TaskAppend, "invoice", sheetTaskPayload{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := worker.handleSheetTask(ctx, tt.task, tt.kind, tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}

	appends, upserts, contacts := sheets.calls()
	if appends != 1 || upserts != 1 || contacts != 1 {
		t.Fatalf("unexpected calls: append=%d upsert=%d contact=%d", appends, upserts, contacts)
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
	if d := policy.NextDelay(1000); d != 5*time.Second {
		t.Fatalf("attempt1000 expected capped 5s, got %s", d)
	}
}

func TestRetryPolicyJitter(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 10 * time.Second, BackoffFactor: 2, MaxDelay: time.Minute, Jitter: 0.2}

	policy.rand = func() float64 { return 0 }
	if d := policy.NextDelay(1); d != 8*time.Second {
		t.Fatalf("low jitter expected 8s, got %s", d)
	}
	policy.rand = func() float64 { return 0.5 }
	if d := policy.NextDelay(2); d != 20*time.Second {
		t.Fatalf("mid jitter expected 20s, got %s", d)
	}
	// верхняя граница не выходит за MaxDelay
	policy.rand = func() float64 { return 0.999 }
	if d := policy.NextDelay(3); d > time.Minute || d < 40*time.Second {
		t.Fatalf("attempt3 expected within [40s, 1m], got %s", d)
	}
	if d := policy.NextDelay(10); d != time.Minute {
		t.Fatalf("capped attempt expected 1m, got %s", d)
	}

	policy.rand = nil
	for i := 0; i < 100; i++ {
		d := policy.NextDelay(1)
		if d < 8*time.Second || d > 12*time.Second {
			t.Fatalf("delay %s outside jitter bounds", d)
		}
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.SheetsSyncConfig{MaxRetries: 3, Jitter: 0.1})
	if p.MaxRetries != 3 || p.Jitter != 0.1 {
		t.Fatalf("unexpected policy %+v", p)
	}
	if p.InitialDelay != 2*time.Second || p.MaxDelay != time.Minute || p.BackoffFactor != 2 {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if !p.Exhausted(3) || p.Exhausted(2) {
		t.Fatalf("unexpected exhaustion for MaxRetries=3")
	}
}

func TestSheetsWorker_EnqueueValidation(t *testing.T) {
	worker := NewSheetsWorker(nil, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	if err := worker.EnqueueBooking(ctx, TaskAppend, &models.Booking{}); err == nil {
		t.Fatalf("expected error for booking without id")
	}
	if err := worker.EnqueueBooking(ctx, "delete", testBooking(1)); err == nil {
		t.Fatalf("expected error for unknown task type")
	}
	if err := worker.EnqueueContact(ctx, nil); err == nil {
		t.Fatalf("expected error for nil contact")
	}
}

func TestSheetsWorker_RedisQueue(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, client, RetryPolicy{}, nil)
	ctx := context.Background()

	if err := worker.EnqueueBooking(ctx, TaskAppend, testBooking(7)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("task should go to redis, not memory")
	}

	items, err := s.List("sheets:queue")
	if err != nil || len(items) != 1 {
		t.Fatalf("expected 1 redis item, got %v (%v)", items, err)
	}
	var queued models.SyncTask
	if err := json.Unmarshal([]byte(items[0]), &queued); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if queued.EntityID != 7 || queued.EntityKind != models.EntityBooking {
		t.Fatalf("unexpected queued task %+v", queued)
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task from redis")
	}
	worker.processTask(ctx, &task)
	if appends, _, _ := sheets.calls(); appends != 1 {
		t.Fatalf("expected 1 append, got %d", appends)
	}
}

func TestSheetsWorker_DeadLetter(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	worker := NewSheetsWorker(nil, &fakeSheets{err: errors.New("quota")}, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	if err := worker.EnqueueContact(ctx, &models.ContactMessage{ID: 11, Name: "Ann"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task from redis")
	}
	worker.processTask(ctx, &task)

	dead, err := s.List("sheets:deadletter")
	if err != nil || len(dead) != 1 {
		t.Fatalf("expected 1 deadletter entry, got %v (%v)", dead, err)
	}
}

func TestSheetsWorker_StartStops(t *testing.T) {
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(nil, sheets, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	if err := worker.EnqueueContact(ctx, &models.ContactMessage{ID: 1, Name: "Ann"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, contacts := sheets.calls(); contacts == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("contact was not synced")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}
