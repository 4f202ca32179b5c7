package schedule

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/repository"
)

type recordingProducer struct {
	mu       sync.Mutex
	messages []domain.QueueMessage
	err      error
}

func (p *recordingProducer) Enqueue(_ context.Context, message domain.QueueMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message)
	return nil
}

func (p *recordingProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func seedDue(t *testing.T, schedules *repository.MemoryScheduleRepository, id string, due time.Time, active bool) {
	t.Helper()
	err := schedules.Create(context.Background(), &domain.ScheduledReport{
		ID:         id,
		OwnerID:    "owner-1",
		Name:       id,
		ReportType: domain.ReportPosts,
		Format:     domain.FormatJSON,
		Frequency:  domain.FrequencyDaily,
		TimeOfDay:  "09:00",
		IsActive:   active,
		NextRunAt:  due,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestTickEnqueuesDueSchedulesOnce(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	schedules := repository.NewMemoryScheduleRepository()
	runs := repository.NewMemoryRunRepository()
	producer := &recordingProducer{}

	seedDue(t, schedules, "due", now.Add(-time.Minute), true)
	seedDue(t, schedules, "future", now.Add(time.Hour), true)
	seedDue(t, schedules, "paused", now.Add(-time.Hour), false)

	runner := NewRunner(schedules, runs, producer, RunnerConfig{Lease: 5 * time.Minute}, nil)
	runner.now = func() time.Time { return now }

	enqueued, err := runner.Tick(context.Background())
	if err != nil || enqueued != 1 {
		t.Fatalf("expected one run, got %d err=%v", enqueued, err)
	}
	if again, _ := runner.Tick(context.Background()); again != 0 {
		t.Fatalf("expected lease to prevent a second claim, got %d", again)
	}

	message := producer.messages[0]
	if message.ScheduleID != "due" || message.OwnerID != "owner-1" {
		t.Fatalf("unexpected message %+v", message)
	}
	run, err := runs.GetRun(context.Background(), message.RunID)
	if err != nil {
		t.Fatalf("expected run persisted: %v", err)
	}
	if run.Status != domain.RunStatusPending || !run.ScheduledFor.Equal(now.Add(-time.Minute)) {
		t.Fatalf("unexpected run %+v", run)
	}
}

func TestConcurrentRunnersClaimOnce(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	schedules := repository.NewMemoryScheduleRepository()
	runs := repository.NewMemoryRunRepository()
	producer := &recordingProducer{}
	seedDue(t, schedules, "due", now, true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		runner := NewRunner(schedules, runs, producer, RunnerConfig{}, nil)
		runner.now = func() time.Time { return now }
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = runner.Tick(context.Background())
		}()
	}
	wg.Wait()

	if producer.count() != 1 {
		t.Fatalf("expected exactly one enqueued run, got %d", producer.count())
	}
}

func TestTickMarksRunFailedWhenEnqueueFails(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	schedules := repository.NewMemoryScheduleRepository()
	runs := repository.NewMemoryRunRepository()
	seedDue(t, schedules, "due", now, true)

	runner := NewRunner(schedules, runs, &recordingProducer{err: errors.New("redis down")}, RunnerConfig{}, nil)
	runner.now = func() time.Time { return now }

	if enqueued, err := runner.Tick(context.Background()); err != nil || enqueued != 0 {
		t.Fatalf("expected zero enqueued without error, got %d %v", enqueued, err)
	}
	items, total, _ := runs.ListRuns(context.Background(), domain.RunListFilter{OwnerID: "owner-1"})
	if total != 1 || items[0].Status != domain.RunStatusFailed {
		t.Fatalf("expected failed run recorded, got %+v", items)
	}
}

type failingUpdateRuns struct {
	*repository.MemoryRunRepository
}

func (failingUpdateRuns) UpdateRun(context.Context, *domain.ReportRun) error {
	return errors.New("connection reset")
}

func TestTickLogsRunUpdateFailureAfterEnqueueError(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	schedules := repository.NewMemoryScheduleRepository()
	seedDue(t, schedules, "due", now, true)

	var logs bytes.Buffer
	runs := failingUpdateRuns{repository.NewMemoryRunRepository()}
	runner := NewRunner(schedules, runs, &recordingProducer{err: errors.New("redis down")}, RunnerConfig{}, log.New(&logs, "", 0))
	runner.now = func() time.Time { return now }

	if _, err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !strings.Contains(logs.String(), "report run status update failed") || !strings.Contains(logs.String(), "connection reset") {
		t.Fatalf("expected update failure logged, got %q", logs.String())
	}
}
