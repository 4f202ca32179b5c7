package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/queue"
	"github.com/iago/socialdesk-back/internal/repository"
)

type RunnerConfig struct {
	Interval   time.Duration
	Lease      time.Duration
	ClaimLimit int
}

// Runner turns due schedules into pending report runs on the queue.
type Runner struct {
	schedules repository.ScheduleRepository
	runs      repository.RunRepository
	producer  queue.Producer
	config    RunnerConfig
	logger    *log.Logger
	now       func() time.Time
}

func NewRunner(
	schedules repository.ScheduleRepository,
	runs repository.RunRepository,
	producer queue.Producer,
	config RunnerConfig,
	logger *log.Logger,
) *Runner {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Lease <= 0 {
		config.Lease = 10 * time.Minute
	}
	if config.ClaimLimit <= 0 {
		config.ClaimLimit = 50
	}
	return &Runner{
		schedules: schedules,
		runs:      runs,
		producer:  producer,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.logf("scheduler tick failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick claims due schedules and enqueues one run per claim. It returns the
// number of runs enqueued.
func (r *Runner) Tick(ctx context.Context) (int, error) {
	now := r.now().UTC()
	claimed, err := r.schedules.ClaimDue(ctx, now, now.Add(r.config.Lease), r.config.ClaimLimit)
	if err != nil {
		return 0, fmt.Errorf("claim due schedules: %w", err)
	}

	enqueued := 0
	for _, claim := range claimed {
		if err := r.dispatch(ctx, claim, now); err != nil {
			r.logf("schedule dispatch failed schedule_id=%s: %v", claim.Schedule.ID, err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		r.logf("scheduler enqueued runs=%d claimed=%d", enqueued, len(claimed))
	}
	return enqueued, nil
}

func (r *Runner) dispatch(ctx context.Context, claim repository.ClaimedSchedule, now time.Time) error {
	run := &domain.ReportRun{
		ID:           uuid.NewString(),
		ScheduleID:   claim.Schedule.ID,
		OwnerID:      claim.Schedule.OwnerID,
		ReportType:   claim.Schedule.ReportType,
		Format:       claim.Schedule.Format,
		Status:       domain.RunStatusPending,
		ScheduledFor: claim.ScheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.runs.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	err := r.producer.Enqueue(ctx, domain.QueueMessage{
		RunID:       run.ID,
		ScheduleID:  run.ScheduleID,
		OwnerID:     run.OwnerID,
		RequestedAt: now,
	})
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = err.Error()
		run.UpdatedAt = r.now().UTC()
		if updateErr := r.runs.UpdateRun(ctx, run); updateErr != nil {
			r.logf("report run status update failed run_id=%s: %v", run.ID, updateErr)
		}
		return fmt.Errorf("enqueue run: %w", err)
	}
	return nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
