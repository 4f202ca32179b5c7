package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/queue"
	"github.com/iago/socialdesk-back/internal/report"
	"github.com/iago/socialdesk-back/internal/repository"
	"github.com/iago/socialdesk-back/internal/storage"
)

const defaultMaxAttempts = 3

type ReportGenerator interface {
	Generate(ctx context.Context, config domain.ReportConfig, ownerID string) (domain.ReportPayload, error)
}

type ReportExporter interface {
	Export(payload domain.ReportPayload, format domain.ReportFormat) (domain.Artifact, error)
}

type Dependencies struct {
	Consumer    queue.Consumer
	Runs        repository.RunRepository
	Schedules   repository.ScheduleRepository
	Generator   ReportGenerator
	Exporter    ReportExporter
	Artifacts   storage.ArtifactStore
	MaxAttempts int
	Logger      *log.Logger
}

// Processor executes queued report runs: generate, export, store the
// artifact, then advance the schedule.
type Processor struct {
	consumer    queue.Consumer
	runs        repository.RunRepository
	schedules   repository.ScheduleRepository
	generator   ReportGenerator
	exporter    ReportExporter
	artifacts   storage.ArtifactStore
	maxAttempts int
	logger      *log.Logger
	now         func() time.Time
}

func NewProcessor(deps Dependencies) *Processor {
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = defaultMaxAttempts
	}
	return &Processor{
		consumer:    deps.Consumer,
		runs:        deps.Runs,
		schedules:   deps.Schedules,
		generator:   deps.Generator,
		exporter:    deps.Exporter,
		artifacts:   deps.Artifacts,
		maxAttempts: deps.MaxAttempts,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// Start consumes until ctx is done, restarting the consumer after errors.
func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		p.logf("worker consume loop error: %v", err)

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, message domain.QueueMessage) error {
	run, err := p.runs.GetRun(ctx, message.RunID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			p.logf("report run dropped run_id=%s: not found", message.RunID)
			return nil
		}
		return fmt.Errorf("load run %s: %w", message.RunID, err)
	}
	if run.Status == domain.RunStatusDone {
		return nil
	}

	schedule, err := p.schedules.Get(ctx, run.OwnerID, run.ScheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			p.finish(ctx, run, "", errors.New("schedule no longer exists"))
			return nil
		}
		return fmt.Errorf("load schedule %s: %w", run.ScheduleID, err)
	}

	run.Status = domain.RunStatusProcessing
	run.Attempts = message.Attempt + 1
	run.UpdatedAt = p.now().UTC()
	if err := p.runs.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	key, runErr := p.execute(ctx, run, schedule)
	p.finish(ctx, run, key, runErr)
	if runErr == nil || run.Attempts >= p.maxAttempts {
		p.advance(ctx, schedule)
	}
	if runErr == nil {
		p.logf("report run done run_id=%s schedule_id=%s artifact=%s", run.ID, schedule.ID, key)
		p.logf("report delivery run_id=%s recipients=%s", run.ID, strings.Join(schedule.Recipients, ","))
	}
	return runErr
}

func (p *Processor) execute(ctx context.Context, run *domain.ReportRun, schedule *domain.ScheduledReport) (string, error) {
	from, to := ReportWindow(schedule.Frequency, run.ScheduledFor)
	payload, err := p.generator.Generate(ctx, domain.ReportConfig{
		Type:     schedule.ReportType,
		Format:   schedule.Format,
		From:     &from,
		To:       &to,
		Platform: schedule.Platform,
	}, run.OwnerID)
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}

	artifact, err := p.exporter.Export(payload, schedule.Format)
	if err != nil {
		return "", fmt.Errorf("export report: %w", err)
	}

	key := RunArtifactKey(run.OwnerID, run.ID, schedule.Format)
	if err := p.artifacts.Put(ctx, key, artifact.Body, artifact.ContentType); err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return key, nil
}

func (p *Processor) finish(ctx context.Context, run *domain.ReportRun, key string, runErr error) {
	run.UpdatedAt = p.now().UTC()
	if runErr != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = runErr.Error()
		p.logf("report run failed run_id=%s attempt=%d: %v", run.ID, run.Attempts, runErr)
	} else {
		run.Status = domain.RunStatusDone
		run.ErrorMessage = ""
		run.ArtifactKey = key
	}
	if err := p.runs.UpdateRun(ctx, run); err != nil {
		p.logf("report run status update failed run_id=%s: %v", run.ID, err)
	}
}

// advance records the run and releases the lease taken by the scheduler.
func (p *Processor) advance(ctx context.Context, schedule *domain.ScheduledReport) {
	ranAt := p.now().UTC()
	next, err := report.ComputeNextRun(ranAt, schedule.Frequency, schedule.DayOfWeek, schedule.DayOfMonth, schedule.TimeOfDay)
	if err != nil {
		p.logf("next run computation failed schedule_id=%s: %v", schedule.ID, err)
		next = ranAt.Add(24 * time.Hour)
	}
	next = rollForward(next, ranAt, schedule.Frequency)
	if err := p.schedules.MarkRun(ctx, schedule.ID, ranAt, next); err != nil {
		p.logf("schedule advance failed schedule_id=%s: %v", schedule.ID, err)
	}
}

// rollForward moves next by whole periods until it is strictly after ranAt.
// A weekly schedule that runs on its own weekday otherwise computes a time
// earlier today and would be claimed again on the next tick.
func rollForward(next, ranAt time.Time, frequency domain.Frequency) time.Time {
	for !next.After(ranAt) {
		switch frequency {
		case domain.FrequencyWeekly:
			next = next.AddDate(0, 0, 7)
		case domain.FrequencyMonthly:
			next = next.AddDate(0, 1, 0)
		default:
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}

// ReportWindow is the period a scheduled report covers, ending at the time
// the run was due.
func ReportWindow(frequency domain.Frequency, scheduledFor time.Time) (time.Time, time.Time) {
	to := scheduledFor.UTC()
	switch frequency {
	case domain.FrequencyWeekly:
		return to.AddDate(0, 0, -7), to
	case domain.FrequencyMonthly:
		return to.AddDate(0, -1, 0), to
	default:
		return to.AddDate(0, 0, -1), to
	}
}

func RunArtifactKey(ownerID, runID string, format domain.ReportFormat) string {
	return fmt.Sprintf("%s/runs/%s.%s", ownerID, runID, format)
}

func (p *Processor) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
