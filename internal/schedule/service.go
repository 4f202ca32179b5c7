package schedule

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/report"
	"github.com/iago/socialdesk-back/internal/repository"
)

var ErrInvalidSchedule = errors.New("invalid scheduled report")

const (
	maxRecipients = 20
	maxNameLength = 120
)

type CreateInput struct {
	Name       string
	ReportType domain.ReportType
	Format     domain.ReportFormat
	Frequency  domain.Frequency
	DayOfWeek  *int
	DayOfMonth *int
	TimeOfDay  string
	Platform   string
	Recipients []string
	IsActive   *bool
}

// Service manages an owner's scheduled reports and their run history.
type Service struct {
	schedules repository.ScheduleRepository
	runs      repository.RunRepository
	now       func() time.Time
}

func NewService(schedules repository.ScheduleRepository, runs repository.RunRepository) *Service {
	return &Service{schedules: schedules, runs: runs, now: time.Now}
}

func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*domain.ScheduledReport, error) {
	now := s.now().UTC()
	schedule := &domain.ScheduledReport{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       strings.TrimSpace(input.Name),
		ReportType: input.ReportType,
		Format:     input.Format,
		Frequency:  input.Frequency,
		DayOfWeek:  input.DayOfWeek,
		DayOfMonth: input.DayOfMonth,
		TimeOfDay:  strings.TrimSpace(input.TimeOfDay),
		Platform:   strings.ToLower(strings.TrimSpace(input.Platform)),
		Recipients: normalizeRecipients(input.Recipients),
		IsActive:   input.IsActive == nil || *input.IsActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if schedule.Format == "" {
		schedule.Format = domain.FormatPDF
	}
	if schedule.TimeOfDay == "" {
		schedule.TimeOfDay = "09:00"
	}
	if err := validate(schedule); err != nil {
		return nil, err
	}

	next, err := report.ComputeNextRun(now, schedule.Frequency, schedule.DayOfWeek, schedule.DayOfMonth, schedule.TimeOfDay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	schedule.NextRunAt = next

	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return schedule, nil
}

// Update applies a patch. Changing frequency, day or time recomputes
// NextRunAt from now.
func (s *Service) Update(ctx context.Context, ownerID, scheduleID string, patch domain.SchedulePatch) (*domain.ScheduledReport, error) {
	schedule, err := s.schedules.Get(ctx, ownerID, scheduleID)
	if err != nil {
		return nil, err
	}
	applyPatch(schedule, patch)
	if err := validate(schedule); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if patch.TouchesTiming() {
		next, err := report.ComputeNextRun(now, schedule.Frequency, schedule.DayOfWeek, schedule.DayOfMonth, schedule.TimeOfDay)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		schedule.NextRunAt = next
	}
	schedule.UpdatedAt = now

	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return schedule, nil
}

func (s *Service) Get(ctx context.Context, ownerID, scheduleID string) (*domain.ScheduledReport, error) {
	return s.schedules.Get(ctx, ownerID, scheduleID)
}

func (s *Service) List(ctx context.Context, ownerID string) ([]domain.ScheduledReport, error) {
	return s.schedules.List(ctx, ownerID)
}

func (s *Service) Delete(ctx context.Context, ownerID, scheduleID string) error {
	return s.schedules.Delete(ctx, ownerID, scheduleID)
}

func (s *Service) ListRuns(ctx context.Context, filter domain.RunListFilter) ([]domain.ReportRun, int, error) {
	return s.runs.ListRuns(ctx, filter)
}

// GetRun returns one run of the owner. Runs of other owners are reported
// as not found.
func (s *Service) GetRun(ctx context.Context, ownerID, runID string) (*domain.ReportRun, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return run, nil
}

func applyPatch(schedule *domain.ScheduledReport, patch domain.SchedulePatch) {
	if patch.Name != nil {
		schedule.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.ReportType != nil {
		schedule.ReportType = *patch.ReportType
	}
	if patch.Format != nil {
		schedule.Format = *patch.Format
	}
	if patch.Frequency != nil {
		schedule.Frequency = *patch.Frequency
	}
	if patch.ClearDayOfWeek {
		schedule.DayOfWeek = nil
	} else if patch.DayOfWeek != nil {
		schedule.DayOfWeek = patch.DayOfWeek
	}
	if patch.ClearDayOfMonth {
		schedule.DayOfMonth = nil
	} else if patch.DayOfMonth != nil {
		schedule.DayOfMonth = patch.DayOfMonth
	}
	if patch.TimeOfDay != nil {
		schedule.TimeOfDay = strings.TrimSpace(*patch.TimeOfDay)
	}
	if patch.Platform != nil {
		schedule.Platform = strings.ToLower(strings.TrimSpace(*patch.Platform))
	}
	if patch.Recipients != nil {
		schedule.Recipients = normalizeRecipients(patch.Recipients)
	}
	if patch.IsActive != nil {
		schedule.IsActive = *patch.IsActive
	}
}

func validate(schedule *domain.ScheduledReport) error {
	switch {
	case schedule.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	case len([]rune(schedule.Name)) > maxNameLength:
		return fmt.Errorf("%w: name is too long", ErrInvalidSchedule)
	case !schedule.ReportType.Valid():
		return fmt.Errorf("%w: unsupported reportType %q", ErrInvalidSchedule, schedule.ReportType)
	case !schedule.Format.Valid():
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidSchedule, schedule.Format)
	case !schedule.Frequency.Valid():
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, report.ErrInvalidFrequency)
	case schedule.DayOfWeek != nil && (*schedule.DayOfWeek < 0 || *schedule.DayOfWeek > 6):
		return fmt.Errorf("%w: dayOfWeek must be between 0 and 6", ErrInvalidSchedule)
	case schedule.DayOfMonth != nil && (*schedule.DayOfMonth < 1 || *schedule.DayOfMonth > 31):
		return fmt.Errorf("%w: dayOfMonth must be between 1 and 31", ErrInvalidSchedule)
	case len(schedule.Recipients) > maxRecipients:
		return fmt.Errorf("%w: at most %d recipients", ErrInvalidSchedule, maxRecipients)
	}
	if _, _, err := report.ParseTimeOfDay(schedule.TimeOfDay); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	for _, recipient := range schedule.Recipients {
		address, err := mail.ParseAddress(recipient)
		if err != nil || address.Address != recipient {
			return fmt.Errorf("%w: invalid recipient %q", ErrInvalidSchedule, recipient)
		}
	}
	return nil
}

func normalizeRecipients(values []string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
