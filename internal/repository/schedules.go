package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
)

// ClaimedSchedule is a due schedule leased to one runner. ScheduledFor is
// the next_run_at value before the lease was applied.
type ClaimedSchedule struct {
	Schedule     domain.ScheduledReport
	ScheduledFor time.Time
}

type ScheduleRepository interface {
	Create(ctx context.Context, schedule *domain.ScheduledReport) error
	Update(ctx context.Context, schedule *domain.ScheduledReport) error
	Get(ctx context.Context, ownerID, scheduleID string) (*domain.ScheduledReport, error)
	List(ctx context.Context, ownerID string) ([]domain.ScheduledReport, error)
	Delete(ctx context.Context, ownerID, scheduleID string) error
	// ClaimDue leases active schedules with next_run_at <= now by moving
	// next_run_at to leaseUntil. A schedule is claimed by at most one caller.
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]ClaimedSchedule, error)
	MarkRun(ctx context.Context, scheduleID string, ranAt, nextRunAt time.Time) error
}

type MemoryScheduleRepository struct {
	mu        sync.Mutex
	schedules map[string]*domain.ScheduledReport
}

func NewMemoryScheduleRepository() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{
		schedules: make(map[string]*domain.ScheduledReport),
	}
}

func (r *MemoryScheduleRepository) Create(_ context.Context, schedule *domain.ScheduledReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schedules[schedule.ID]; exists {
		return ErrConflict
	}
	r.schedules[schedule.ID] = cloneSchedule(schedule)
	return nil
}

func (r *MemoryScheduleRepository) Update(_ context.Context, schedule *domain.ScheduledReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.schedules[schedule.ID]
	if !ok || existing.OwnerID != schedule.OwnerID {
		return ErrNotFound
	}
	r.schedules[schedule.ID] = cloneSchedule(schedule)
	return nil
}

func (r *MemoryScheduleRepository) Get(_ context.Context, ownerID, scheduleID string) (*domain.ScheduledReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	schedule, ok := r.schedules[scheduleID]
	if !ok || schedule.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return cloneSchedule(schedule), nil
}

func (r *MemoryScheduleRepository) List(_ context.Context, ownerID string) ([]domain.ScheduledReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.ScheduledReport, 0)
	for _, schedule := range r.schedules {
		if schedule.OwnerID == ownerID {
			result = append(result, *cloneSchedule(schedule))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryScheduleRepository) Delete(_ context.Context, ownerID, scheduleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schedule, ok := r.schedules[scheduleID]
	if !ok || schedule.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.schedules, scheduleID)
	return nil
}

func (r *MemoryScheduleRepository) ClaimDue(_ context.Context, now, leaseUntil time.Time, limit int) ([]ClaimedSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*domain.ScheduledReport, 0)
	for _, schedule := range r.schedules {
		if schedule.IsActive && !schedule.NextRunAt.After(now) {
			due = append(due, schedule)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRunAt.Before(due[j].NextRunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	result := make([]ClaimedSchedule, 0, len(due))
	for _, schedule := range due {
		scheduledFor := schedule.NextRunAt
		schedule.NextRunAt = leaseUntil
		schedule.UpdatedAt = now
		result = append(result, ClaimedSchedule{Schedule: *cloneSchedule(schedule), ScheduledFor: scheduledFor})
	}
	return result, nil
}

func (r *MemoryScheduleRepository) MarkRun(_ context.Context, scheduleID string, ranAt, nextRunAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schedule, ok := r.schedules[scheduleID]
	if !ok {
		return ErrNotFound
	}
	last := ranAt
	schedule.LastRunAt = &last
	schedule.NextRunAt = nextRunAt
	schedule.UpdatedAt = ranAt
	return nil
}

func cloneSchedule(schedule *domain.ScheduledReport) *domain.ScheduledReport {
	clone := *schedule
	clone.Recipients = append([]string(nil), schedule.Recipients...)
	if schedule.DayOfWeek != nil {
		value := *schedule.DayOfWeek
		clone.DayOfWeek = &value
	}
	if schedule.DayOfMonth != nil {
		value := *schedule.DayOfMonth
		clone.DayOfMonth = &value
	}
	if schedule.LastRunAt != nil {
		value := *schedule.LastRunAt
		clone.LastRunAt = &value
	}
	return &clone
}
