package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/iago/socialdesk-back/internal/domain"
)

// RunRepository persists scheduled report executions.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.ReportRun) error
	UpdateRun(ctx context.Context, run *domain.ReportRun) error
	GetRun(ctx context.Context, runID string) (*domain.ReportRun, error)
	ListRuns(ctx context.Context, filter domain.RunListFilter) ([]domain.ReportRun, int, error)
}

// MemoryRunRepository stores runs in memory for local development.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]*domain.ReportRun
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{
		runs: make(map[string]*domain.ReportRun),
	}
}

func (r *MemoryRunRepository) CreateRun(_ context.Context, run *domain.ReportRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return ErrConflict
	}
	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *MemoryRunRepository) UpdateRun(_ context.Context, run *domain.ReportRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; !ok {
		return ErrNotFound
	}
	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *MemoryRunRepository) GetRun(_ context.Context, runID string) (*domain.ReportRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *run
	return &clone, nil
}

func (r *MemoryRunRepository) ListRuns(
	_ context.Context,
	filter domain.RunListFilter,
) ([]domain.ReportRun, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter = normalizeRunFilter(filter)

	items := make([]domain.ReportRun, 0)
	for _, run := range r.runs {
		if filter.OwnerID != "" && run.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ScheduleID != "" && run.ScheduleID != filter.ScheduleID {
			continue
		}
		items = append(items, *run)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	total := len(items)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []domain.ReportRun{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}

	return items[start:end], total, nil
}

func normalizeRunFilter(filter domain.RunListFilter) domain.RunListFilter {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	return filter
}
