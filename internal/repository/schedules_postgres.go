package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/socialdesk-back/internal/domain"
)

type PostgresScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresScheduleRepository(pool *pgxpool.Pool) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{pool: pool}
}

const scheduleColumns = `id, owner_id, name, report_type, format, frequency, day_of_week, day_of_month, time_of_day, platform, recipients, is_active, next_run_at, last_run_at, created_at, updated_at`

func (r *PostgresScheduleRepository) Create(ctx context.Context, schedule *domain.ScheduledReport) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_reports (`+scheduleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		schedule.ID,
		schedule.OwnerID,
		schedule.Name,
		string(schedule.ReportType),
		string(schedule.Format),
		string(schedule.Frequency),
		schedule.DayOfWeek,
		schedule.DayOfMonth,
		schedule.TimeOfDay,
		schedule.Platform,
		schedule.Recipients,
		schedule.IsActive,
		schedule.NextRunAt,
		schedule.LastRunAt,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	return mapPgError("insert scheduled report", err)
}

func (r *PostgresScheduleRepository) Update(ctx context.Context, schedule *domain.ScheduledReport) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE scheduled_reports
		SET name = $3,
			report_type = $4,
			format = $5,
			frequency = $6,
			day_of_week = $7,
			day_of_month = $8,
			time_of_day = $9,
			platform = $10,
			recipients = $11,
			is_active = $12,
			next_run_at = $13,
			updated_at = $14
		WHERE id = $1 AND owner_id = $2
	`,
		schedule.ID,
		schedule.OwnerID,
		schedule.Name,
		string(schedule.ReportType),
		string(schedule.Format),
		string(schedule.Frequency),
		schedule.DayOfWeek,
		schedule.DayOfMonth,
		schedule.TimeOfDay,
		schedule.Platform,
		schedule.Recipients,
		schedule.IsActive,
		schedule.NextRunAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return mapPgError("update scheduled report", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresScheduleRepository) Get(ctx context.Context, ownerID, scheduleID string) (*domain.ScheduledReport, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_reports
		WHERE owner_id = $1 AND id = $2
	`, ownerID, scheduleID)
	schedule, err := scanSchedule(row)
	if err != nil {
		return nil, mapPgError("query scheduled report", err)
	}
	return schedule, nil
}

func (r *PostgresScheduleRepository) List(ctx context.Context, ownerID string) ([]domain.ScheduledReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_reports
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list scheduled reports: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ScheduledReport, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled report: %w", err)
		}
		result = append(result, *schedule)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate scheduled reports: %w", rows.Err())
	}
	return result, nil
}

func (r *PostgresScheduleRepository) Delete(ctx context.Context, ownerID, scheduleID string) error {
	command, err := r.pool.Exec(ctx, `DELETE FROM scheduled_reports WHERE owner_id = $1 AND id = $2`, ownerID, scheduleID)
	if err != nil {
		return mapPgError("delete scheduled report", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDue locks due rows with SKIP LOCKED so concurrent runners split the
// work instead of blocking on each other.
func (r *PostgresScheduleRepository) ClaimDue(
	ctx context.Context,
	now time.Time,
	leaseUntil time.Time,
	limit int,
) ([]ClaimedSchedule, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id, next_run_at AS scheduled_for
			FROM scheduled_reports
			WHERE is_active AND next_run_at <= $1
			ORDER BY next_run_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scheduled_reports s
		SET next_run_at = $2, updated_at = $1
		FROM due
		WHERE s.id = due.id
		RETURNING s.id, s.owner_id, s.name, s.report_type, s.format, s.frequency, s.day_of_week, s.day_of_month,
			s.time_of_day, s.platform, s.recipients, s.is_active, s.next_run_at, s.last_run_at, s.created_at,
			s.updated_at, due.scheduled_for
	`, now, leaseUntil, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due schedules: %w", err)
	}
	defer rows.Close()

	result := make([]ClaimedSchedule, 0)
	for rows.Next() {
		var scheduledFor time.Time
		schedule, err := scanSchedule(rows, &scheduledFor)
		if err != nil {
			return nil, fmt.Errorf("scan claimed schedule: %w", err)
		}
		result = append(result, ClaimedSchedule{Schedule: *schedule, ScheduledFor: scheduledFor})
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate claimed schedules: %w", rows.Err())
	}
	return result, nil
}

func (r *PostgresScheduleRepository) MarkRun(ctx context.Context, scheduleID string, ranAt, nextRunAt time.Time) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE scheduled_reports
		SET last_run_at = $2, next_run_at = $3, updated_at = $2
		WHERE id = $1
	`, scheduleID, ranAt, nextRunAt)
	if err != nil {
		return mapPgError("mark scheduled report run", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchedule(row rowScanner, extra ...any) (*domain.ScheduledReport, error) {
	var (
		schedule   domain.ScheduledReport
		reportType string
		format     string
		frequency  string
	)
	dest := []any{
		&schedule.ID,
		&schedule.OwnerID,
		&schedule.Name,
		&reportType,
		&format,
		&frequency,
		&schedule.DayOfWeek,
		&schedule.DayOfMonth,
		&schedule.TimeOfDay,
		&schedule.Platform,
		&schedule.Recipients,
		&schedule.IsActive,
		&schedule.NextRunAt,
		&schedule.LastRunAt,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	schedule.ReportType = domain.ReportType(reportType)
	schedule.Format = domain.ReportFormat(format)
	schedule.Frequency = domain.Frequency(frequency)
	return &schedule, nil
}
