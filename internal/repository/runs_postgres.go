package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/socialdesk-back/internal/domain"
)

type PostgresRunRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRunRepository(pool *pgxpool.Pool) *PostgresRunRepository {
	return &PostgresRunRepository{pool: pool}
}

const runColumns = `id, schedule_id, owner_id, report_type, format, status, artifact_key, error_message, attempts, scheduled_for, created_at, updated_at`

func (r *PostgresRunRepository) CreateRun(ctx context.Context, run *domain.ReportRun) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO report_runs (`+runColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		run.ID,
		run.ScheduleID,
		run.OwnerID,
		string(run.ReportType),
		string(run.Format),
		string(run.Status),
		run.ArtifactKey,
		run.ErrorMessage,
		run.Attempts,
		run.ScheduledFor,
		run.CreatedAt,
		run.UpdatedAt,
	)
	return mapPgError("insert report run", err)
}

func (r *PostgresRunRepository) UpdateRun(ctx context.Context, run *domain.ReportRun) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE report_runs
		SET status = $2,
			artifact_key = $3,
			error_message = $4,
			attempts = $5,
			updated_at = $6
		WHERE id = $1
	`, run.ID, string(run.Status), run.ArtifactKey, run.ErrorMessage, run.Attempts, run.UpdatedAt)
	if err != nil {
		return mapPgError("update report run", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRunRepository) GetRun(ctx context.Context, runID string) (*domain.ReportRun, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM report_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		return nil, mapPgError("query report run", err)
	}
	return run, nil
}

func (r *PostgresRunRepository) ListRuns(
	ctx context.Context,
	filter domain.RunListFilter,
) ([]domain.ReportRun, int, error) {
	filter = normalizeRunFilter(filter)
	baseQuery, args := buildRunFilters(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count report runs: %w", err)
	}

	listQuery := fmt.Sprintf(
		`SELECT %s
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`,
		runColumns,
		baseQuery,
		len(args)+1,
		len(args)+2,
	)
	listArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := r.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list report runs: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ReportRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan report run: %w", err)
		}
		items = append(items, *run)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate report runs: %w", rows.Err())
	}

	return items, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.ReportRun, error) {
	var (
		run        domain.ReportRun
		reportType string
		format     string
		status     string
	)
	if err := row.Scan(
		&run.ID,
		&run.ScheduleID,
		&run.OwnerID,
		&reportType,
		&format,
		&status,
		&run.ArtifactKey,
		&run.ErrorMessage,
		&run.Attempts,
		&run.ScheduledFor,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return nil, err
	}
	run.ReportType = domain.ReportType(reportType)
	run.Format = domain.ReportFormat(format)
	run.Status = domain.RunStatus(status)
	return &run, nil
}

func buildRunFilters(filter domain.RunListFilter) (string, []any) {
	query := strings.Builder{}
	query.WriteString("FROM report_runs WHERE 1=1")

	args := make([]any, 0, 2)
	argIndex := 1

	if ownerID := strings.TrimSpace(filter.OwnerID); ownerID != "" {
		query.WriteString(fmt.Sprintf(" AND owner_id = $%d", argIndex))
		args = append(args, ownerID)
		argIndex++
	}

	if scheduleID := strings.TrimSpace(filter.ScheduleID); scheduleID != "" {
		query.WriteString(fmt.Sprintf(" AND schedule_id = $%d", argIndex))
		args = append(args, scheduleID)
	}

	return query.String(), args
}
