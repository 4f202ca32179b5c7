package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/socialdesk-back/internal/domain"
)

type PostgresReportStore struct {
	pool *pgxpool.Pool
}

func NewPostgresReportStore(pool *pgxpool.Pool) *PostgresReportStore {
	return &PostgresReportStore{pool: pool}
}

// GroupBy only interpolates whitelisted column names; filter values are
// always bound parameters.
func (s *PostgresReportStore) GroupBy(ctx context.Context, query GroupQuery) ([]GroupRow, error) {
	if _, err := validateGroupQuery(query); err != nil {
		return nil, err
	}

	selects := make([]string, 0, len(query.Keys)+len(query.Sums)+1)
	for _, key := range query.Keys {
		selects = append(selects, fmt.Sprintf("COALESCE(%s::text, '')", key))
	}
	selects = append(selects, "COUNT(*)")
	for _, sum := range query.Sums {
		selects = append(selects, fmt.Sprintf("COALESCE(SUM(%s), 0)::bigint", sum))
	}

	where, args := buildReportFilter(query.Filter)
	statement := fmt.Sprintf("SELECT %s FROM %s %s", strings.Join(selects, ", "), string(query.Source), where)
	if len(query.Keys) > 0 {
		statement += " GROUP BY " + strings.Join(query.Keys, ", ") + " ORDER BY " + strings.Join(query.Keys, ", ")
	}

	rows, err := s.pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", query.Source, err)
	}
	defer rows.Close()

	result := make([]GroupRow, 0)
	for rows.Next() {
		keys := make([]string, len(query.Keys))
		sums := make([]int64, len(query.Sums))
		var count int64

		dest := make([]any, 0, len(keys)+len(sums)+1)
		for index := range keys {
			dest = append(dest, &keys[index])
		}
		dest = append(dest, &count)
		for index := range sums {
			dest = append(dest, &sums[index])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s group: %w", query.Source, err)
		}

		row := GroupRow{
			Keys:  make(map[string]string, len(keys)),
			Count: count,
			Sums:  make(map[string]int64, len(sums)),
		}
		for index, key := range query.Keys {
			row.Keys[key] = keys[index]
		}
		for index, sum := range query.Sums {
			row.Sums[sum] = sums[index]
		}
		result = append(result, row)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate %s groups: %w", query.Source, rows.Err())
	}

	if len(query.Keys) == 0 && len(result) == 1 && result[0].Count == 0 {
		return []GroupRow{}, nil
	}
	return result, nil
}

func (s *PostgresReportStore) Sample(
	ctx context.Context,
	source ReportSource,
	filter domain.ReportFilter,
	limit int,
) ([]Record, error) {
	schema, ok := reportSchemas[source]
	if !ok {
		return nil, fmt.Errorf("%w: source %q", ErrUnknownColumn, source)
	}
	if limit <= 0 {
		limit = 10
	}

	where, args := buildReportFilter(filter)
	statement := fmt.Sprintf(
		"SELECT %s FROM %s %s ORDER BY created_at DESC LIMIT $%d",
		strings.Join(schema.sample, ", "),
		string(source),
		where,
		len(args)+1,
	)
	rows, err := s.pool.Query(ctx, statement, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", source, err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect %s sample: %w", source, err)
	}
	result := make([]Record, 0, len(maps))
	for _, row := range maps {
		result = append(result, Record(row))
	}
	return result, nil
}

func buildReportFilter(filter domain.ReportFilter) (string, []any) {
	query := strings.Builder{}
	query.WriteString("WHERE owner_id = $1")

	args := []any{filter.OwnerID}
	argIndex := 2

	if filter.From != nil {
		query.WriteString(fmt.Sprintf(" AND created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}

	if filter.To != nil {
		query.WriteString(fmt.Sprintf(" AND created_at <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	if platform := strings.ToLower(strings.TrimSpace(filter.Platform)); platform != "" {
		query.WriteString(fmt.Sprintf(" AND lower(platform) = $%d", argIndex))
		args = append(args, platform)
	}

	return query.String(), args
}
