package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/socialdesk-back/internal/domain"
)

type PostgresMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepository(pool *pgxpool.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

const messageColumns = `id, owner_id, platform, type, content, sender_name, post_title, sentiment, priority, is_read, is_replied, metadata, created_at, updated_at`

func (r *PostgresMessageRepository) Get(ctx context.Context, ownerID, messageID string) (*domain.Message, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE owner_id = $1 AND id = $2
	`, ownerID, messageID)
	message, err := scanMessage(row)
	if err != nil {
		return nil, mapPgError("query message", err)
	}
	return message, nil
}

func (r *PostgresMessageRepository) ListByIDs(
	ctx context.Context,
	ownerID string,
	messageIDs []string,
	platform string,
) ([]domain.Message, error) {
	if len(messageIDs) == 0 {
		return []domain.Message{}, nil
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE owner_id = $1 AND id = ANY($2)`
	args := []any{ownerID, messageIDs}
	if platform = strings.ToLower(strings.TrimSpace(platform)); platform != "" {
		query += ` AND lower(platform) = $3`
		args = append(args, platform)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Message, 0, len(messageIDs))
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, *message)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate messages: %w", rows.Err())
	}
	return result, nil
}

func (r *PostgresMessageRepository) ApplyAnalysis(
	ctx context.Context,
	ownerID string,
	messageID string,
	update domain.MessageUpdate,
) error {
	metadata := update.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode message metadata: %w", err)
	}

	command, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET sentiment = COALESCE($3, sentiment),
			priority = COALESCE($4, priority),
			metadata = COALESCE(metadata, '{}'::jsonb) || $5::jsonb,
			updated_at = now()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, messageID, update.Sentiment, update.Priority, string(encoded))
	if err != nil {
		return mapPgError("update message analysis", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		message  domain.Message
		metadata []byte
	)
	if err := row.Scan(
		&message.ID,
		&message.OwnerID,
		&message.Platform,
		&message.Type,
		&message.Content,
		&message.SenderName,
		&message.PostTitle,
		&message.Sentiment,
		&message.Priority,
		&message.IsRead,
		&message.IsReplied,
		&metadata,
		&message.CreatedAt,
		&message.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &message.Metadata); err != nil {
			return nil, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return &message, nil
}
