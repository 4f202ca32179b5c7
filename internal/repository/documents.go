package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/socialdesk-back/internal/domain"
)

// DocumentRepository exposes processed reference documents.
type DocumentRepository interface {
	RecentDocuments(ctx context.Context, ownerID string, limit int) ([]domain.Document, error)
}

type MemoryDocumentRepository struct {
	mu        sync.RWMutex
	documents []domain.Document
}

func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{}
}

func (r *MemoryDocumentRepository) Add(document domain.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()

	document.Insights = append([]string(nil), document.Insights...)
	r.documents = append(r.documents, document)
}

// RecentDocuments skips documents that were never processed.
func (r *MemoryDocumentRepository) RecentDocuments(_ context.Context, ownerID string, limit int) ([]domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Document, 0)
	for _, document := range r.documents {
		if document.OwnerID != ownerID || document.ProcessedAt.IsZero() {
			continue
		}
		document.Insights = append([]string(nil), document.Insights...)
		result = append(result, document)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ProcessedAt.After(result[j].ProcessedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type PostgresDocumentRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDocumentRepository(pool *pgxpool.Pool) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{pool: pool}
}

func (r *PostgresDocumentRepository) RecentDocuments(ctx context.Context, ownerID string, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, title, summary, insights, processed_at
		FROM documents
		WHERE owner_id = $1 AND processed_at IS NOT NULL
		ORDER BY processed_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Document, 0, limit)
	for rows.Next() {
		var document domain.Document
		if err := rows.Scan(
			&document.ID,
			&document.OwnerID,
			&document.Title,
			&document.Summary,
			&document.Insights,
			&document.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		result = append(result, document)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate documents: %w", rows.Err())
	}
	return result, nil
}
