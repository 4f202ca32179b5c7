package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
)

// MessageRepository reads inbox messages and writes AI results back.
// Every call is scoped to the owning account.
type MessageRepository interface {
	Get(ctx context.Context, ownerID, messageID string) (*domain.Message, error)
	ListByIDs(ctx context.Context, ownerID string, messageIDs []string, platform string) ([]domain.Message, error)
	ApplyAnalysis(ctx context.Context, ownerID, messageID string, update domain.MessageUpdate) error
}

type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message
	now      func() time.Time
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		messages: make(map[string]*domain.Message),
		now:      time.Now,
	}
}

func (r *MemoryMessageRepository) Create(_ context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.messages[message.ID]; exists {
		return ErrConflict
	}
	clone := cloneMessage(message)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = r.now().UTC()
	}
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = clone.CreatedAt
	}
	r.messages[message.ID] = clone
	return nil
}

func (r *MemoryMessageRepository) Get(_ context.Context, ownerID, messageID string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.messages[messageID]
	if !ok || message.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return cloneMessage(message), nil
}

func (r *MemoryMessageRepository) ListByIDs(
	_ context.Context,
	ownerID string,
	messageIDs []string,
	platform string,
) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platform = strings.ToLower(strings.TrimSpace(platform))
	seen := make(map[string]struct{}, len(messageIDs))
	result := make([]domain.Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		message, ok := r.messages[id]
		if !ok || message.OwnerID != ownerID {
			continue
		}
		if platform != "" && strings.ToLower(message.Platform) != platform {
			continue
		}
		result = append(result, *cloneMessage(message))
	}
	return result, nil
}

func (r *MemoryMessageRepository) ApplyAnalysis(
	_ context.Context,
	ownerID string,
	messageID string,
	update domain.MessageUpdate,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messages[messageID]
	if !ok || message.OwnerID != ownerID {
		return ErrNotFound
	}
	if update.Sentiment != nil {
		message.Sentiment = *update.Sentiment
	}
	if update.Priority != nil {
		message.Priority = *update.Priority
	}
	if len(update.Metadata) > 0 {
		if message.Metadata == nil {
			message.Metadata = make(map[string]any, len(update.Metadata))
		}
		for key, value := range update.Metadata {
			message.Metadata[key] = value
		}
	}
	message.UpdatedAt = r.now().UTC()
	return nil
}

// snapshot returns copies of the owner's messages, newest first.
func (r *MemoryMessageRepository) snapshot(ownerID string) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Message, 0)
	for _, message := range r.messages {
		if message.OwnerID == ownerID {
			result = append(result, *cloneMessage(message))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func cloneMessage(message *domain.Message) *domain.Message {
	clone := *message
	if message.Metadata != nil {
		clone.Metadata = make(map[string]any, len(message.Metadata))
		for key, value := range message.Metadata {
			clone.Metadata[key] = value
		}
	}
	return &clone
}
