package queue

import (
	"context"

	"github.com/iago/socialdesk-back/internal/domain"
)

// Handler processes one report run message. A non-nil error schedules a
// retry until the attempt budget is spent.
type Handler func(context.Context, domain.QueueMessage) error

// Producer publishes report run messages.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// Consumer delivers report run messages to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

type batchProducer interface {
	EnqueueBatch(ctx context.Context, messages []domain.QueueMessage) error
}

const defaultMaxAttempts = 3
