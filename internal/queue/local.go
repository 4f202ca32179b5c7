package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
)

// LocalQueue is the in-process transport used when Redis is not configured.
// Messages that fail maxAttempts times are kept as dead letters.
type LocalQueue struct {
	ch          chan domain.QueueMessage
	maxAttempts int
	retryDelay  time.Duration
	logger      *log.Logger

	deadMu sync.Mutex
	dead   []domain.QueueMessage
}

func NewLocalQueue(bufferSize, maxAttempts int, logger *log.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &LocalQueue{
		ch:          make(chan domain.QueueMessage, bufferSize),
		maxAttempts: maxAttempts,
		retryDelay:  500 * time.Millisecond,
		logger:      logger,
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	return q.EnqueueBatch(ctx, []domain.QueueMessage{message})
}

func (q *LocalQueue) EnqueueBatch(ctx context.Context, messages []domain.QueueMessage) error {
	for _, message := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q.ch <- message:
		}
	}
	return nil
}

func (q *LocalQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.ch:
			if err := handler(ctx, message); err != nil {
				q.retry(ctx, message, err)
			}
		}
	}
}

func (q *LocalQueue) retry(ctx context.Context, message domain.QueueMessage, cause error) {
	message.Attempt++
	if message.Attempt >= q.maxAttempts {
		q.deadMu.Lock()
		q.dead = append(q.dead, message)
		q.deadMu.Unlock()
		q.logf("run moved to dead letters run_id=%s schedule_id=%s attempts=%d err=%v",
			message.RunID, message.ScheduleID, message.Attempt, cause)
		return
	}

	delay := time.Duration(message.Attempt) * q.retryDelay
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			select {
			case q.ch <- message:
			case <-ctx.Done():
			}
		}
	}()
}

// DeadLetters returns a copy of the messages that exhausted their attempts.
func (q *LocalQueue) DeadLetters() []domain.QueueMessage {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	return append([]domain.QueueMessage(nil), q.dead...)
}

func (q *LocalQueue) logf(format string, args ...any) {
	if q.logger == nil {
		return
	}
	q.logger.Printf(format, args...)
}
