package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
)

var (
	ErrQueueBackpressure = errors.New("queue backpressure: enqueue buffer is full")
	ErrBatchingClosed    = errors.New("batching producer is closed")
)

type BatchingConfig struct {
	MaxBatchSize       int
	FlushInterval      time.Duration
	FlushTimeout       time.Duration
	QueueCapacity      int
	MaxInFlightBatches int
}

func (c BatchingConfig) withDefaults() BatchingConfig {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 32
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 25 * time.Millisecond
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 3 * time.Second
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1024
	}
	if c.MaxInFlightBatches <= 0 {
		c.MaxInFlightBatches = 4
	}
	return c
}

type pendingEnqueue struct {
	ctx     context.Context
	message domain.QueueMessage
	result  chan error
}

// BatchingProducer collects run messages that arrive close together, such as
// every schedule claimed in one scheduler tick, and writes them in one call.
// The input buffer is bounded; a full buffer fails fast with
// ErrQueueBackpressure.
type BatchingProducer struct {
	base   Producer
	writer batchProducer
	config BatchingConfig

	in        chan pendingEnqueue
	inFlight  chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewBatchingProducer(parent context.Context, base Producer, cfg BatchingConfig) *BatchingProducer {
	cfg = cfg.withDefaults()
	producer := &BatchingProducer{
		base:     base,
		config:   cfg,
		in:       make(chan pendingEnqueue, cfg.QueueCapacity),
		inFlight: make(chan struct{}, cfg.MaxInFlightBatches),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if writer, ok := base.(batchProducer); ok {
		producer.writer = writer
	}

	go producer.loop(parent.Done())
	return producer
}

func (b *BatchingProducer) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	request := pendingEnqueue{ctx: ctx, message: message, result: make(chan error, 1)}
	select {
	case <-b.done:
		return ErrBatchingClosed
	default:
	}
	select {
	case b.in <- request:
	case <-b.done:
		return ErrBatchingClosed
	default:
		return ErrQueueBackpressure
	}

	select {
	case err := <-request.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes whatever is pending and stops the loop.
func (b *BatchingProducer) Close() {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done
	})
}

func (b *BatchingProducer) loop(parentDone <-chan struct{}) {
	defer close(b.done)

	pending := make([]pendingEnqueue, 0, b.config.MaxBatchSize)
	var deadline <-chan time.Time
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)

	flush := func(final bool) {
		deadline = nil
		stopTimer(timer)
		if len(pending) == 0 {
			return
		}
		batch := append([]pendingEnqueue(nil), pending...)
		pending = pending[:0]
		b.write(batch, final)
	}

	for {
		select {
		case <-parentDone:
			flush(true)
			return
		case <-b.stop:
			flush(true)
			return
		case <-deadline:
			flush(false)
		case request := <-b.in:
			if err := request.ctx.Err(); err != nil {
				request.result <- err
				continue
			}
			pending = append(pending, request)
			if len(pending) == 1 {
				timer.Reset(b.config.FlushInterval)
				deadline = timer.C
			}
			if len(pending) >= b.config.MaxBatchSize {
				flush(false)
			}
		}
	}
}

func (b *BatchingProducer) write(batch []pendingEnqueue, final bool) {
	live := batch[:0]
	for _, request := range batch {
		if err := request.ctx.Err(); err != nil {
			request.result <- err
			continue
		}
		live = append(live, request)
	}
	if len(live) == 0 {
		return
	}

	// Group by owner and schedule, oldest request first within a group.
	sort.SliceStable(live, func(i, j int) bool {
		left, right := coalesceKey(live[i].message), coalesceKey(live[j].message)
		if left == right {
			return live[i].message.RequestedAt.Before(live[j].message.RequestedAt)
		}
		return left < right
	})
	messages := make([]domain.QueueMessage, 0, len(live))
	for _, request := range live {
		messages = append(messages, request.message)
	}

	ctx := context.Background()
	if !final {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.FlushTimeout)
		defer cancel()
	}

	select {
	case b.inFlight <- struct{}{}:
		defer func() { <-b.inFlight }()
	case <-ctx.Done():
		reply(live, ctx.Err())
		return
	}

	reply(live, b.send(ctx, messages))
}

func (b *BatchingProducer) send(ctx context.Context, messages []domain.QueueMessage) error {
	if b.writer != nil {
		return b.writer.EnqueueBatch(ctx, messages)
	}
	for _, message := range messages {
		if err := b.base.Enqueue(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

func reply(requests []pendingEnqueue, err error) {
	for _, request := range requests {
		request.result <- err
	}
}

func coalesceKey(message domain.QueueMessage) string {
	return message.OwnerID + "|" + message.ScheduleID
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
