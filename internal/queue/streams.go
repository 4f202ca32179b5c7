package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iago/socialdesk-back/internal/domain"
)

type StreamsConfig struct {
	Addr        string
	Password    string
	DB          int
	Stream      string
	DLQStream   string
	Group       string
	Consumer    string
	MaxAttempts int
}

// StreamsQueue carries report runs over a Redis Stream with a consumer
// group. Failed runs are re-added with a bumped attempt and end up in the
// DLQ stream once the budget is spent.
type StreamsQueue struct {
	client      *redis.Client
	stream      string
	dlqStream   string
	group       string
	consumer    string
	maxAttempts int
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	cfg = withStreamDefaults(cfg)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	queue := &StreamsQueue{
		client:      client,
		stream:      cfg.Stream,
		dlqStream:   cfg.DLQStream,
		group:       cfg.Group,
		consumer:    cfg.Consumer,
		maxAttempts: cfg.MaxAttempts,
	}
	if err := queue.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return queue, nil
}

func withStreamDefaults(cfg StreamsConfig) StreamsConfig {
	if cfg.Stream == "" {
		cfg.Stream = "report_runs"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = cfg.Stream + "_dlq"
	}
	if cfg.Group == "" {
		cfg.Group = "report_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "api-1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return cfg
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: streamValues(message)}).Err(); err != nil {
		return fmt.Errorf("enqueue run %s: %w", message.RunID, err)
	}
	return nil
}

func (q *StreamsQueue) EnqueueBatch(ctx context.Context, messages []domain.QueueMessage) error {
	if len(messages) == 0 {
		return nil
	}

	pipeline := q.client.Pipeline()
	for _, message := range messages {
		pipeline.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: streamValues(message)})
	}
	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %d runs: %w", len(messages), err)
	}
	return nil
}

func (q *StreamsQueue) Consume(ctx context.Context, handler Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				q.deliver(ctx, item, handler)
			}
		}
	}
}

func (q *StreamsQueue) deliver(ctx context.Context, item redis.XMessage, handler Handler) {
	defer func() { _ = q.ackAndDelete(ctx, item.ID) }()

	message, err := parseStreamMessage(item)
	if err != nil {
		_ = q.sendToDLQ(ctx, domain.QueueMessage{}, item.ID, err.Error())
		return
	}

	handleErr := handler(ctx, message)
	if handleErr == nil {
		return
	}

	message.Attempt++
	if message.Attempt >= q.maxAttempts {
		_ = q.sendToDLQ(ctx, message, item.ID, handleErr.Error())
		return
	}
	if err := q.Enqueue(ctx, message); err != nil {
		_ = q.sendToDLQ(ctx, message, item.ID, fmt.Sprintf("requeue failed: %v", err))
	}
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *StreamsQueue) sendToDLQ(ctx context.Context, message domain.QueueMessage, streamID, reason string) error {
	values := streamValues(message)
	values["stream_id"] = streamID
	values["error"] = reason
	values["moved_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream, Values: values}).Err(); err != nil {
		return fmt.Errorf("send to dlq: %w", err)
	}
	return nil
}

func streamValues(message domain.QueueMessage) map[string]any {
	return map[string]any{
		"run_id":       message.RunID,
		"schedule_id":  message.ScheduleID,
		"owner_id":     message.OwnerID,
		"payload":      string(message.Payload),
		"attempt":      message.Attempt,
		"requested_at": message.RequestedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseStreamMessage(item redis.XMessage) (domain.QueueMessage, error) {
	fields := make(map[string]string, 6)
	for _, key := range []string{"run_id", "schedule_id", "owner_id", "payload", "attempt", "requested_at"} {
		value, ok := item.Values[key]
		if !ok {
			return domain.QueueMessage{}, fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			fields[key] = casted
		case []byte:
			fields[key] = string(casted)
		default:
			fields[key] = fmt.Sprintf("%v", casted)
		}
	}

	if fields["run_id"] == "" {
		return domain.QueueMessage{}, errors.New("empty run_id")
	}
	attempt, err := strconv.Atoi(fields["attempt"])
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid attempt: %w", err)
	}
	requestedAt, err := time.Parse(time.RFC3339Nano, fields["requested_at"])
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid requested_at: %w", err)
	}

	message := domain.QueueMessage{
		RunID:       fields["run_id"],
		ScheduleID:  fields["schedule_id"],
		OwnerID:     fields["owner_id"],
		Attempt:     attempt,
		RequestedAt: requestedAt,
	}
	if payload := fields["payload"]; payload != "" {
		message.Payload = []byte(payload)
	}
	return message, nil
}
