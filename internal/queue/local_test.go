package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
)

func TestLocalQueueRetriesThenDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewLocalQueue(4, 3, nil)
	queue.retryDelay = time.Millisecond

	var calls atomic.Int32
	go func() {
		_ = queue.Consume(ctx, func(context.Context, domain.QueueMessage) error {
			calls.Add(1)
			return errors.New("export failed")
		})
	}()

	if err := queue.Enqueue(ctx, runMessage(1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(queue.DeadLetters()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	dead := queue.DeadLetters()
	if len(dead) != 1 || dead[0].RunID != "run-1" || dead[0].Attempt != 3 {
		t.Fatalf("unexpected dead letters %+v", dead)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestLocalQueueDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewLocalQueue(8, 0, nil)
	_ = queue.EnqueueBatch(ctx, []domain.QueueMessage{runMessage(1), runMessage(2)})

	received := make(chan string, 2)
	go func() {
		_ = queue.Consume(ctx, func(_ context.Context, message domain.QueueMessage) error {
			received <- message.RunID
			return nil
		})
	}()

	for _, expected := range []string{"run-1", "run-2"} {
		select {
		case got := <-received:
			if got != expected {
				t.Fatalf("expected %s, got %s", expected, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", expected)
		}
	}
}
