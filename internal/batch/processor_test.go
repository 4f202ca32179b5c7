package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iago/socialdesk-back/internal/analysis"
	"github.com/iago/socialdesk-back/internal/cache"
	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/repository"
)

type fakeAnalyzer struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	fallback bool
	block    bool
	onCall   func()
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, input analysis.Input, action domain.Action) analysis.Result {
	f.calls.Add(1)
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if f.onCall != nil {
		f.onCall()
	}
	if f.block {
		<-ctx.Done()
		return analysis.Result{Status: analysis.StatusFallback, Action: action, Body: json.RawMessage(`{"sentiment":"neutral","priority":"medium"}`)}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fallback {
		return analysis.Result{Status: analysis.StatusFallback, Action: action, Body: json.RawMessage(`{"sentiment":"neutral","priority":"medium"}`)}
	}

	var body []byte
	switch action {
	case domain.ActionCategorize:
		body = []byte(`{"category":"support","subcategory":"billing","tags":["invoice"]}`)
	case domain.ActionAutoReply:
		body = []byte(`{"options":[{"type":"quick","content":"a"},{"type":"detailed","content":"b"},{"type":"conversational","content":"c"}]}`)
	default:
		body, _ = json.Marshal(map[string]any{"sentiment": "positive", "priority": "high", "echo": input.Content})
	}
	return analysis.Result{Status: analysis.StatusOK, Action: action, Body: body, ModelID: "fake"}
}

type failingRepository struct {
	*repository.MemoryMessageRepository
	failID string
}

func (r *failingRepository) ApplyAnalysis(ctx context.Context, ownerID, messageID string, update domain.MessageUpdate) error {
	if messageID == r.failID {
		return errors.New("write failed")
	}
	return r.MemoryMessageRepository.ApplyAnalysis(ctx, ownerID, messageID, update)
}

func seedMessages(t *testing.T, repo *repository.MemoryMessageRepository, owner string, contents map[string]string) {
	t.Helper()
	for id, content := range contents {
		if err := repo.Create(context.Background(), &domain.Message{
			ID:       id,
			OwnerID:  owner,
			Platform: "instagram",
			Content:  content,
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func TestProcessReportsOneOutcomePerIDInOrder(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	seedMessages(t, repo, "owner-a", map[string]string{"m1": "first", "m2": "second", "m3": "third"})
	seedMessages(t, repo, "owner-b", map[string]string{"foreign": "not yours"})

	processor := NewProcessor(repo, &fakeAnalyzer{}, cache.NewMemory(cache.Config{}), Config{}, nil)
	ids := []string{"m3", "missing", "m1", "foreign", "m2"}
	result, err := processor.Process(context.Background(), Request{
		MessageIDs: ids,
		Action:     domain.ActionAnalyze,
		OwnerID:    "owner-a",
		BatchSize:  2,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if result.Processed+result.Errors != len(ids) || result.Processed != 3 || result.Errors != 2 {
		t.Fatalf("unexpected counts processed=%d errors=%d", result.Processed, result.Errors)
	}
	for index, outcome := range result.Results {
		if outcome.MessageID != ids[index] {
			t.Fatalf("expected result %d to be %s, got %s", index, ids[index], outcome.MessageID)
		}
	}
	if result.Results[1].Error != "message not found" || result.Results[3].Error != "message not found" {
		t.Fatalf("expected missing and foreign ids to be not found, got %+v", result.Results)
	}
	if len(result.ErrorDetails) != 2 || result.ErrorDetails[0].Range != "0-1" || result.ErrorDetails[1].Range != "2-3" {
		t.Fatalf("unexpected error details %+v", result.ErrorDetails)
	}

	stored, _ := repo.Get(context.Background(), "owner-a", "m1")
	if stored.Sentiment != "positive" || stored.Priority != "high" {
		t.Fatalf("expected analysis persisted, got %+v", stored)
	}
	if _, ok := stored.Metadata["aiAnalysis"]; !ok {
		t.Fatalf("expected aiAnalysis metadata")
	}
	if _, ok := stored.Metadata["aiProcessedAt"]; !ok {
		t.Fatalf("expected aiProcessedAt metadata")
	}
}

func TestProcessDeduplicatesIdenticalContentInsideChunk(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	seedMessages(t, repo, "owner-a", map[string]string{"m1": "Same text", "m2": "  Same text ", "m3": "same text"})
	analyzer := &fakeAnalyzer{delay: 20 * time.Millisecond}

	processor := NewProcessor(repo, analyzer, cache.NewMemory(cache.Config{}), Config{}, nil)
	result, err := processor.Process(context.Background(), Request{
		MessageIDs: []string{"m1", "m2", "m3"},
		Action:     domain.ActionCategorize,
		OwnerID:    "owner-a",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if calls := analyzer.calls.Load(); calls != 2 {
		t.Fatalf("expected 2 analyzer calls, got %d", calls)
	}
	if result.Results[0].Cached || !result.Results[1].Cached || result.Results[2].Cached {
		t.Fatalf("expected only the trimmed duplicate to be served from cache, got %+v", result.Results)
	}

	stored, _ := repo.Get(context.Background(), "owner-a", "m2")
	if stored.Metadata["category"] != "support" || stored.Metadata["subcategory"] != "billing" {
		t.Fatalf("expected categorization persisted on duplicate, got %+v", stored.Metadata)
	}
}

func TestProcessServesRepeatedRequestsFromCache(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	seedMessages(t, repo, "owner-a", map[string]string{"m1": "one", "m2": "two"})
	analyzer := &fakeAnalyzer{}
	processor := NewProcessor(repo, analyzer, cache.NewMemory(cache.Config{}), Config{}, nil)

	request := Request{MessageIDs: []string{"m1", "m2"}, Action: domain.ActionAutoReply, OwnerID: "owner-a"}
	if _, err := processor.Process(context.Background(), request); err != nil {
		t.Fatalf("first process: %v", err)
	}
	second, err := processor.Process(context.Background(), request)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if calls := analyzer.calls.Load(); calls != 2 {
		t.Fatalf("expected no new analyzer calls, got %d total", calls)
	}
	for _, outcome := range second.Results {
		if !outcome.Cached || !outcome.Success {
			t.Fatalf("expected cached success, got %+v", outcome)
		}
	}
}

func TestProcessDoesNotCacheFallbackResults(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	seedMessages(t, repo, "owner-a", map[string]string{"m1": "one"})
	analyzer := &fakeAnalyzer{fallback: true}
	processor := NewProcessor(repo, analyzer, cache.NewMemory(cache.Config{}), Config{}, nil)

	request := Request{MessageIDs: []string{"m1"}, Action: domain.ActionAnalyze, OwnerID: "owner-a"}
	first, _ := processor.Process(context.Background(), request)
	_, _ = processor.Process(context.Background(), request)

	if !first.Results[0].Success || !first.Results[0].Fallback {
		t.Fatalf("expected successful fallback outcome, got %+v", first.Results[0])
	}
	if calls := analyzer.calls.Load(); calls != 2 {
		t.Fatalf("expected fallback to be recomputed, got %d calls", calls)
	}
	stored, _ := repo.Get(context.Background(), "owner-a", "m1")
	if stored.Metadata["aiFallback"] != true {
		t.Fatalf("expected fallback flag persisted, got %+v", stored.Metadata)
	}
}

func TestProcessBoundsConcurrency(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	contents := make(map[string]string)
	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("m%02d", i)
		contents[id] = fmt.Sprintf("content %d", i)
		ids = append(ids, id)
	}
	seedMessages(t, repo, "owner-a", contents)
	analyzer := &fakeAnalyzer{delay: 10 * time.Millisecond}

	processor := NewProcessor(repo, analyzer, cache.NewMemory(cache.Config{}), Config{Concurrency: 5}, nil)
	result, err := processor.Process(context.Background(), Request{MessageIDs: ids, Action: domain.ActionAnalyze, OwnerID: "owner-a", BatchSize: 20})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Processed != 20 {
		t.Fatalf("expected all items processed, got %d", result.Processed)
	}
	if peak := analyzer.maxSeen.Load(); peak > 5 {
		t.Fatalf("expected at most 5 concurrent calls, saw %d", peak)
	}
}

func TestProcessFailsItemsThatTimeOut(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	seedMessages(t, repo, "owner-a", map[string]string{"m1": "slow"})
	processor := NewProcessor(repo, &fakeAnalyzer{block: true}, cache.NewMemory(cache.Config{}), Config{ItemTimeout: 20 * time.Millisecond}, nil)

	result, err := processor.Process(context.Background(), Request{MessageIDs: []string{"m1"}, Action: domain.ActionAnalyze, OwnerID: "owner-a"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Errors != 1 || result.Results[0].Error != "analysis timed out" {
		t.Fatalf("expected timeout failure, got %+v", result.Results)
	}
}

func TestProcessStopsBetweenChunksWhenCancelled(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	seedMessages(t, repo, "owner-a", map[string]string{"m1": "a", "m2": "b", "m3": "c"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	analyzer := &fakeAnalyzer{onCall: func() { once.Do(cancel) }}
	processor := NewProcessor(repo, analyzer, cache.NewMemory(cache.Config{}), Config{}, nil)

	result, err := processor.Process(ctx, Request{MessageIDs: []string{"m1", "m2", "m3"}, Action: domain.ActionAnalyze, OwnerID: "owner-a", BatchSize: 1})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(result.Results) != 3 {
		t.Fatalf("expected every id reported, got %d", len(result.Results))
	}
	if result.Results[1].Error != "batch cancelled" || result.Results[2].Error != "batch cancelled" {
		t.Fatalf("expected remaining chunks cancelled, got %+v", result.Results)
	}
	if calls := analyzer.calls.Load(); calls != 1 {
		t.Fatalf("expected only the first chunk analyzed, got %d", calls)
	}
}

func TestProcessIsolatesPersistenceFailures(t *testing.T) {
	memory := repository.NewMemoryMessageRepository()
	seedMessages(t, memory, "owner-a", map[string]string{"m1": "a", "m2": "b"})
	repo := &failingRepository{MemoryMessageRepository: memory, failID: "m1"}

	processor := NewProcessor(repo, &fakeAnalyzer{}, cache.NewMemory(cache.Config{}), Config{}, nil)
	result, err := processor.Process(context.Background(), Request{MessageIDs: []string{"m1", "m2"}, Action: domain.ActionAnalyze, OwnerID: "owner-a"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Results[0].Success || result.Results[0].Error != "failed to save result" {
		t.Fatalf("expected first item to fail persistence, got %+v", result.Results[0])
	}
	if !result.Results[1].Success {
		t.Fatalf("expected second item to succeed, got %+v", result.Results[1])
	}
}

type chunkRecordingRepository struct {
	*repository.MemoryMessageRepository
	mu    sync.Mutex
	sizes []int
}

func (r *chunkRecordingRepository) ListByIDs(ctx context.Context, ownerID string, messageIDs []string, platform string) ([]domain.Message, error) {
	r.mu.Lock()
	r.sizes = append(r.sizes, len(messageIDs))
	r.mu.Unlock()
	return r.MemoryMessageRepository.ListByIDs(ctx, ownerID, messageIDs, platform)
}

func TestProcessChunksTwelveIDsIntoFiveFiveTwo(t *testing.T) {
	memory := repository.NewMemoryMessageRepository()
	ids := make([]string, 0, 12)
	contents := map[string]string{}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("m%d", i)
		ids = append(ids, id)
		if i == 2 || i == 7 || i == 11 {
			continue
		}
		contents[id] = fmt.Sprintf("message number %d", i)
	}
	seedMessages(t, memory, "owner-a", contents)
	repo := &chunkRecordingRepository{MemoryMessageRepository: memory}

	processor := NewProcessor(repo, &fakeAnalyzer{}, cache.NewMemory(cache.Config{}), Config{}, nil)
	result, err := processor.Process(context.Background(), Request{
		MessageIDs: ids,
		Action:     domain.ActionAnalyze,
		OwnerID:    "owner-a",
		BatchSize:  5,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if fmt.Sprint(repo.sizes) != "[5 5 2]" {
		t.Fatalf("expected chunks of 5, 5 and 2, got %v", repo.sizes)
	}
	if result.Processed != 9 || result.Errors != 3 || len(result.Results) != 12 {
		t.Fatalf("unexpected counts processed=%d errors=%d results=%d", result.Processed, result.Errors, len(result.Results))
	}
	expected := []string{"0-4", "5-9", "10-11"}
	if len(result.ErrorDetails) != len(expected) {
		t.Fatalf("expected %d error details, got %+v", len(expected), result.ErrorDetails)
	}
	for index, detail := range result.ErrorDetails {
		if detail.Range != expected[index] || len(detail.Errors) != 1 {
			t.Fatalf("unexpected error detail %d: %+v", index, detail)
		}
	}
}

func TestProcessTruncatesToMaxItems(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	ids := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		ids = append(ids, fmt.Sprintf("missing-%d", i))
	}
	processor := NewProcessor(repo, &fakeAnalyzer{}, cache.NewMemory(cache.Config{}), Config{}, nil)

	result, err := processor.Process(context.Background(), Request{MessageIDs: ids, Action: domain.ActionAnalyze, OwnerID: "owner-a"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(result.Results) != MaxItems || result.Errors != MaxItems {
		t.Fatalf("expected %d results, got %d", MaxItems, len(result.Results))
	}
	if len(result.ErrorDetails) != 10 || result.ErrorDetails[0].Range != "0-9" {
		t.Fatalf("expected ten chunks of ten, got %d", len(result.ErrorDetails))
	}
}

func TestProcessRejectsInvalidRequests(t *testing.T) {
	processor := NewProcessor(repository.NewMemoryMessageRepository(), &fakeAnalyzer{}, nil, Config{}, nil)

	if _, err := processor.Process(context.Background(), Request{Action: domain.ActionAnalyze, OwnerID: "o"}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected empty batch error, got %v", err)
	}
	if _, err := processor.Process(context.Background(), Request{MessageIDs: []string{"m1"}, Action: "summarize", OwnerID: "o"}); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected invalid action error, got %v", err)
	}
	if _, err := processor.Process(context.Background(), Request{MessageIDs: []string{"m1"}, Action: domain.ActionAnalyze}); !errors.Is(err, ErrMissingOwner) {
		t.Fatalf("expected missing owner error, got %v", err)
	}
}

func TestClampBatchSize(t *testing.T) {
	cases := map[int]int{0: 10, -3: 10, 1: 1, 25: 25, 500: 100}
	for input, expected := range cases {
		if got := clampBatchSize(input); got != expected {
			t.Fatalf("clampBatchSize(%d) = %d, want %d", input, got, expected)
		}
	}
}
