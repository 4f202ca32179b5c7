package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iago/socialdesk-back/internal/analysis"
	"github.com/iago/socialdesk-back/internal/cache"
	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/repository"
)

var (
	ErrEmptyBatch    = errors.New("messageIds must not be empty")
	ErrInvalidAction = errors.New("action must be analyze, auto-reply or categorize")
	ErrMissingOwner  = errors.New("owner id is required")
)

const (
	MaxItems           = 100
	DefaultBatchSize   = 10
	DefaultConcurrency = 5
	DefaultItemTimeout = 30 * time.Second

	errMessageNotFound = "message not found"
	errBatchCancelled  = "batch cancelled"
	errAnalysisTimeout = "analysis timed out"
)

// Analyzer is satisfied by *analysis.Analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, input analysis.Input, action domain.Action) analysis.Result
}

type Config struct {
	Concurrency int
	ItemTimeout time.Duration
	Now         func() time.Time
}

type Request struct {
	MessageIDs []string
	Action     domain.Action
	OwnerID    string
	Platform   string
	BatchSize  int
}

// Processor runs one AI action over many messages. Chunks run one after
// another; items inside a chunk run with bounded concurrency and never
// abort their siblings.
type Processor struct {
	messages repository.MessageRepository
	analyzer Analyzer
	cache    cache.ResultCache
	logger   *log.Logger
	config   Config
}

func NewProcessor(
	messages repository.MessageRepository,
	analyzer Analyzer,
	resultCache cache.ResultCache,
	config Config,
	logger *log.Logger,
) *Processor {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.ItemTimeout <= 0 {
		config.ItemTimeout = DefaultItemTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if resultCache == nil {
		resultCache = cache.NewMemory(cache.Config{})
	}
	return &Processor{
		messages: messages,
		analyzer: analyzer,
		cache:    resultCache,
		logger:   logger,
		config:   config,
	}
}

func (p *Processor) Process(ctx context.Context, request Request) (domain.BatchResult, error) {
	if len(request.MessageIDs) == 0 {
		return domain.BatchResult{}, ErrEmptyBatch
	}
	if !request.Action.Valid() {
		return domain.BatchResult{}, ErrInvalidAction
	}
	if strings.TrimSpace(request.OwnerID) == "" {
		return domain.BatchResult{}, ErrMissingOwner
	}

	ids := request.MessageIDs
	if len(ids) > MaxItems {
		p.logf("batch truncated owner=%s submitted=%d max=%d", request.OwnerID, len(ids), MaxItems)
		ids = ids[:MaxItems]
	}
	batchSize := clampBatchSize(request.BatchSize)

	started := p.config.Now()
	result := domain.BatchResult{
		Results:      make([]domain.BatchOutcome, 0, len(ids)),
		ErrorDetails: make([]domain.ChunkErrors, 0),
	}

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		var outcomes []domain.BatchOutcome
		if ctx.Err() != nil {
			outcomes = failAll(ids[start:end], errBatchCancelled)
		} else {
			outcomes = p.processChunk(ctx, request, ids[start:end])
		}

		chunkErrors := make([]domain.ItemError, 0)
		for _, outcome := range outcomes {
			if outcome.Success {
				result.Processed++
				continue
			}
			result.Errors++
			chunkErrors = append(chunkErrors, domain.ItemError{MessageID: outcome.MessageID, Error: outcome.Error})
		}
		if len(chunkErrors) > 0 {
			result.ErrorDetails = append(result.ErrorDetails, domain.ChunkErrors{
				Range:  fmt.Sprintf("%d-%d", start, end-1),
				Errors: chunkErrors,
			})
		}
		result.Results = append(result.Results, outcomes...)
	}

	swept := p.cache.Sweep(context.WithoutCancel(ctx))
	p.logf(
		"batch done owner=%s action=%s items=%d processed=%d errors=%d swept=%d duration_ms=%d",
		request.OwnerID,
		request.Action,
		len(ids),
		result.Processed,
		result.Errors,
		swept,
		p.config.Now().Sub(started).Milliseconds(),
	)
	return result, nil
}

func (p *Processor) processChunk(ctx context.Context, request Request, ids []string) []domain.BatchOutcome {
	found, err := p.messages.ListByIDs(ctx, request.OwnerID, ids, request.Platform)
	if err != nil {
		p.logf("batch chunk load failed owner=%s: %v", request.OwnerID, err)
		return failAll(ids, "failed to load messages")
	}
	byID := make(map[string]domain.Message, len(found))
	for _, message := range found {
		byID[message.ID] = message
	}

	// The first item with a given cache key leads; later items with the same
	// key wait for it and then read the cache.
	type plan struct {
		message domain.Message
		key     string
		wait    <-chan struct{}
		done    chan struct{}
	}
	plans := make([]*plan, len(ids))
	leaders := make(map[string]chan struct{})
	for index, id := range ids {
		message, ok := byID[id]
		if !ok {
			continue
		}
		key := cache.BuildKey(request.OwnerID, string(request.Action), message.Content)
		item := &plan{message: message, key: key}
		if leader, exists := leaders[key]; exists {
			item.wait = leader
		} else {
			item.done = make(chan struct{})
			leaders[key] = item.done
		}
		plans[index] = item
	}

	outcomes := make([]domain.BatchOutcome, len(ids))
	var group errgroup.Group
	group.SetLimit(p.config.Concurrency)
	for index, id := range ids {
		item := plans[index]
		if item == nil {
			outcomes[index] = domain.BatchOutcome{MessageID: id, Error: errMessageNotFound}
			continue
		}
		index := index
		group.Go(func() error {
			outcomes[index] = p.processItem(ctx, request, item.message, item.key, item.wait, item.done)
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

func (p *Processor) processItem(
	ctx context.Context,
	request Request,
	message domain.Message,
	key string,
	wait <-chan struct{},
	done chan struct{},
) domain.BatchOutcome {
	outcome := domain.BatchOutcome{MessageID: message.ID}

	body, cached, fallback, failure := p.resolve(ctx, request, message, key, wait)
	if done != nil {
		close(done)
	}
	if failure != "" {
		outcome.Error = failure
		return outcome
	}

	update, err := buildUpdate(request.Action, body, fallback, p.config.Now())
	if err != nil {
		outcome.Error = "failed to decode result"
		return outcome
	}
	if err := p.messages.ApplyAnalysis(ctx, request.OwnerID, message.ID, update); err != nil {
		p.logf("batch persist failed owner=%s message=%s: %v", request.OwnerID, message.ID, err)
		outcome.Error = "failed to save result"
		return outcome
	}

	outcome.Success = true
	outcome.Result = body
	outcome.Cached = cached
	outcome.Fallback = fallback
	return outcome
}

func (p *Processor) resolve(
	ctx context.Context,
	request Request,
	message domain.Message,
	key string,
	wait <-chan struct{},
) (json.RawMessage, bool, bool, string) {
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, false, false, errBatchCancelled
		}
	}

	if entry, ok := p.cache.Get(ctx, key); ok {
		return entry.Value, true, false, ""
	}

	itemCtx, cancel := context.WithTimeout(ctx, p.config.ItemTimeout)
	result := p.analyzer.Analyze(itemCtx, analysis.Input{
		OwnerID:     request.OwnerID,
		Content:     message.Content,
		Platform:    message.Platform,
		Sender:      message.SenderName,
		MessageType: message.Type,
		PostTitle:   message.PostTitle,
	}, request.Action)
	itemErr := itemCtx.Err()
	cancel()

	if result.Fallback() && itemErr != nil {
		if ctx.Err() != nil {
			return nil, false, false, errBatchCancelled
		}
		return nil, false, false, errAnalysisTimeout
	}
	if !result.Fallback() {
		p.cache.Put(ctx, key, result.Body)
	}
	return result.Body, false, result.Fallback(), ""
}

// buildUpdate maps an action result onto the message fields it owns.
func buildUpdate(action domain.Action, body json.RawMessage, fallback bool, now time.Time) (domain.MessageUpdate, error) {
	update := domain.MessageUpdate{Metadata: map[string]any{
		"aiProcessedAt": now.UTC().Format(time.RFC3339),
	}}
	if fallback {
		update.Metadata["aiFallback"] = true
	}

	switch action {
	case domain.ActionAnalyze:
		var decoded map[string]any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return domain.MessageUpdate{}, err
		}
		if sentiment, ok := decoded["sentiment"].(string); ok && sentiment != "" {
			update.Sentiment = &sentiment
		}
		if priority, ok := decoded["priority"].(string); ok && priority != "" {
			update.Priority = &priority
		}
		update.Metadata["aiAnalysis"] = decoded
	case domain.ActionAutoReply:
		var decoded struct {
			Options []any `json:"options"`
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return domain.MessageUpdate{}, err
		}
		update.Metadata["autoReplies"] = decoded.Options
	case domain.ActionCategorize:
		var decoded domain.Categorization
		if err := json.Unmarshal(body, &decoded); err != nil {
			return domain.MessageUpdate{}, err
		}
		update.Metadata["category"] = decoded.Category
		update.Metadata["subcategory"] = decoded.Subcategory
		update.Metadata["tags"] = decoded.Tags
	}
	return update, nil
}

func failAll(ids []string, reason string) []domain.BatchOutcome {
	outcomes := make([]domain.BatchOutcome, 0, len(ids))
	for _, id := range ids {
		outcomes = append(outcomes, domain.BatchOutcome{MessageID: id, Error: reason})
	}
	return outcomes
}

func clampBatchSize(size int) int {
	switch {
	case size <= 0:
		return DefaultBatchSize
	case size > MaxItems:
		return MaxItems
	default:
		return size
	}
}

func (p *Processor) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
