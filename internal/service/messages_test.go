package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/iago/socialdesk-back/internal/analysis"
	"github.com/iago/socialdesk-back/internal/batch"
	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/repository"
)

type stubAnalyzer struct {
	body     string
	fallback bool
	inputs   []analysis.Input
}

func (a *stubAnalyzer) Analyze(_ context.Context, input analysis.Input, action domain.Action) analysis.Result {
	a.inputs = append(a.inputs, input)
	status := analysis.StatusOK
	if a.fallback {
		status = analysis.StatusFallback
	}
	return analysis.Result{Status: status, Action: action, Body: json.RawMessage(a.body), ModelID: "test-model"}
}

func newMessageService(analyzer *stubAnalyzer) (*MessageService, *repository.MemoryMessageRepository) {
	messages := repository.NewMemoryMessageRepository()
	_ = messages.Create(context.Background(), &domain.Message{
		ID:         "m1",
		OwnerID:    "owner-1",
		Platform:   "instagram",
		Type:       "dm",
		Content:    "Where is my order?",
		SenderName: "Ana",
		CreatedAt:  time.Now().UTC(),
	})
	processor := batch.NewProcessor(messages, analyzer, nil, batch.Config{}, nil)
	return NewMessageService(messages, analyzer, processor), messages
}

func TestAnalyzeRejectsEmptyContent(t *testing.T) {
	service, _ := newMessageService(&stubAnalyzer{body: `{}`})
	if _, err := service.Analyze(context.Background(), AnalyzeInput{Content: "   "}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected empty content error, got %v", err)
	}
}

func TestAnalyzeReturnsDecodedAnalysis(t *testing.T) {
	analyzer := &stubAnalyzer{body: `{"sentiment":"negative","priority":"high"}`, fallback: true}
	service, _ := newMessageService(analyzer)

	output, err := service.Analyze(context.Background(), AnalyzeInput{OwnerID: "owner-1", Content: "Terrible service", Platform: "facebook"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if output.Analysis.Sentiment != "negative" || !output.Fallback {
		t.Fatalf("unexpected output %+v", output)
	}
	if analyzer.inputs[0].Platform != "facebook" {
		t.Fatalf("expected platform forwarded")
	}
}

func TestAutoReplyPersistsSuggestions(t *testing.T) {
	analyzer := &stubAnalyzer{body: `{"options":[{"type":"quick","content":"On it!"}]}`}
	service, messages := newMessageService(analyzer)
	ctx := context.Background()

	output, err := service.AutoReply(ctx, AutoReplyInput{OwnerID: "owner-1", MessageID: "m1", Tone: "friendly"})
	if err != nil {
		t.Fatalf("auto reply: %v", err)
	}
	if len(output.AutoReplies.Options) != 1 || !output.HITL.Required {
		t.Fatalf("unexpected output %+v", output)
	}
	if analyzer.inputs[0].Content != "Where is my order?" || analyzer.inputs[0].Tone != "friendly" {
		t.Fatalf("expected stored message content, got %+v", analyzer.inputs[0])
	}

	stored, _ := messages.Get(ctx, "owner-1", "m1")
	if _, ok := stored.Metadata["autoReplies"]; !ok {
		t.Fatalf("expected replies saved on metadata, got %+v", stored.Metadata)
	}
}

func TestAutoReplyHidesOtherOwnersMessages(t *testing.T) {
	service, _ := newMessageService(&stubAnalyzer{body: `{}`})
	_, err := service.AutoReply(context.Background(), AutoReplyInput{OwnerID: "owner-2", MessageID: "m1"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
