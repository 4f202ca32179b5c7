package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/iago/socialdesk-back/internal/ai"
	contextbuilder "github.com/iago/socialdesk-back/internal/context"
	"github.com/iago/socialdesk-back/internal/domain"
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	inputs    []string
	models    []string
	available bool
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		responses: make(map[string]string),
		failures:  make(map[string]error),
		available: true,
	}
}

func (f *fakeGenerator) Generate(_ context.Context, request ai.GenerateRequest) (ai.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, request.Input)
	f.models = append(f.models, request.Model)
	if err, ok := f.failures[request.Model]; ok {
		return ai.GenerateResult{}, err
	}
	return ai.GenerateResult{Text: f.responses[request.Model], ModelID: request.Model}, nil
}

func (f *fakeGenerator) Available() bool {
	return f.available
}

type staticDocuments struct {
	documents []domain.Document
}

func (s staticDocuments) RecentDocuments(context.Context, string, int) ([]domain.Document, error) {
	return s.documents, nil
}

func newTestAnalyzer(client ai.TextGenerator) *Analyzer {
	return NewAnalyzer(Dependencies{
		Router: ai.NewModelRouter(ai.ModelRouterConfig{
			AnalyzePrimary:     "primary",
			AnalyzeFallback:    "secondary",
			AutoReplyPrimary:   "primary",
			AutoReplyFallback:  "secondary",
			CategorizePrimary:  "primary",
			CategorizeFallback: "secondary",
		}),
		Client: client,
	})
}

func TestAnalyzeParsesFencedJSON(t *testing.T) {
	client := newFakeGenerator()
	client.responses["primary"] = "```json\n{\"sentiment\":\"Positive\",\"priority\":\"high\",\"suggestedResponse\":\"Thanks!\",\"keyTopics\":[\"pricing\"]}\n```"
	analyzer := newTestAnalyzer(client)

	result := analyzer.Analyze(context.Background(), Input{OwnerID: "owner-1", Content: "Love the new plan"}, domain.ActionAnalyze)
	if result.Fallback() {
		t.Fatalf("expected ok result, got fallback: %s", result.Reason)
	}
	if result.ModelID != "primary" {
		t.Fatalf("expected primary model id, got %s", result.ModelID)
	}

	var analysis domain.MessageAnalysis
	if err := json.Unmarshal(result.Body, &analysis); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if analysis.Sentiment != "positive" || analysis.Priority != "high" {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
}

func TestAnalyzeFallsBackOnMalformedOutput(t *testing.T) {
	client := newFakeGenerator()
	client.responses["primary"] = "I think this message is positive."
	analyzer := newTestAnalyzer(client)

	result := analyzer.Analyze(context.Background(), Input{Content: "hello"}, domain.ActionAnalyze)
	if !result.Fallback() {
		t.Fatalf("expected fallback result")
	}
	if result.Reason == "" {
		t.Fatalf("expected fallback reason to be set")
	}

	var analysis domain.MessageAnalysis
	if err := json.Unmarshal(result.Body, &analysis); err != nil {
		t.Fatalf("decode fallback body: %v", err)
	}
	if analysis.Sentiment != "neutral" || analysis.Priority != "medium" {
		t.Fatalf("expected neutral defaults, got %+v", analysis)
	}
}

func TestAnalyzeUsesFallbackModelWhenPrimaryFails(t *testing.T) {
	client := newFakeGenerator()
	client.failures["primary"] = errors.New("status 503")
	client.responses["secondary"] = `{"category":"Support","subcategory":"billing","tags":["invoice"]}`
	analyzer := newTestAnalyzer(client)

	result := analyzer.Analyze(context.Background(), Input{Content: "Where is my invoice?"}, domain.ActionCategorize)
	if result.Fallback() {
		t.Fatalf("expected ok result from fallback model: %s", result.Reason)
	}
	if result.ModelID != "secondary" {
		t.Fatalf("expected secondary model id, got %s", result.ModelID)
	}
	if len(client.models) != 2 {
		t.Fatalf("expected two provider calls, got %v", client.models)
	}
}

func TestAnalyzeWithoutProviderReturnsDefaults(t *testing.T) {
	client := newFakeGenerator()
	client.available = false

	result := newTestAnalyzer(client).Analyze(context.Background(), Input{Content: "hi", MaxLength: 80}, domain.ActionAutoReply)
	if !result.Fallback() {
		t.Fatalf("expected fallback without provider")
	}
	var replies domain.AutoReplies
	if err := json.Unmarshal(result.Body, &replies); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(replies.Options) != 3 {
		t.Fatalf("expected three default options, got %d", len(replies.Options))
	}
	for _, option := range replies.Options {
		if len([]rune(option.Content)) > 80 {
			t.Fatalf("expected default reply capped at max length, got %q", option.Content)
		}
	}
	if len(client.inputs) != 0 {
		t.Fatalf("expected no provider calls")
	}
}

func TestAnalyzeMasksPIIAndIncludesInsights(t *testing.T) {
	client := newFakeGenerator()
	client.responses["primary"] = `{"sentiment":"neutral","priority":"low"}`
	analyzer := NewAnalyzer(Dependencies{
		Router: ai.NewModelRouter(ai.ModelRouterConfig{AnalyzePrimary: "primary"}),
		Client: client,
		Builder: contextbuilder.NewBuilder(contextbuilder.NewDocumentRetriever(staticDocuments{
			documents: []domain.Document{{ID: "d1", Title: "Survey", Summary: "Customers prefer short answers."}},
		})),
	})

	result := analyzer.Analyze(context.Background(), Input{
		OwnerID: "owner-1",
		Content: "Call me at +1 415 555 0100 or mail jane@example.com",
	}, domain.ActionAnalyze)
	if result.Fallback() {
		t.Fatalf("expected ok result: %s", result.Reason)
	}

	prompt := client.inputs[0]
	if strings.Contains(prompt, "jane@example.com") || strings.Contains(prompt, "555 0100") {
		t.Fatalf("expected pii to be masked in prompt: %s", prompt)
	}
	if !strings.Contains(prompt, "Customers prefer short answers.") {
		t.Fatalf("expected business insights in prompt: %s", prompt)
	}
}

func TestAnalyzeRejectsUnsupportedAction(t *testing.T) {
	result := newTestAnalyzer(newFakeGenerator()).Analyze(context.Background(), Input{Content: "x"}, domain.Action("translate"))
	if !result.Fallback() || string(result.Body) != "{}" {
		t.Fatalf("expected empty fallback for unsupported action, got %+v", result)
	}
}

func TestPromptOverrideDirectoryTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "categorize.tmpl"), []byte("custom {{.Content}}"), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}

	prompts := newPromptSet(dir)
	rendered, err := prompts.render("categorize.tmpl", map[string]any{"Content": "abc"})
	if err != nil {
		t.Fatalf("render override: %v", err)
	}
	if rendered != "custom abc" {
		t.Fatalf("expected override template, got %q", rendered)
	}

	embedded, err := prompts.render("analyze.tmpl", map[string]any{"Content": "abc"})
	if err != nil {
		t.Fatalf("render embedded: %v", err)
	}
	if !strings.Contains(embedded, "abc") {
		t.Fatalf("expected embedded template to render content")
	}
}
