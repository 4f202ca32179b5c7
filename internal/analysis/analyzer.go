package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/iago/socialdesk-back/internal/ai"
	contextbuilder "github.com/iago/socialdesk-back/internal/context"
	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/policy"
	"github.com/iago/socialdesk-back/internal/quality"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusFallback Status = "fallback"
)

const (
	fallbackModelID      = "fallback-local"
	maxLoggedOutputRunes = 300
)

// Input is the message data sent to the model. Tone, IncludeEmoji and
// MaxLength only apply to auto-reply.
type Input struct {
	OwnerID      string
	Content      string
	Platform     string
	Sender       string
	MessageType  string
	PostTitle    string
	Tone         string
	IncludeEmoji bool
	MaxLength    int
}

// Result is either a parsed model answer (StatusOK) or the default body for
// the action (StatusFallback). Body always holds valid JSON.
type Result struct {
	Status  Status
	Action  domain.Action
	Body    json.RawMessage
	ModelID string
	Reason  string
}

func (r Result) Fallback() bool {
	return r.Status == StatusFallback
}

type Dependencies struct {
	Router     *ai.ModelRouter
	Client     ai.TextGenerator
	Builder    *contextbuilder.Builder
	Validator  *quality.OutputValidator
	PromptsDir string
	Logger     *log.Logger
}

type Analyzer struct {
	router    *ai.ModelRouter
	client    ai.TextGenerator
	builder   *contextbuilder.Builder
	validator *quality.OutputValidator
	prompts   *promptSet
	logger    *log.Logger
}

func NewAnalyzer(deps Dependencies) *Analyzer {
	if deps.Router == nil {
		deps.Router = ai.NewModelRouter(ai.ModelRouterConfig{})
	}
	if deps.Validator == nil {
		deps.Validator = quality.NewOutputValidator()
	}
	return &Analyzer{
		router:    deps.Router,
		client:    deps.Client,
		builder:   deps.Builder,
		validator: deps.Validator,
		prompts:   newPromptSet(deps.PromptsDir),
		logger:    deps.Logger,
	}
}

// Analyze never fails: provider, parse and quality errors produce a
// fallback result carrying the reason.
func (a *Analyzer) Analyze(ctx context.Context, input Input, action domain.Action) Result {
	if !action.Valid() {
		return Result{
			Status:  StatusFallback,
			Action:  action,
			Body:    json.RawMessage(`{}`),
			ModelID: fallbackModelID,
			Reason:  fmt.Sprintf("unsupported action %q", action),
		}
	}
	input = normalizeInput(input)

	prompt, err := a.prompts.render(templateFor(action), a.promptData(ctx, input, action))
	if err != nil {
		return a.fallback(input, action, fmt.Errorf("render prompt: %w", err))
	}

	text, modelID, err := a.generateText(ctx, a.router.Select(taskFor(action)), prompt)
	if err != nil {
		return a.fallback(input, action, err)
	}

	body, err := a.parse(text, action, input)
	if err != nil {
		a.logf("analysis output rejected action=%s model=%s output=%s", action, modelID, maskedExcerpt(text))
		return a.fallback(input, action, err)
	}

	return Result{Status: StatusOK, Action: action, Body: body, ModelID: modelID}
}

func (a *Analyzer) promptData(ctx context.Context, input Input, action domain.Action) map[string]any {
	data := map[string]any{
		"Content":      policy.MaskPIIString(input.Content),
		"Platform":     input.Platform,
		"Sender":       policy.MaskPIIString(input.Sender),
		"MessageType":  input.MessageType,
		"PostTitle":    input.PostTitle,
		"Tone":         input.Tone,
		"IncludeEmoji": input.IncludeEmoji,
		"MaxLength":    input.MaxLength,
		"Insights":     contextbuilder.NoInsightsText,
	}
	if action != domain.ActionAnalyze || a.builder == nil {
		return data
	}

	built, err := a.builder.Build(ctx, contextbuilder.BuildInput{
		Task:    string(ai.TaskAnalyze),
		OwnerID: input.OwnerID,
	})
	if err != nil {
		a.logf("insights build failed owner=%s: %v", input.OwnerID, err)
		return data
	}
	data["Insights"] = policy.MaskPIIString(built.ContextText)
	return data
}

func (a *Analyzer) generateText(ctx context.Context, profile ai.ModelProfile, prompt string) (string, string, error) {
	if a.client == nil || !a.client.Available() {
		return "", "", ai.ErrProviderUnavailable
	}

	primaryResult, err := a.client.Generate(ctx, ai.GenerateRequest{
		Model:           profile.PrimaryModel,
		Instructions:    "Return only valid JSON. Do not use markdown code fences.",
		Input:           prompt,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
	})
	if err == nil {
		return primaryResult.Text, firstNonEmpty(primaryResult.ModelID, profile.PrimaryModel), nil
	}
	if ctx.Err() != nil {
		return "", "", err
	}

	if strings.TrimSpace(profile.FallbackModel) == "" || profile.FallbackModel == profile.PrimaryModel {
		return "", "", err
	}

	fallbackResult, fallbackErr := a.client.Generate(ctx, ai.GenerateRequest{
		Model:           profile.FallbackModel,
		Instructions:    "Return only valid JSON. Do not use markdown code fences.",
		Input:           prompt,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
	})
	if fallbackErr != nil {
		return "", "", fmt.Errorf("primary model failed: %v; fallback failed: %w", err, fallbackErr)
	}
	return fallbackResult.Text, firstNonEmpty(fallbackResult.ModelID, profile.FallbackModel), nil
}

func (a *Analyzer) parse(text string, action domain.Action, input Input) (json.RawMessage, error) {
	rawJSON, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var validated any
	switch action {
	case domain.ActionAnalyze:
		var payload domain.MessageAnalysis
		if err := json.Unmarshal(rawJSON, &payload); err != nil {
			return nil, fmt.Errorf("decode analysis json: %w", err)
		}
		validated, err = a.validator.ValidateAnalysis(payload)
	case domain.ActionAutoReply:
		var payload domain.AutoReplies
		if err := json.Unmarshal(rawJSON, &payload); err != nil {
			return nil, fmt.Errorf("decode auto-reply json: %w", err)
		}
		validated, err = a.validator.ValidateAutoReplies(payload, input.MaxLength, defaultAutoReplies(input.Tone))
	case domain.ActionCategorize:
		var payload domain.Categorization
		if err := json.Unmarshal(rawJSON, &payload); err != nil {
			return nil, fmt.Errorf("decode categorization json: %w", err)
		}
		validated, err = a.validator.ValidateCategorization(payload)
	default:
		return nil, fmt.Errorf("unsupported action %q", action)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(validated)
}

func (a *Analyzer) fallback(input Input, action domain.Action, cause error) Result {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	if !errors.Is(cause, ai.ErrProviderUnavailable) {
		a.logf("analysis fallback action=%s owner=%s: %s", action, input.OwnerID, reason)
	}

	body, err := json.Marshal(fallbackValue(action, input, a.validator))
	if err != nil {
		body = json.RawMessage(`{}`)
	}
	return Result{
		Status:  StatusFallback,
		Action:  action,
		Body:    body,
		ModelID: fallbackModelID,
		Reason:  reason,
	}
}

// maskedExcerpt returns a short, PII-masked copy of model output for logs.
func maskedExcerpt(text string) string {
	masked := []rune(string(policy.MaskPIIJSON(json.RawMessage(text))))
	if len(masked) > maxLoggedOutputRunes {
		return string(masked[:maxLoggedOutputRunes]) + "..."
	}
	return string(masked)
}

func templateFor(action domain.Action) string {
	switch action {
	case domain.ActionAutoReply:
		return "auto_reply.tmpl"
	case domain.ActionCategorize:
		return "categorize.tmpl"
	default:
		return "analyze.tmpl"
	}
}

func taskFor(action domain.Action) ai.TaskKind {
	switch action {
	case domain.ActionAutoReply:
		return ai.TaskAutoReply
	case domain.ActionCategorize:
		return ai.TaskCategorize
	default:
		return ai.TaskAnalyze
	}
}

func normalizeInput(input Input) Input {
	input.Content = strings.TrimSpace(input.Content)
	input.Platform = firstNonEmpty(strings.ToLower(input.Platform), "unknown")
	input.Sender = firstNonEmpty(input.Sender, "unknown")
	input.MessageType = firstNonEmpty(strings.ToLower(input.MessageType), "comment")
	input.PostTitle = strings.TrimSpace(input.PostTitle)
	input.Tone = normalizeTone(input.Tone)
	switch {
	case input.MaxLength <= 0:
		input.MaxLength = 500
	case input.MaxLength < 50:
		input.MaxLength = 50
	case input.MaxLength > 2000:
		input.MaxLength = 2000
	}
	return input
}

func normalizeTone(tone string) string {
	normalized := strings.ToLower(strings.TrimSpace(tone))
	switch normalized {
	case "professional", "friendly", "casual", "formal":
		return normalized
	default:
		return "professional"
	}
}

func extractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("empty model output")
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = stripCodeFence(trimmed)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return []byte(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
			return []byte(candidate), nil
		}
	}

	return nil, errors.New("model output is not valid JSON")
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (a *Analyzer) logf(format string, args ...any) {
	if a.logger == nil {
		return
	}
	a.logger.Printf(format, args...)
}
