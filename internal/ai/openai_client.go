package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIClientConfig struct {
	APIKey       string
	BaseURL      string
	Organization string
	Timeout      time.Duration
	MaxRetries   int
	HTTPClient   *http.Client
	// JSONMode asks the API for a JSON object response.
	JSONMode bool
}

// OpenAIClient talks to any OpenAI compatible chat completions endpoint.
type OpenAIClient struct {
	client     *openai.Client
	available  bool
	timeout    time.Duration
	maxRetries int
	jsonMode   bool
}

func NewOpenAIClient(config OpenAIClientConfig) *OpenAIClient {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	apiKey := strings.TrimSpace(config.APIKey)
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(config.BaseURL); baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	clientConfig.OrgID = strings.TrimSpace(config.Organization)
	clientConfig.HTTPClient = config.HTTPClient

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientConfig),
		available:  apiKey != "",
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		jsonMode:   config.JSONMode,
	}
}

func (c *OpenAIClient) Available() bool {
	return c.available
}

func (c *OpenAIClient) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	if !c.Available() {
		return GenerateResult{}, ErrProviderUnavailable
	}
	if err := validateRequest(request); err != nil {
		return GenerateResult{}, err
	}

	completion := chatRequest(request)
	if c.jsonMode {
		completion.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return withRetries(ctx, c.maxRetries, isRetryableProviderError, func() (GenerateResult, error) {
		return createChatCompletion(ctx, c.client, "openai", c.timeout, completion)
	})
}

func chatRequest(request GenerateRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if instructions := strings.TrimSpace(request.Instructions); instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: instructions,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: request.Input,
	})
	return openai.ChatCompletionRequest{
		Model:       request.Model,
		Messages:    messages,
		Temperature: float32(request.Temperature),
		MaxTokens:   request.MaxOutputTokens,
	}
}

func createChatCompletion(
	ctx context.Context,
	client *openai.Client,
	provider string,
	timeout time.Duration,
	completion openai.ChatCompletionRequest,
) (GenerateResult, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response, err := client.CreateChatCompletion(timeoutCtx, completion)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return GenerateResult{}, fmt.Errorf("%s timeout: %w", provider, err)
		}
		return GenerateResult{}, fmt.Errorf("%s chat completion: %w", provider, err)
	}
	if len(response.Choices) == 0 {
		return GenerateResult{}, fmt.Errorf("%s response without choices", provider)
	}

	text := messageText(response.Choices[0].Message)
	if text == "" {
		return GenerateResult{}, fmt.Errorf("%s response without text output", provider)
	}

	return GenerateResult{
		Text:    text,
		ModelID: firstNonEmpty(response.Model, completion.Model),
		Usage: TokenUsage{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
			TotalTokens:  response.Usage.TotalTokens,
		},
	}, nil
}

// messageText flattens plain or multi-part content of a reply.
func messageText(message openai.ChatCompletionMessage) string {
	if text := strings.TrimSpace(message.Content); text != "" {
		return text
	}
	fragments := make([]string, 0, len(message.MultiContent))
	for _, part := range message.MultiContent {
		if value := strings.TrimSpace(part.Text); value != "" {
			fragments = append(fragments, value)
		}
	}
	return strings.Join(fragments, "\n")
}
