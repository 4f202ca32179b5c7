package ai

import (
	"context"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type OpenRouterClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
	SiteURL    string
	AppName    string
}

// OpenRouterClient calls OpenRouter through its OpenAI compatible endpoint and
// adds the attribution headers OpenRouter uses for app rankings.
type OpenRouterClient struct {
	client     *openai.Client
	available  bool
	timeout    time.Duration
	maxRetries int
}

func NewOpenRouterClient(config OpenRouterClientConfig) *OpenRouterClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://openrouter.ai/api/v1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if strings.TrimSpace(config.AppName) == "" {
		config.AppName = "SocialDesk"
	}

	httpClient := *config.HTTPClient
	httpClient.Transport = &attributionTransport{
		base:    config.HTTPClient.Transport,
		siteURL: strings.TrimSpace(config.SiteURL),
		appName: strings.TrimSpace(config.AppName),
	}

	apiKey := strings.TrimSpace(config.APIKey)
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/")
	clientConfig.HTTPClient = &httpClient

	return &OpenRouterClient{
		client:     openai.NewClientWithConfig(clientConfig),
		available:  apiKey != "",
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
	}
}

func (c *OpenRouterClient) Available() bool {
	return c.available
}

func (c *OpenRouterClient) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	if !c.Available() {
		return GenerateResult{}, ErrProviderUnavailable
	}
	if err := validateRequest(request); err != nil {
		return GenerateResult{}, err
	}

	completion := chatRequest(request)
	return withRetries(ctx, c.maxRetries, isRetryableProviderError, func() (GenerateResult, error) {
		return createChatCompletion(ctx, c.client, "openrouter", c.timeout, completion)
	})
}

type attributionTransport struct {
	base    http.RoundTripper
	siteURL string
	appName string
}

func (t *attributionTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	clone := request.Clone(request.Context())
	if t.siteURL != "" {
		clone.Header.Set("HTTP-Referer", t.siteURL)
	}
	if t.appName != "" {
		clone.Header.Set("X-Title", t.appName)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}
