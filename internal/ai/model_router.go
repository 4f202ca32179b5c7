package ai

import "strings"

type TaskKind string

const (
	TaskAnalyze    TaskKind = "analyze"
	TaskAutoReply  TaskKind = "auto_reply"
	TaskCategorize TaskKind = "categorize"
)

type ModelProfile struct {
	PrimaryModel    string
	FallbackModel   string
	Temperature     float64
	MaxOutputTokens int
}

type ModelRouterConfig struct {
	AnalyzePrimary  string
	AnalyzeFallback string

	AutoReplyPrimary  string
	AutoReplyFallback string

	CategorizePrimary  string
	CategorizeFallback string
}

// ModelRouter picks the model profile for each kind of message task.
type ModelRouter struct {
	config ModelRouterConfig
}

func NewModelRouter(config ModelRouterConfig) *ModelRouter {
	defaults := []struct {
		field    *string
		fallback string
	}{
		{&config.AnalyzePrimary, "gpt-4.1-mini"},
		{&config.AnalyzeFallback, "gpt-4.1-nano"},
		{&config.AutoReplyPrimary, "gpt-4.1-mini"},
		{&config.AutoReplyFallback, "gpt-4.1-nano"},
		{&config.CategorizePrimary, "gpt-4.1-nano"},
		{&config.CategorizeFallback, "gpt-4.1-mini"},
	}
	for _, item := range defaults {
		if strings.TrimSpace(*item.field) == "" {
			*item.field = item.fallback
		}
	}
	return &ModelRouter{config: config}
}

func (r *ModelRouter) Select(task TaskKind) ModelProfile {
	switch task {
	case TaskAutoReply:
		return ModelProfile{
			PrimaryModel:    r.config.AutoReplyPrimary,
			FallbackModel:   r.config.AutoReplyFallback,
			Temperature:     0.7,
			MaxOutputTokens: 600,
		}
	case TaskCategorize:
		return ModelProfile{
			PrimaryModel:    r.config.CategorizePrimary,
			FallbackModel:   r.config.CategorizeFallback,
			Temperature:     0.1,
			MaxOutputTokens: 200,
		}
	default:
		return ModelProfile{
			PrimaryModel:    r.config.AnalyzePrimary,
			FallbackModel:   r.config.AnalyzeFallback,
			Temperature:     0.3,
			MaxOutputTokens: 700,
		}
	}
}
