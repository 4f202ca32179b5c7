package domain

import (
	"encoding/json"
	"time"
)

type Action string

const (
	ActionAnalyze    Action = "analyze"
	ActionAutoReply  Action = "auto-reply"
	ActionCategorize Action = "categorize"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAnalyze, ActionAutoReply, ActionCategorize:
		return true
	default:
		return false
	}
}

// Message is an inbound inbox item owned by a single account owner.
type Message struct {
	ID         string
	OwnerID    string
	Platform   string
	Type       string
	Content    string
	SenderName string
	PostTitle  string
	Sentiment  string
	Priority   string
	IsRead     bool
	IsReplied  bool
	Metadata   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MessageUpdate carries the fields written back after AI processing.
// Nil pointers leave the stored value untouched; Metadata is merged.
type MessageUpdate struct {
	Sentiment *string
	Priority  *string
	Metadata  map[string]any
}

// Document is a processed reference document used for business insights.
type Document struct {
	ID          string
	OwnerID     string
	Title       string
	Summary     string
	Insights    []string
	ProcessedAt time.Time
}

type BatchOutcome struct {
	MessageID string          `json:"messageId"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Cached    bool            `json:"cached"`
	Fallback  bool            `json:"fallback,omitempty"`
}

type ItemError struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// ChunkErrors groups failures of a single chunk, keyed by index range.
type ChunkErrors struct {
	Range  string      `json:"batch"`
	Errors []ItemError `json:"errors"`
}

type BatchResult struct {
	Processed    int            `json:"processed"`
	Errors       int            `json:"errors"`
	Results      []BatchOutcome `json:"results"`
	ErrorDetails []ChunkErrors  `json:"errorDetails"`
}
