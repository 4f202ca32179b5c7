package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iago/socialdesk-back/internal/analysis"
	"github.com/iago/socialdesk-back/internal/batch"
	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/policy"
	"github.com/iago/socialdesk-back/internal/repository"
)

var ErrEmptyContent = errors.New("messageContent is required")

type AnalyzeInput struct {
	OwnerID     string
	Content     string
	Platform    string
	MessageType string
	SenderName  string
	PostTitle   string
}

type AnalyzeOutput struct {
	Analysis domain.MessageAnalysis
	Fallback bool
	ModelID  string
}

type AutoReplyInput struct {
	OwnerID      string
	MessageID    string
	Tone         string
	IncludeEmoji bool
	MaxLength    int
}

type AutoReplyOutput struct {
	AutoReplies domain.AutoReplies
	Fallback    bool
	ModelID     string
	HITL        policy.HITLMetadata
}

// MessageService runs AI actions on single messages and delegates bulk
// requests to the batch processor.
type MessageService struct {
	messages repository.MessageRepository
	analyzer batch.Analyzer
	batch    *batch.Processor
	now      func() time.Time
}

func NewMessageService(messages repository.MessageRepository, analyzer batch.Analyzer, processor *batch.Processor) *MessageService {
	return &MessageService{
		messages: messages,
		analyzer: analyzer,
		batch:    processor,
		now:      time.Now,
	}
}

func (s *MessageService) BulkProcess(ctx context.Context, request batch.Request) (domain.BatchResult, error) {
	return s.batch.Process(ctx, request)
}

// Analyze classifies free-form content that is not stored as a message.
func (s *MessageService) Analyze(ctx context.Context, input AnalyzeInput) (AnalyzeOutput, error) {
	if strings.TrimSpace(input.Content) == "" {
		return AnalyzeOutput{}, ErrEmptyContent
	}

	result := s.analyzer.Analyze(ctx, analysis.Input{
		OwnerID:     input.OwnerID,
		Content:     input.Content,
		Platform:    input.Platform,
		Sender:      input.SenderName,
		MessageType: input.MessageType,
		PostTitle:   input.PostTitle,
	}, domain.ActionAnalyze)

	var decoded domain.MessageAnalysis
	if err := json.Unmarshal(result.Body, &decoded); err != nil {
		return AnalyzeOutput{}, fmt.Errorf("decode analysis: %w", err)
	}
	return AnalyzeOutput{Analysis: decoded, Fallback: result.Fallback(), ModelID: result.ModelID}, nil
}

// AutoReply drafts replies for a stored message. Replies are suggestions
// only and are saved on the message metadata.
func (s *MessageService) AutoReply(ctx context.Context, input AutoReplyInput) (AutoReplyOutput, error) {
	message, err := s.messages.Get(ctx, input.OwnerID, input.MessageID)
	if err != nil {
		return AutoReplyOutput{}, err
	}

	result := s.analyzer.Analyze(ctx, analysis.Input{
		OwnerID:      input.OwnerID,
		Content:      message.Content,
		Platform:     message.Platform,
		Sender:       message.SenderName,
		MessageType:  message.Type,
		PostTitle:    message.PostTitle,
		Tone:         input.Tone,
		IncludeEmoji: input.IncludeEmoji,
		MaxLength:    input.MaxLength,
	}, domain.ActionAutoReply)

	var replies domain.AutoReplies
	if err := json.Unmarshal(result.Body, &replies); err != nil {
		return AutoReplyOutput{}, fmt.Errorf("decode auto replies: %w", err)
	}

	update := domain.MessageUpdate{Metadata: map[string]any{
		"autoReplies":   replies,
		"aiProcessedAt": s.now().UTC().Format(time.RFC3339),
	}}
	if err := s.messages.ApplyAnalysis(ctx, input.OwnerID, message.ID, update); err != nil {
		return AutoReplyOutput{}, fmt.Errorf("save auto replies: %w", err)
	}

	return AutoReplyOutput{
		AutoReplies: replies,
		Fallback:    result.Fallback(),
		ModelID:     result.ModelID,
		HITL:        policy.ReplyHITLMetadata(),
	}, nil
}
