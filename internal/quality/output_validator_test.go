package quality

import (
	"errors"
	"strings"
	"testing"

	"github.com/iago/socialdesk-back/internal/domain"
)

func TestValidateAnalysisNormalizesEnums(t *testing.T) {
	validator := NewOutputValidator()

	result, err := validator.ValidateAnalysis(domain.MessageAnalysis{
		Sentiment:         " Angry ",
		Priority:          "critical",
		SuggestedResponse: "Sorry about that, email us at help@example.com",
		KeyTopics:         []string{"Shipping", "shipping", "refund"},
	})
	if err != nil {
		t.Fatalf("expected analysis to validate: %v", err)
	}
	if result.Sentiment != "negative" || result.Priority != "urgent" {
		t.Fatalf("unexpected enums %q/%q", result.Sentiment, result.Priority)
	}
	if len(result.KeyTopics) != 2 {
		t.Fatalf("expected deduped topics, got %v", result.KeyTopics)
	}
	if strings.Contains(result.SuggestedResponse, "help@example.com") {
		t.Fatalf("expected pii to be masked in suggested response")
	}
}

func TestValidateAnalysisRejectsUnknownSentiment(t *testing.T) {
	_, err := NewOutputValidator().ValidateAnalysis(domain.MessageAnalysis{Sentiment: "confused"})
	if !errors.Is(err, ErrQualityRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestValidateAutoRepliesFillsAllThreeTypes(t *testing.T) {
	defaults := domain.AutoReplies{Options: []domain.ReplyOption{
		{Type: "quick", Content: "default quick"},
		{Type: "detailed", Content: "default detailed"},
		{Type: "conversational", Content: "default conversational"},
	}}

	result, err := NewOutputValidator().ValidateAutoReplies(domain.AutoReplies{Options: []domain.ReplyOption{
		{Type: "detailed", Content: "Here is the full status of your order."},
		{Type: "", Content: "Thanks, on it!"},
	}}, 0, defaults)
	if err != nil {
		t.Fatalf("expected replies to validate: %v", err)
	}
	if len(result.Options) != 3 {
		t.Fatalf("expected exactly three options, got %d", len(result.Options))
	}
	for index, kind := range ReplyTypes {
		if result.Options[index].Type != kind {
			t.Fatalf("expected option %d to be %s, got %s", index, kind, result.Options[index].Type)
		}
	}
	if result.Options[0].Content != "Thanks, on it!" {
		t.Fatalf("expected untyped option to fill quick slot, got %q", result.Options[0].Content)
	}
	if result.Options[2].Content != "default conversational" {
		t.Fatalf("expected default to fill missing slot, got %q", result.Options[2].Content)
	}
}

func TestValidateAutoRepliesTruncatesToMaxLength(t *testing.T) {
	long := strings.Repeat("word ", 100)
	result, err := NewOutputValidator().ValidateAutoReplies(domain.AutoReplies{Options: []domain.ReplyOption{
		{Type: "quick", Content: long},
	}}, 40, domain.AutoReplies{})
	if err != nil {
		t.Fatalf("expected replies to validate: %v", err)
	}
	if len([]rune(result.Options[0].Content)) > 40 {
		t.Fatalf("expected reply capped at 40 runes, got %d", len(result.Options[0].Content))
	}
}

func TestValidateAutoRepliesRejectsBlockedContent(t *testing.T) {
	_, err := NewOutputValidator().ValidateAutoReplies(domain.AutoReplies{Options: []domain.ReplyOption{
		{Type: "quick", Content: "Please share your card number here"},
	}}, 0, domain.AutoReplies{})
	if !errors.Is(err, ErrQualityRejected) {
		t.Fatalf("expected blocked reply to be rejected, got %v", err)
	}
}

func TestValidateCategorizationDefaultsSubcategory(t *testing.T) {
	result, err := NewOutputValidator().ValidateCategorization(domain.Categorization{
		Category: "Support",
		Tags:     []string{"Order", "order", " delay "},
	})
	if err != nil {
		t.Fatalf("expected categorization to validate: %v", err)
	}
	if result.Category != "support" || result.Subcategory != "general" {
		t.Fatalf("unexpected categorization %+v", result)
	}
	if len(result.Tags) != 2 || result.Tags[1] != "delay" {
		t.Fatalf("unexpected tags %v", result.Tags)
	}
}
