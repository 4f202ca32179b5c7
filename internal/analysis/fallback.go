package analysis

import (
	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/quality"
)

func defaultAnalysis() domain.MessageAnalysis {
	return domain.MessageAnalysis{
		Sentiment:         "neutral",
		Priority:          "medium",
		SuggestedResponse: "Thank you for your message. We will get back to you shortly.",
		EngagementType:    "other",
		ResponseUrgency:   "within_day",
		KeyTopics:         []string{},
		CustomerIntent:    "unknown",
		SuggestedActions:  []string{"Review the message manually"},
	}
}

func defaultAutoReplies(tone string) domain.AutoReplies {
	greeting := "Thanks for reaching out!"
	if tone == "formal" || tone == "professional" {
		greeting = "Thank you for contacting us."
	}
	return domain.AutoReplies{Options: []domain.ReplyOption{
		{Type: "quick", Content: greeting + " We will reply shortly."},
		{Type: "detailed", Content: greeting + " We received your message and our team is reviewing it. We will follow up with more details as soon as possible."},
		{Type: "conversational", Content: "Hi there! " + greeting + " Let us know if there is anything else we can help with in the meantime."},
	}}
}

func defaultCategorization() domain.Categorization {
	return domain.Categorization{
		Category:    "general",
		Subcategory: "uncategorized",
		Tags:        []string{},
	}
}

func fallbackValue(action domain.Action, input Input, validator *quality.OutputValidator) any {
	switch action {
	case domain.ActionAutoReply:
		defaults := defaultAutoReplies(input.Tone)
		if validator != nil {
			if clipped, err := validator.ValidateAutoReplies(defaults, input.MaxLength, defaults); err == nil {
				return clipped
			}
		}
		return defaults
	case domain.ActionCategorize:
		return defaultCategorization()
	default:
		return defaultAnalysis()
	}
}
