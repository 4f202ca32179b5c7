package quality

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/policy"
)

var ErrQualityRejected = errors.New("output failed quality checks")

const (
	maxSuggestedResponse = 600
	maxKeyTopics         = 8
	maxSuggestedActions  = 5
	maxTags              = 10
	defaultReplyLength   = 500
)

// ReplyTypes lists the reply variants in the order they are returned.
var ReplyTypes = []string{"quick", "detailed", "conversational"}

var sentimentAliases = map[string]string{
	"positive": "positive",
	"pos":      "positive",
	"happy":    "positive",
	"neutral":  "neutral",
	"mixed":    "neutral",
	"negative": "negative",
	"neg":      "negative",
	"angry":    "negative",
}

var priorityAliases = map[string]string{
	"low":      "low",
	"medium":   "medium",
	"normal":   "medium",
	"high":     "high",
	"urgent":   "urgent",
	"critical": "urgent",
}

// OutputValidator normalizes model output into the shapes callers rely on.
type OutputValidator struct{}

func NewOutputValidator() *OutputValidator {
	return &OutputValidator{}
}

func (v *OutputValidator) ValidateAnalysis(input domain.MessageAnalysis) (domain.MessageAnalysis, error) {
	sentiment, ok := sentimentAliases[strings.ToLower(normalizeText(input.Sentiment))]
	if !ok {
		return domain.MessageAnalysis{}, fmt.Errorf("%w: unknown sentiment %q", ErrQualityRejected, input.Sentiment)
	}
	priority, ok := priorityAliases[strings.ToLower(normalizeText(input.Priority))]
	if !ok {
		priority = "medium"
	}

	suggested := truncateAtWord(policy.MaskPIIString(normalizeText(input.SuggestedResponse)), maxSuggestedResponse)
	if err := policy.ScreenGeneratedText(suggested); err != nil {
		return domain.MessageAnalysis{}, fmt.Errorf("%w: %v", ErrQualityRejected, err)
	}

	return domain.MessageAnalysis{
		Sentiment:         sentiment,
		Priority:          priority,
		SuggestedResponse: suggested,
		EngagementType:    strings.ToLower(normalizeText(input.EngagementType)),
		ResponseUrgency:   strings.ToLower(normalizeText(input.ResponseUrgency)),
		KeyTopics:         dedupeStrings(input.KeyTopics, maxKeyTopics, false),
		CustomerIntent:    normalizeText(input.CustomerIntent),
		SuggestedActions:  dedupeStrings(input.SuggestedActions, maxSuggestedActions, false),
	}, nil
}

// ValidateAutoReplies maps options onto the three reply types. Slots the
// model left empty are taken from defaults; at least one generated option is
// required.
func (v *OutputValidator) ValidateAutoReplies(
	input domain.AutoReplies,
	maxLength int,
	defaults domain.AutoReplies,
) (domain.AutoReplies, error) {
	if maxLength <= 0 {
		maxLength = defaultReplyLength
	}

	slots := make(map[string]string, len(ReplyTypes))
	untyped := make([]string, 0)
	for _, option := range input.Options {
		content := truncateAtWord(policy.MaskPIIString(normalizeText(option.Content)), maxLength)
		if content == "" {
			continue
		}
		kind := strings.ToLower(normalizeText(option.Type))
		if isReplyType(kind) && slots[kind] == "" {
			slots[kind] = content
			continue
		}
		untyped = append(untyped, content)
	}
	for _, kind := range ReplyTypes {
		if slots[kind] == "" && len(untyped) > 0 {
			slots[kind] = untyped[0]
			untyped = untyped[1:]
		}
	}
	if len(slots) == 0 {
		return domain.AutoReplies{}, fmt.Errorf("%w: no reply options", ErrQualityRejected)
	}

	output := domain.AutoReplies{Options: make([]domain.ReplyOption, 0, len(ReplyTypes))}
	contents := make([]string, 0, len(ReplyTypes))
	for _, kind := range ReplyTypes {
		content := slots[kind]
		if content == "" {
			content = truncateAtWord(defaultOption(defaults, kind), maxLength)
		}
		output.Options = append(output.Options, domain.ReplyOption{Type: kind, Content: content})
		contents = append(contents, content)
	}
	if err := policy.ScreenGeneratedText(contents...); err != nil {
		return domain.AutoReplies{}, fmt.Errorf("%w: %v", ErrQualityRejected, err)
	}
	return output, nil
}

func (v *OutputValidator) ValidateCategorization(input domain.Categorization) (domain.Categorization, error) {
	category := strings.ToLower(normalizeText(input.Category))
	if category == "" {
		return domain.Categorization{}, fmt.Errorf("%w: empty category", ErrQualityRejected)
	}
	subcategory := strings.ToLower(normalizeText(input.Subcategory))
	if subcategory == "" {
		subcategory = "general"
	}
	return domain.Categorization{
		Category:    category,
		Subcategory: subcategory,
		Tags:        dedupeStrings(input.Tags, maxTags, true),
	}, nil
}

func isReplyType(kind string) bool {
	for _, candidate := range ReplyTypes {
		if candidate == kind {
			return true
		}
	}
	return false
}

func defaultOption(defaults domain.AutoReplies, kind string) string {
	for _, option := range defaults.Options {
		if option.Type == kind {
			return option.Content
		}
	}
	return ""
}

func dedupeStrings(values []string, limit int, lower bool) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		normalized := normalizeText(value)
		if lower {
			normalized = strings.ToLower(normalized)
		}
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, normalized)
		if len(result) >= limit {
			break
		}
	}
	return result
}

func normalizeText(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncateAtWord(value string, maxLen int) string {
	runes := []rune(value)
	if len(runes) <= maxLen || maxLen <= 0 {
		return value
	}
	cut := string(runes[:maxLen])
	if lastSpace := strings.LastIndex(cut, " "); lastSpace > len(cut)/2 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(cut)
}
