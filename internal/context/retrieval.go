package contextbuilder

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/iago/socialdesk-back/internal/domain"
)

const defaultDocumentLimit = 5

type RetrievalInput struct {
	Task          string
	OwnerID       string
	DocumentLimit int
}

type Chunk struct {
	ID    string
	Text  string
	Score float64
}

type Retriever interface {
	Retrieve(ctx context.Context, input RetrievalInput) ([]Chunk, error)
}

// DocumentSource returns the most recent processed documents of an owner,
// newest first.
type DocumentSource interface {
	RecentDocuments(ctx context.Context, ownerID string, limit int) ([]domain.Document, error)
}

// DocumentRetriever turns an owner's processed documents into insight chunks.
// Concurrent lookups for the same owner share one source call.
type DocumentRetriever struct {
	source DocumentSource
	group  singleflight.Group
}

func NewDocumentRetriever(source DocumentSource) *DocumentRetriever {
	return &DocumentRetriever{source: source}
}

func (r *DocumentRetriever) Retrieve(ctx context.Context, input RetrievalInput) ([]Chunk, error) {
	if r.source == nil {
		return nil, nil
	}
	limit := input.DocumentLimit
	if limit <= 0 {
		limit = defaultDocumentLimit
	}

	key := fmt.Sprintf("%s|%d", strings.TrimSpace(input.OwnerID), limit)
	value, err, _ := r.group.Do(key, func() (any, error) {
		return r.source.RecentDocuments(ctx, input.OwnerID, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("load recent documents: %w", err)
	}
	documents, _ := value.([]domain.Document)
	if len(documents) > limit {
		documents = documents[:limit]
	}

	fragments := make([]scoredFragment, 0, len(documents)*3)
	for docIndex, document := range documents {
		base := 100.0 - float64(docIndex*10)
		if summary := strings.TrimSpace(document.Summary); summary != "" {
			fragments = append(fragments, scoredFragment{
				text:  labelFragment(document.Title, summary),
				score: base,
			})
		}
		for insightIndex, insight := range document.Insights {
			trimmed := strings.TrimSpace(insight)
			if trimmed == "" {
				continue
			}
			fragments = append(fragments, scoredFragment{
				text:  trimmed,
				score: computeScore(input.Task, base-float64(insightIndex+1), trimmed),
			})
		}
	}

	unique := dedupeFragments(fragments)
	chunks := make([]Chunk, 0, len(unique))
	for index, fragment := range unique {
		chunks = append(chunks, Chunk{
			ID:    fmt.Sprintf("chunk-%d", index+1),
			Text:  truncateFragment(fragment.text),
			Score: fragment.score,
		})
	}
	return chunks, nil
}

type scoredFragment struct {
	text  string
	score float64
}

func labelFragment(title, summary string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return summary
	}
	return title + ": " + summary
}

func computeScore(task string, base float64, fragment string) float64 {
	score := base
	normalized := strings.ToLower(fragment)

	if strings.Contains(normalized, "customer") || strings.Contains(normalized, "audience") {
		score += 4
	}
	if task == "analyze" && (strings.Contains(normalized, "complaint") || strings.Contains(normalized, "urgent")) {
		score += 6
	}

	if score < 1 {
		score = 1
	}
	return score
}

func truncateFragment(value string) string {
	runes := []rune(value)
	if len(runes) > 520 {
		return string(runes[:520])
	}
	return value
}

func dedupeFragments(fragments []scoredFragment) []scoredFragment {
	seen := make(map[string]struct{}, len(fragments))
	result := make([]scoredFragment, 0, len(fragments))
	for _, fragment := range fragments {
		trimmed := strings.TrimSpace(fragment.text)
		if trimmed == "" {
			continue
		}
		key := fragmentFingerprint(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		fragment.text = trimmed
		result = append(result, fragment)
	}
	return result
}

var repeatedSpacePattern = regexp.MustCompile(`\s+`)

func fragmentFingerprint(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	return repeatedSpacePattern.ReplaceAllString(lowered, " ")
}
