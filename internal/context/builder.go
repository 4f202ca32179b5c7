package contextbuilder

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"
)

// NoInsightsText is returned when an owner has no processed documents yet.
const NoInsightsText = "No business insights available yet."

type BuildInput struct {
	Task           string
	OwnerID        string
	DocumentLimit  int
	MaxInputTokens int
	MaxChunks      int
}

type BuildOutput struct {
	ContextText string
	Chunks      []Chunk
	TokenCount  int
}

type cachedBuild struct {
	output    BuildOutput
	expiresAt time.Time
}

type Builder struct {
	retriever Retriever

	cacheMu    sync.RWMutex
	cache      map[uint64]cachedBuild
	cacheTTL   time.Duration
	cacheLimit int
	now        func() time.Time
}

func NewBuilder(retriever Retriever) *Builder {
	return &Builder{
		retriever:  retriever,
		cache:      make(map[uint64]cachedBuild),
		cacheTTL:   90 * time.Second,
		cacheLimit: 1024,
		now:        time.Now,
	}
}

func (b *Builder) Build(ctx context.Context, input BuildInput) (BuildOutput, error) {
	if b.retriever == nil {
		return BuildOutput{}, fmt.Errorf("retriever is required")
	}
	input = normalizeBuildInput(input)

	cacheKey := buildCacheKey(input)
	if cached, ok := b.cacheGet(cacheKey); ok {
		return cloneBuildOutput(cached), nil
	}

	chunks, err := b.retriever.Retrieve(ctx, RetrievalInput{
		Task:          input.Task,
		OwnerID:       input.OwnerID,
		DocumentLimit: input.DocumentLimit,
	})
	if err != nil {
		return BuildOutput{}, err
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score == chunks[j].Score {
			return chunks[i].ID < chunks[j].ID
		}
		return chunks[i].Score > chunks[j].Score
	})

	selected := make([]Chunk, 0, len(chunks))
	totalTokens := 0
	for _, chunk := range chunks {
		estimatedTokens := estimateTokens(chunk.Text)
		if estimatedTokens <= 0 {
			continue
		}
		if totalTokens+estimatedTokens > input.MaxInputTokens {
			continue
		}
		selected = append(selected, chunk)
		totalTokens += estimatedTokens
		if len(selected) >= input.MaxChunks {
			break
		}
	}

	var output BuildOutput
	if len(selected) == 0 {
		output = BuildOutput{ContextText: NoInsightsText, TokenCount: estimateTokens(NoInsightsText)}
	} else {
		builder := strings.Builder{}
		for _, chunk := range selected {
			builder.WriteString("- ")
			builder.WriteString(chunk.Text)
			builder.WriteString("\n")
		}
		output = BuildOutput{
			ContextText: strings.TrimSpace(builder.String()),
			Chunks:      selected,
			TokenCount:  totalTokens,
		}
	}

	b.cachePut(cacheKey, output)
	return cloneBuildOutput(output), nil
}

func normalizeBuildInput(input BuildInput) BuildInput {
	if input.DocumentLimit <= 0 {
		input.DocumentLimit = defaultDocumentLimit
	}
	if input.MaxInputTokens <= 0 {
		switch strings.ToLower(strings.TrimSpace(input.Task)) {
		case "analyze":
			input.MaxInputTokens = 1200
		default:
			input.MaxInputTokens = 800
		}
	}
	if input.MaxChunks <= 0 {
		switch strings.ToLower(strings.TrimSpace(input.Task)) {
		case "analyze":
			input.MaxChunks = 10
		default:
			input.MaxChunks = 6
		}
	}
	return input
}

func buildCacheKey(input BuildInput) uint64 {
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(strings.ToLower(strings.TrimSpace(input.Task))))
	_, _ = hash.Write([]byte{0})
	_, _ = hash.Write([]byte(strings.TrimSpace(input.OwnerID)))
	_, _ = hash.Write([]byte{0})
	_, _ = hash.Write([]byte(fmt.Sprintf("%d|%d|%d", input.DocumentLimit, input.MaxInputTokens, input.MaxChunks)))
	return hash.Sum64()
}

func (b *Builder) cacheGet(key uint64) (BuildOutput, bool) {
	b.cacheMu.RLock()
	entry, exists := b.cache[key]
	b.cacheMu.RUnlock()
	if !exists {
		return BuildOutput{}, false
	}
	if b.now().After(entry.expiresAt) {
		b.cacheMu.Lock()
		delete(b.cache, key)
		b.cacheMu.Unlock()
		return BuildOutput{}, false
	}
	return entry.output, true
}

func (b *Builder) cachePut(key uint64, output BuildOutput) {
	if b.cacheLimit <= 0 {
		return
	}

	now := b.now()
	entry := cachedBuild{
		output:    cloneBuildOutput(output),
		expiresAt: now.Add(b.cacheTTL),
	}

	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()

	if len(b.cache) >= b.cacheLimit {
		for cacheKey, cacheEntry := range b.cache {
			if now.After(cacheEntry.expiresAt) {
				delete(b.cache, cacheKey)
			}
		}
	}
	if len(b.cache) >= b.cacheLimit {
		var (
			oldestKey uint64
			oldestTS  time.Time
			first     = true
		)
		for cacheKey, cacheEntry := range b.cache {
			if first || cacheEntry.expiresAt.Before(oldestTS) {
				first = false
				oldestKey = cacheKey
				oldestTS = cacheEntry.expiresAt
			}
		}
		if !first {
			delete(b.cache, oldestKey)
		}
	}
	b.cache[key] = entry
}

func cloneBuildOutput(value BuildOutput) BuildOutput {
	cloned := BuildOutput{
		ContextText: value.ContextText,
		TokenCount:  value.TokenCount,
		Chunks:      make([]Chunk, len(value.Chunks)),
	}
	copy(cloned.Chunks, value.Chunks)
	return cloned
}

func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	count := len([]rune(trimmed)) / 4
	if count < 1 {
		count = 1
	}
	return count
}
