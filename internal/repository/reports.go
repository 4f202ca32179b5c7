package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
)

var ErrUnknownColumn = errors.New("unknown report column")

type ReportSource string

const (
	SourceCampaigns ReportSource = "campaigns"
	SourcePosts     ReportSource = "posts"
	SourceAccounts  ReportSource = "social_accounts"
	SourceMessages  ReportSource = "messages"
)

// Record is one row of a report source keyed by column name.
type Record map[string]any

// GroupQuery counts rows of Source grouped by Keys and sums the Sums
// columns per group. Without keys a single total row is returned.
type GroupQuery struct {
	Source ReportSource
	Filter domain.ReportFilter
	Keys   []string
	Sums   []string
}

type GroupRow struct {
	Keys  map[string]string
	Count int64
	Sums  map[string]int64
}

// ReportStore runs the grouped queries behind analytics reports.
type ReportStore interface {
	GroupBy(ctx context.Context, query GroupQuery) ([]GroupRow, error)
	Sample(ctx context.Context, source ReportSource, filter domain.ReportFilter, limit int) ([]Record, error)
}

type sourceSchema struct {
	keys   []string
	sums   []string
	sample []string
}

var reportSchemas = map[ReportSource]sourceSchema{
	SourceCampaigns: {
		keys:   []string{"status", "objective", "platform"},
		sums:   []string{"budget"},
		sample: []string{"id", "name", "status", "objective", "platform", "budget", "created_at"},
	},
	SourcePosts: {
		keys:   []string{"platform", "status"},
		sums:   []string{"likes", "comments", "shares"},
		sample: []string{"id", "title", "platform", "status", "likes", "comments", "shares", "created_at"},
	},
	SourceAccounts: {
		keys:   []string{"platform"},
		sums:   []string{"followers"},
		sample: []string{"id", "platform", "handle", "followers", "created_at"},
	},
	SourceMessages: {
		keys:   []string{"platform", "sentiment", "priority", "is_read", "is_replied"},
		sample: []string{"id", "platform", "type", "sender_name", "sentiment", "priority", "is_read", "is_replied", "created_at"},
	},
}

func validateGroupQuery(query GroupQuery) (sourceSchema, error) {
	schema, ok := reportSchemas[query.Source]
	if !ok {
		return sourceSchema{}, fmt.Errorf("%w: source %q", ErrUnknownColumn, query.Source)
	}
	for _, key := range query.Keys {
		if !contains(schema.keys, key) {
			return sourceSchema{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, query.Source, key)
		}
	}
	for _, sum := range query.Sums {
		if !contains(schema.sums, sum) {
			return sourceSchema{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, query.Source, sum)
		}
	}
	return schema, nil
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

// MemoryReportStore aggregates in-memory records. The messages source reads
// from the message repository so AI updates show up in reports.
type MemoryReportStore struct {
	mu       sync.RWMutex
	records  map[ReportSource][]Record
	messages *MemoryMessageRepository
}

func NewMemoryReportStore(messages *MemoryMessageRepository) *MemoryReportStore {
	return &MemoryReportStore{
		records:  make(map[ReportSource][]Record),
		messages: messages,
	}
}

// Add stores a record. owner_id, platform and created_at are required for
// filtering.
func (s *MemoryReportStore) Add(source ReportSource, record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := make(Record, len(record))
	for key, value := range record {
		clone[key] = value
	}
	s.records[source] = append(s.records[source], clone)
}

func (s *MemoryReportStore) GroupBy(_ context.Context, query GroupQuery) ([]GroupRow, error) {
	if _, err := validateGroupQuery(query); err != nil {
		return nil, err
	}

	groups := make(map[string]*GroupRow)
	order := make([]string, 0)
	for _, record := range s.matching(query.Source, query.Filter) {
		values := make([]string, 0, len(query.Keys))
		for _, key := range query.Keys {
			values = append(values, stringValue(record[key]))
		}
		groupKey := strings.Join(values, "\x00")

		row, exists := groups[groupKey]
		if !exists {
			row = &GroupRow{
				Keys: make(map[string]string, len(query.Keys)),
				Sums: make(map[string]int64, len(query.Sums)),
			}
			for index, key := range query.Keys {
				row.Keys[key] = values[index]
			}
			for _, sum := range query.Sums {
				row.Sums[sum] = 0
			}
			groups[groupKey] = row
			order = append(order, groupKey)
		}
		row.Count++
		for _, sum := range query.Sums {
			row.Sums[sum] += int64Value(record[sum])
		}
	}

	sort.Strings(order)
	result := make([]GroupRow, 0, len(order))
	for _, key := range order {
		result = append(result, *groups[key])
	}
	return result, nil
}

func (s *MemoryReportStore) Sample(
	_ context.Context,
	source ReportSource,
	filter domain.ReportFilter,
	limit int,
) ([]Record, error) {
	schema, ok := reportSchemas[source]
	if !ok {
		return nil, fmt.Errorf("%w: source %q", ErrUnknownColumn, source)
	}

	records := s.matching(source, filter)
	sort.SliceStable(records, func(i, j int) bool {
		return timeValue(records[i]["created_at"]).After(timeValue(records[j]["created_at"]))
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	result := make([]Record, 0, len(records))
	for _, record := range records {
		projected := make(Record, len(schema.sample))
		for _, column := range schema.sample {
			projected[column] = record[column]
		}
		result = append(result, projected)
	}
	return result, nil
}

func (s *MemoryReportStore) matching(source ReportSource, filter domain.ReportFilter) []Record {
	var candidates []Record
	if source == SourceMessages && s.messages != nil {
		for _, message := range s.messages.snapshot(filter.OwnerID) {
			candidates = append(candidates, messageRecord(message))
		}
	}

	s.mu.RLock()
	candidates = append(candidates, s.records[source]...)
	s.mu.RUnlock()

	platform := strings.ToLower(strings.TrimSpace(filter.Platform))
	result := make([]Record, 0, len(candidates))
	for _, record := range candidates {
		if stringValue(record["owner_id"]) != filter.OwnerID {
			continue
		}
		if platform != "" && strings.ToLower(stringValue(record["platform"])) != platform {
			continue
		}
		createdAt := timeValue(record["created_at"])
		if filter.From != nil && createdAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && createdAt.After(*filter.To) {
			continue
		}
		result = append(result, record)
	}
	return result
}

func messageRecord(message domain.Message) Record {
	return Record{
		"id":          message.ID,
		"owner_id":    message.OwnerID,
		"platform":    message.Platform,
		"type":        message.Type,
		"sender_name": message.SenderName,
		"sentiment":   message.Sentiment,
		"priority":    message.Priority,
		"is_read":     message.IsRead,
		"is_replied":  message.IsReplied,
		"created_at":  message.CreatedAt,
	}
}

func stringValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		if typed {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(typed)
	}
}

func int64Value(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int32:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	default:
		return 0
	}
}

func timeValue(value any) time.Time {
	if typed, ok := value.(time.Time); ok {
		return typed
	}
	return time.Time{}
}
