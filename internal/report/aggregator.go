package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/repository"
)

var (
	ErrUnsupportedReportType = errors.New("unsupported report type")
	ErrInvalidDateRange      = errors.New("dateFrom must not be after dateTo")
)

const (
	DefaultSampleSize = 10
	unknownBucket     = "unknown"
)

// Aggregator builds report payloads from grouped queries. Totals are folded
// from the same rows as the breakdowns, so they always agree.
type Aggregator struct {
	store      repository.ReportStore
	sampleSize int
	now        func() time.Time
}

func NewAggregator(store repository.ReportStore) *Aggregator {
	return &Aggregator{
		store:      store,
		sampleSize: DefaultSampleSize,
		now:        time.Now,
	}
}

type section struct {
	summary    map[string]any
	breakdowns map[string]map[string]int64
}

func (a *Aggregator) Generate(ctx context.Context, config domain.ReportConfig, ownerID string) (domain.ReportPayload, error) {
	if !config.Type.Valid() {
		return domain.ReportPayload{}, fmt.Errorf("%w: %q", ErrUnsupportedReportType, config.Type)
	}
	if config.From != nil && config.To != nil && config.From.After(*config.To) {
		return domain.ReportPayload{}, ErrInvalidDateRange
	}

	filter := domain.ReportFilter{
		OwnerID:  ownerID,
		From:     config.From,
		To:       config.To,
		Platform: strings.ToLower(strings.TrimSpace(config.Platform)),
	}

	var (
		body   section
		sample []repository.Record
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		body, err = a.aggregate(groupCtx, config.Type, filter)
		return err
	})
	group.Go(func() error {
		var err error
		sample, err = a.store.Sample(groupCtx, sampleSource(config.Type), filter, a.sampleSize)
		if err != nil {
			return fmt.Errorf("sample %s: %w", config.Type, err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return domain.ReportPayload{}, err
	}

	return domain.ReportPayload{
		Type:       config.Type,
		Summary:    body.summary,
		Breakdowns: body.breakdowns,
		Sample:     shapeSample(config.Type, sample),
		Metadata: domain.ReportMetadata{
			GeneratedAt:   a.now().UTC(),
			ReportType:    config.Type,
			DateRange:     domain.DateRange{From: config.From, To: config.To},
			Platform:      filter.Platform,
			OwnerID:       ownerID,
			IncludeCharts: config.IncludeCharts,
		},
	}, nil
}

func (a *Aggregator) aggregate(ctx context.Context, reportType domain.ReportType, filter domain.ReportFilter) (section, error) {
	switch reportType {
	case domain.ReportCampaign:
		return a.campaign(ctx, filter)
	case domain.ReportPosts:
		return a.posts(ctx, filter)
	case domain.ReportAudience:
		return a.audience(ctx, filter)
	case domain.ReportEngagement:
		return a.engagement(ctx, filter)
	case domain.ReportMessages:
		return a.messages(ctx, filter)
	default:
		return section{}, fmt.Errorf("%w: %q", ErrUnsupportedReportType, reportType)
	}
}

// groupAll runs the queries in parallel and returns rows in query order.
func (a *Aggregator) groupAll(ctx context.Context, queries ...repository.GroupQuery) ([][]repository.GroupRow, error) {
	results := make([][]repository.GroupRow, len(queries))
	group, groupCtx := errgroup.WithContext(ctx)
	for index, query := range queries {
		index, query := index, query
		group.Go(func() error {
			rows, err := a.store.GroupBy(groupCtx, query)
			if err != nil {
				return fmt.Errorf("group %s by %v: %w", query.Source, query.Keys, err)
			}
			results[index] = rows
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *Aggregator) campaign(ctx context.Context, filter domain.ReportFilter) (section, error) {
	results, err := a.groupAll(ctx,
		repository.GroupQuery{Source: repository.SourceCampaigns, Filter: filter, Keys: []string{"status"}, Sums: []string{"budget"}},
		repository.GroupQuery{Source: repository.SourceCampaigns, Filter: filter, Keys: []string{"objective"}},
	)
	if err != nil {
		return section{}, err
	}

	byStatus := fold(results[0], "status")
	byObjective := fold(results[1], "objective")
	total, budget := int64(0), int64(0)
	for _, row := range results[0] {
		total += row.Count
		budget += row.Sums["budget"]
	}

	return section{
		summary: map[string]any{
			"totalCampaigns":  total,
			"activeCampaigns": byStatus["active"],
			"totalBudget":     budget,
		},
		breakdowns: map[string]map[string]int64{
			"byStatus":    byStatus,
			"byObjective": byObjective,
		},
	}, nil
}

func (a *Aggregator) posts(ctx context.Context, filter domain.ReportFilter) (section, error) {
	results, err := a.groupAll(ctx, repository.GroupQuery{
		Source: repository.SourcePosts,
		Filter: filter,
		Keys:   []string{"platform", "status"},
		Sums:   []string{"likes", "comments", "shares"},
	})
	if err != nil {
		return section{}, err
	}

	rows := results[0]
	byStatus := fold(rows, "status")
	total, engagement := int64(0), int64(0)
	for _, row := range rows {
		total += row.Count
		engagement += row.Sums["likes"] + row.Sums["comments"] + row.Sums["shares"]
	}

	return section{
		summary: map[string]any{
			"totalPosts":      total,
			"publishedPosts":  byStatus["published"],
			"scheduledPosts":  byStatus["scheduled"],
			"totalEngagement": engagement,
			"avgEngagement":   formatRatio(engagement, total, 1),
		},
		breakdowns: map[string]map[string]int64{
			"byPlatform": fold(rows, "platform"),
			"byStatus":   byStatus,
		},
	}, nil
}

func (a *Aggregator) audience(ctx context.Context, filter domain.ReportFilter) (section, error) {
	results, err := a.groupAll(ctx, repository.GroupQuery{
		Source: repository.SourceAccounts,
		Filter: filter,
		Keys:   []string{"platform"},
		Sums:   []string{"followers"},
	})
	if err != nil {
		return section{}, err
	}

	rows := results[0]
	total, followers := int64(0), int64(0)
	for _, row := range rows {
		total += row.Count
		followers += row.Sums["followers"]
	}

	return section{
		summary: map[string]any{
			"totalAccounts":  total,
			"totalFollowers": followers,
			"avgFollowers":   formatRatio(followers, total, 1),
		},
		breakdowns: map[string]map[string]int64{
			"byPlatform":          fold(rows, "platform"),
			"followersByPlatform": foldSum(rows, "platform", "followers"),
		},
	}, nil
}

func (a *Aggregator) engagement(ctx context.Context, filter domain.ReportFilter) (section, error) {
	results, err := a.groupAll(ctx,
		repository.GroupQuery{Source: repository.SourcePosts, Filter: filter, Keys: []string{"platform"}, Sums: []string{"likes", "comments", "shares"}},
		repository.GroupQuery{Source: repository.SourceAccounts, Filter: filter, Sums: []string{"followers"}},
	)
	if err != nil {
		return section{}, err
	}

	var posts, likes, comments, shares, followers int64
	byPlatform := make(map[string]int64)
	for _, row := range results[0] {
		posts += row.Count
		likes += row.Sums["likes"]
		comments += row.Sums["comments"]
		shares += row.Sums["shares"]
		byPlatform[bucket(row.Keys["platform"])] += row.Sums["likes"] + row.Sums["comments"] + row.Sums["shares"]
	}
	for _, row := range results[1] {
		followers += row.Sums["followers"]
	}
	total := likes + comments + shares

	return section{
		summary: map[string]any{
			"totalPosts":      posts,
			"totalLikes":      likes,
			"totalComments":   comments,
			"totalShares":     shares,
			"totalEngagement": total,
			"engagementRate":  formatRatio(total, followers, 100),
		},
		breakdowns: map[string]map[string]int64{
			"engagementByPlatform": byPlatform,
			"postsByPlatform":      fold(results[0], "platform"),
		},
	}, nil
}

func (a *Aggregator) messages(ctx context.Context, filter domain.ReportFilter) (section, error) {
	results, err := a.groupAll(ctx, repository.GroupQuery{
		Source: repository.SourceMessages,
		Filter: filter,
		Keys:   []string{"platform", "sentiment", "priority", "is_read", "is_replied"},
	})
	if err != nil {
		return section{}, err
	}

	rows := results[0]
	var total, unread, replied int64
	for _, row := range rows {
		total += row.Count
		if row.Keys["is_read"] != "true" {
			unread += row.Count
		}
		if row.Keys["is_replied"] == "true" {
			replied += row.Count
		}
	}

	return section{
		summary: map[string]any{
			"totalMessages":   total,
			"unreadMessages":  unread,
			"repliedMessages": replied,
			"responseRate":    formatRatio(replied, total, 100),
		},
		breakdowns: map[string]map[string]int64{
			"byPlatform":  fold(rows, "platform"),
			"bySentiment": fold(rows, "sentiment"),
			"byPriority":  fold(rows, "priority"),
		},
	}, nil
}

// fold sums counts per value of key. Empty values land in "unknown".
func fold(rows []repository.GroupRow, key string) map[string]int64 {
	result := make(map[string]int64)
	for _, row := range rows {
		result[bucket(row.Keys[key])] += row.Count
	}
	return result
}

func foldSum(rows []repository.GroupRow, key, sum string) map[string]int64 {
	result := make(map[string]int64)
	for _, row := range rows {
		result[bucket(row.Keys[key])] += row.Sums[sum]
	}
	return result
}

func bucket(value string) string {
	if strings.TrimSpace(value) == "" {
		return unknownBucket
	}
	return value
}

// formatRatio renders numerator/denominator*scale with one decimal, or "0"
// when the denominator is zero.
func formatRatio(numerator, denominator int64, scale float64) string {
	if denominator == 0 {
		return "0"
	}
	return strconv.FormatFloat(float64(numerator)/float64(denominator)*scale, 'f', 1, 64)
}

func sampleSource(reportType domain.ReportType) repository.ReportSource {
	switch reportType {
	case domain.ReportCampaign:
		return repository.SourceCampaigns
	case domain.ReportAudience:
		return repository.SourceAccounts
	case domain.ReportMessages:
		return repository.SourceMessages
	default:
		return repository.SourcePosts
	}
}

var sampleFieldNames = map[string]string{
	"created_at":  "createdAt",
	"sender_name": "senderName",
	"is_read":     "isRead",
	"is_replied":  "isReplied",
}

func shapeSample(reportType domain.ReportType, records []repository.Record) []map[string]any {
	result := make([]map[string]any, 0, len(records))
	for _, record := range records {
		shaped := make(map[string]any, len(record)+1)
		for key, value := range record {
			if renamed, ok := sampleFieldNames[key]; ok {
				key = renamed
			}
			shaped[key] = value
		}
		if reportType == domain.ReportPosts || reportType == domain.ReportEngagement {
			shaped["engagement"] = toInt64(record["likes"]) + toInt64(record["comments"]) + toInt64(record["shares"])
		}
		result = append(result, shaped)
	}
	return result
}

func toInt64(value any) int64 {
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
