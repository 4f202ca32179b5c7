package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
)

func TestMemoryReportStoreGroupsAndSums(t *testing.T) {
	store := NewMemoryReportStore(nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Add(SourcePosts, Record{"owner_id": "o1", "platform": "instagram", "status": "published", "likes": int64(10), "comments": int64(2), "created_at": base})
	store.Add(SourcePosts, Record{"owner_id": "o1", "platform": "instagram", "status": "published", "likes": int64(5), "comments": int64(1), "created_at": base.Add(time.Hour)})
	store.Add(SourcePosts, Record{"owner_id": "o1", "platform": "facebook", "status": "scheduled", "likes": int64(0), "created_at": base})
	store.Add(SourcePosts, Record{"owner_id": "o2", "platform": "facebook", "status": "published", "likes": int64(99), "created_at": base})

	rows, err := store.GroupBy(context.Background(), GroupQuery{
		Source: SourcePosts,
		Filter: domain.ReportFilter{OwnerID: "o1"},
		Keys:   []string{"platform"},
		Sums:   []string{"likes", "comments"},
	})
	if err != nil {
		t.Fatalf("group by: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two platform groups, got %+v", rows)
	}
	byPlatform := map[string]GroupRow{}
	for _, row := range rows {
		byPlatform[row.Keys["platform"]] = row
	}
	if byPlatform["instagram"].Count != 2 || byPlatform["instagram"].Sums["likes"] != 15 {
		t.Fatalf("unexpected instagram group %+v", byPlatform["instagram"])
	}
	if byPlatform["facebook"].Count != 1 {
		t.Fatalf("expected other owner's post excluded, got %+v", byPlatform["facebook"])
	}
}

func TestMemoryReportStoreAppliesDateAndPlatformFilter(t *testing.T) {
	store := NewMemoryReportStore(nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Add(SourceAccounts, Record{"owner_id": "o1", "platform": "instagram", "followers": int64(100), "created_at": base})
	store.Add(SourceAccounts, Record{"owner_id": "o1", "platform": "instagram", "followers": int64(50), "created_at": base.AddDate(0, 1, 0)})
	store.Add(SourceAccounts, Record{"owner_id": "o1", "platform": "tiktok", "followers": int64(70), "created_at": base})

	to := base.AddDate(0, 0, 7)
	rows, err := store.GroupBy(context.Background(), GroupQuery{
		Source: SourceAccounts,
		Filter: domain.ReportFilter{OwnerID: "o1", To: &to, Platform: "INSTAGRAM"},
		Sums:   []string{"followers"},
	})
	if err != nil {
		t.Fatalf("group by: %v", err)
	}
	if len(rows) != 1 || rows[0].Count != 1 || rows[0].Sums["followers"] != 100 {
		t.Fatalf("unexpected filtered totals %+v", rows)
	}
}

func TestMemoryReportStoreReadsMessagesFromRepository(t *testing.T) {
	messages := NewMemoryMessageRepository()
	ctx := context.Background()
	_ = messages.Create(ctx, &domain.Message{ID: "m1", OwnerID: "o1", Platform: "instagram", Sentiment: "positive", IsReplied: true})
	_ = messages.Create(ctx, &domain.Message{ID: "m2", OwnerID: "o1", Platform: "instagram", Sentiment: "negative"})
	store := NewMemoryReportStore(messages)

	rows, err := store.GroupBy(ctx, GroupQuery{
		Source: SourceMessages,
		Filter: domain.ReportFilter{OwnerID: "o1"},
		Keys:   []string{"is_replied"},
	})
	if err != nil {
		t.Fatalf("group by: %v", err)
	}
	counts := map[string]int64{}
	for _, row := range rows {
		counts[row.Keys["is_replied"]] = row.Count
	}
	if counts["true"] != 1 || counts["false"] != 1 {
		t.Fatalf("unexpected replied counts %+v", counts)
	}
}

func TestReportStoreRejectsUnknownColumns(t *testing.T) {
	_, err := NewMemoryReportStore(nil).GroupBy(context.Background(), GroupQuery{
		Source: SourcePosts,
		Keys:   []string{"platform; DROP TABLE posts"},
	})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected unknown column error, got %v", err)
	}
}

func TestMemoryReportStoreSampleIsNewestFirstAndLimited(t *testing.T) {
	store := NewMemoryReportStore(nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		store.Add(SourceCampaigns, Record{"owner_id": "o1", "name": "c", "budget": int64(i), "created_at": base.Add(time.Duration(i) * time.Hour)})
	}

	sample, err := store.Sample(context.Background(), SourceCampaigns, domain.ReportFilter{OwnerID: "o1"}, 10)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(sample) != 10 {
		t.Fatalf("expected 10 records, got %d", len(sample))
	}
	if sample[0]["budget"] != int64(14) {
		t.Fatalf("expected newest record first, got %+v", sample[0])
	}
	if _, leaked := sample[0]["owner_id"]; leaked {
		t.Fatalf("expected sample projected to sample columns")
	}
}

func TestBuildReportFilterNumbersArguments(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildReportFilter(domain.ReportFilter{OwnerID: "o1", From: &from, Platform: "Facebook"})

	if !strings.Contains(query, "created_at >= $2") || !strings.Contains(query, "lower(platform) = $3") {
		t.Fatalf("unexpected filter query %q", query)
	}
	if len(args) != 3 || args[2] != "facebook" {
		t.Fatalf("unexpected args %+v", args)
	}
}
