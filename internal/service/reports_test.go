package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/report"
	"github.com/iago/socialdesk-back/internal/repository"
	"github.com/iago/socialdesk-back/internal/storage"
)

func newReportService() (*ReportService, *storage.Memory) {
	messages := repository.NewMemoryMessageRepository()
	store := repository.NewMemoryReportStore(messages)
	store.Add(repository.SourcePosts, repository.Record{
		"owner_id": "owner-1", "title": "Launch", "platform": "instagram", "status": "published",
		"likes": int64(3), "created_at": time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	artifacts := storage.NewMemory()
	return NewReportService(report.NewAggregator(store), report.NewExporter(nil), artifacts, nil), artifacts
}

func TestGenerateJSONStoresPayloadForDownload(t *testing.T) {
	service, artifacts := newReportService()
	ctx := context.Background()

	output, err := service.Generate(ctx, "owner-1", domain.ReportConfig{Type: domain.ReportPosts})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if output.Artifact != nil {
		t.Fatalf("expected no rendered artifact for json")
	}
	if !strings.HasPrefix(output.DownloadURL, DownloadPath+"?") || !strings.Contains(output.DownloadURL, "type=posts") {
		t.Fatalf("unexpected download url %s", output.DownloadURL)
	}
	if keys := artifacts.Keys("owner-1/posts/"); len(keys) != 1 {
		t.Fatalf("expected stored payload, got %v", keys)
	}

	artifact, err := service.Download(ctx, "owner-1", domain.ReportPosts, domain.FormatCSV, output.Timestamp)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.Contains(string(artifact.Body), "Launch") || !strings.HasSuffix(artifact.Filename, ".csv") {
		t.Fatalf("unexpected artifact %s %q", artifact.Filename, artifact.Body)
	}
}

func TestGenerateCSVRendersArtifact(t *testing.T) {
	service, _ := newReportService()
	output, err := service.Generate(context.Background(), "owner-1", domain.ReportConfig{Type: domain.ReportPosts, Format: domain.FormatCSV})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if output.Artifact == nil || output.Artifact.ContentType != "text/csv; charset=utf-8" {
		t.Fatalf("expected csv artifact, got %+v", output.Artifact)
	}
}

func TestDownloadIsOwnerScoped(t *testing.T) {
	service, _ := newReportService()
	ctx := context.Background()
	output, _ := service.Generate(ctx, "owner-1", domain.ReportConfig{Type: domain.ReportPosts})

	if _, err := service.Download(ctx, "owner-2", domain.ReportPosts, domain.FormatJSON, output.Timestamp); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	if _, err := service.Download(ctx, "owner-1", domain.ReportPosts, "xlsx", output.Timestamp); !errors.Is(err, report.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}
