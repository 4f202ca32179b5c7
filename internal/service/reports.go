package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/report"
	"github.com/iago/socialdesk-back/internal/storage"
	"github.com/iago/socialdesk-back/internal/worker"
)

const DownloadPath = "/analytics/reports/download"

type GenerateOutput struct {
	Payload     domain.ReportPayload
	Artifact    *domain.Artifact
	Timestamp   int64
	DownloadURL string
}

// ReportService generates on-demand reports and keeps their payloads so
// they can be downloaded again in any format.
type ReportService struct {
	generator worker.ReportGenerator
	exporter  worker.ReportExporter
	artifacts storage.ArtifactStore
	logger    *log.Logger
}

func NewReportService(
	generator worker.ReportGenerator,
	exporter worker.ReportExporter,
	artifacts storage.ArtifactStore,
	logger *log.Logger,
) *ReportService {
	return &ReportService{
		generator: generator,
		exporter:  exporter,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Generate builds the payload, stores it, and renders it when the format
// is csv or pdf. A storage failure leaves DownloadURL empty.
func (s *ReportService) Generate(ctx context.Context, ownerID string, config domain.ReportConfig) (GenerateOutput, error) {
	if config.Format == "" {
		config.Format = domain.FormatJSON
	}
	if !config.Format.Valid() {
		return GenerateOutput{}, fmt.Errorf("%w: %q", report.ErrUnsupportedFormat, config.Format)
	}

	payload, err := s.generator.Generate(ctx, config, ownerID)
	if err != nil {
		return GenerateOutput{}, err
	}
	output := GenerateOutput{Payload: payload, Timestamp: payload.Metadata.GeneratedAt.UnixMilli()}

	if err := s.store(ctx, ownerID, payload, output.Timestamp); err != nil {
		s.logf("report payload store failed owner=%s type=%s: %v", ownerID, config.Type, err)
	} else {
		output.DownloadURL = DownloadURL(config.Type, config.Format, output.Timestamp)
	}

	if config.Format != domain.FormatJSON {
		artifact, err := s.exporter.Export(payload, config.Format)
		if err != nil {
			return GenerateOutput{}, err
		}
		output.Artifact = &artifact
	}
	return output, nil
}

// Download renders a stored payload. Unknown keys return storage.ErrNotFound.
func (s *ReportService) Download(
	ctx context.Context,
	ownerID string,
	reportType domain.ReportType,
	format domain.ReportFormat,
	timestamp int64,
) (domain.Artifact, error) {
	if !reportType.Valid() {
		return domain.Artifact{}, fmt.Errorf("%w: %q", report.ErrUnsupportedReportType, reportType)
	}
	if !format.Valid() {
		return domain.Artifact{}, fmt.Errorf("%w: %q", report.ErrUnsupportedFormat, format)
	}

	object, err := s.artifacts.Get(ctx, PayloadKey(ownerID, reportType, timestamp))
	if err != nil {
		return domain.Artifact{}, err
	}

	var payload domain.ReportPayload
	if err := json.Unmarshal(object.Body, &payload); err != nil {
		return domain.Artifact{}, fmt.Errorf("decode stored report: %w", err)
	}
	return s.exporter.Export(payload, format)
}

// RunArtifact loads the rendered file of a finished scheduled run.
func (s *ReportService) RunArtifact(ctx context.Context, run *domain.ReportRun) (domain.Artifact, error) {
	if run.Status != domain.RunStatusDone || run.ArtifactKey == "" {
		return domain.Artifact{}, storage.ErrNotFound
	}
	object, err := s.artifacts.Get(ctx, run.ArtifactKey)
	if err != nil {
		return domain.Artifact{}, err
	}
	return domain.Artifact{
		Body:        object.Body,
		ContentType: object.ContentType,
		Filename:    fmt.Sprintf("%s-report-%s.%s", run.ReportType, run.ScheduledFor.UTC().Format("2006-01-02"), run.Format),
	}, nil
}

func (s *ReportService) store(ctx context.Context, ownerID string, payload domain.ReportPayload, timestamp int64) error {
	if s.artifacts == nil {
		return errors.New("artifact store is not configured")
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return s.artifacts.Put(ctx, PayloadKey(ownerID, payload.Type, timestamp), encoded, "application/json")
}

// PayloadKey is "<owner>/<type>/<unix millis>".
func PayloadKey(ownerID string, reportType domain.ReportType, timestamp int64) string {
	return fmt.Sprintf("%s/%s/%d", ownerID, reportType, timestamp)
}

func DownloadURL(reportType domain.ReportType, format domain.ReportFormat, timestamp int64) string {
	query := url.Values{}
	query.Set("type", string(reportType))
	query.Set("format", string(format))
	query.Set("timestamp", strconv.FormatInt(timestamp, 10))
	return DownloadPath + "?" + query.Encode()
}

func (s *ReportService) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
