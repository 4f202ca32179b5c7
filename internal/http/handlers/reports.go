package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iago/socialdesk-back/internal/domain"
)

type generateReportRequest struct {
	ReportType    string `json:"reportType"`
	Format        string `json:"format,omitempty"`
	DateFrom      string `json:"dateFrom,omitempty"`
	DateTo        string `json:"dateTo,omitempty"`
	Platform      string `json:"platform,omitempty"`
	IncludeCharts bool   `json:"includeCharts,omitempty"`
}

func (api *API) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var request generateReportRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	from, err := parseOptionalDate(request.DateFrom, false)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "dateFrom must be YYYY-MM-DD or RFC3339")
		return
	}
	to, err := parseOptionalDate(request.DateTo, true)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "dateTo must be YYYY-MM-DD or RFC3339")
		return
	}

	output, err := api.reports.Generate(r.Context(), ownerID(r), domain.ReportConfig{
		Type:          domain.ReportType(strings.TrimSpace(request.ReportType)),
		Format:        domain.ReportFormat(strings.ToLower(strings.TrimSpace(request.Format))),
		From:          from,
		To:            to,
		Platform:      strings.TrimSpace(request.Platform),
		IncludeCharts: request.IncludeCharts,
	})
	if err != nil {
		api.writeServiceError(w, r, err, "failed to generate report")
		return
	}

	if output.Artifact != nil {
		writeArtifact(w, *output.Artifact)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"report":      output.Payload,
		"downloadUrl": output.DownloadURL,
	})
}

func (api *API) DownloadReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	if format == "" {
		format = string(domain.FormatJSON)
	}
	timestamp, err := strconv.ParseInt(strings.TrimSpace(query.Get("timestamp")), 10, 64)
	if err != nil || timestamp <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "timestamp must be a positive integer")
		return
	}

	artifact, err := api.reports.Download(
		r.Context(),
		ownerID(r),
		domain.ReportType(strings.TrimSpace(query.Get("type"))),
		domain.ReportFormat(format),
		timestamp,
	)
	if err != nil {
		api.writeServiceError(w, r, err, "failed to download report")
		return
	}
	writeArtifact(w, artifact)
}

func (api *API) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := parsePositiveInt(query.Get("page"), 1)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "page must be a positive integer")
		return
	}
	pageSize, err := parsePositiveInt(query.Get("page_size"), 20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "page_size must be a positive integer")
		return
	}

	runs, total, err := api.schedules.ListRuns(r.Context(), domain.RunListFilter{
		OwnerID:    ownerID(r),
		ScheduleID: strings.TrimSpace(query.Get("scheduleId")),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		api.writeServiceError(w, r, err, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"runs":      runs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (api *API) DownloadRunArtifact(w http.ResponseWriter, r *http.Request) {
	run, err := api.schedules.GetRun(r.Context(), ownerID(r), chi.URLParam(r, "runID"))
	if err != nil {
		api.writeServiceError(w, r, err, "failed to load run")
		return
	}
	artifact, err := api.reports.RunArtifact(r.Context(), run)
	if err != nil {
		api.writeServiceError(w, r, err, "failed to load run artifact")
		return
	}
	writeArtifact(w, artifact)
}

func writeArtifact(w http.ResponseWriter, artifact domain.Artifact) {
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Body)
}

func parsePositiveInt(value string, fallback int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed <= 0 {
		return 0, errInvalidPayload
	}
	return parsed, nil
}
