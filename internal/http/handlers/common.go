package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/iago/socialdesk-back/internal/batch"
	"github.com/iago/socialdesk-back/internal/http/middleware"
	"github.com/iago/socialdesk-back/internal/policy"
	"github.com/iago/socialdesk-back/internal/report"
	"github.com/iago/socialdesk-back/internal/repository"
	"github.com/iago/socialdesk-back/internal/schedule"
	"github.com/iago/socialdesk-back/internal/service"
	"github.com/iago/socialdesk-back/internal/storage"
)

const maxBodyBytes = 1 << 20

var errInvalidPayload = errors.New("invalid payload")

type API struct {
	messages  *service.MessageService
	reports   *service.ReportService
	schedules *schedule.Service
	logger    *log.Logger
}

func NewAPI(
	messages *service.MessageService,
	reports *service.ReportService,
	schedules *schedule.Service,
	logger *log.Logger,
) *API {
	return &API{
		messages:  messages,
		reports:   reports,
		schedules: schedules,
		logger:    logger,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

// writeServiceError maps package sentinels onto HTTP statuses. Anything
// unrecognized is logged and reported as a 500 with the generic message.
func (api *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, batch.ErrEmptyBatch),
		errors.Is(err, batch.ErrInvalidAction),
		errors.Is(err, batch.ErrMissingOwner),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, report.ErrUnsupportedReportType),
		errors.Is(err, report.ErrUnsupportedFormat),
		errors.Is(err, report.ErrInvalidDateRange),
		errors.Is(err, schedule.ErrInvalidSchedule):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, policy.ErrAutoSendNotAllowed):
		writeError(w, r, http.StatusUnprocessableEntity, "policy_violation", "automatic send is not allowed")
	default:
		api.logf("request failed request_id=%s path=%s: %v", middleware.GetRequestID(r.Context()), r.URL.Path, err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", message)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		return nil, errInvalidPayload
	}
	return body, nil
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

// parseOptionalDate accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
// endOfDay moves plain dates to the last instant of that day.
func parseOptionalDate(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return nil, errInvalidPayload
	}
	if endOfDay {
		parsed = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return &parsed, nil
}

func ownerID(r *http.Request) string {
	return middleware.GetOwnerID(r.Context())
}

func (api *API) logf(format string, args ...any) {
	if api.logger == nil {
		return
	}
	api.logger.Printf(format, args...)
}
