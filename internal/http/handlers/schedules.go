package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/schedule"
)

// optionalInt tells an absent field apart from an explicit null.
type optionalInt struct {
	Set   bool
	Value *int
}

func (o *optionalInt) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}

type scheduleRequest struct {
	Name       *string     `json:"name"`
	ReportType *string     `json:"reportType"`
	Format     *string     `json:"format"`
	Frequency  *string     `json:"frequency"`
	DayOfWeek  optionalInt `json:"dayOfWeek"`
	DayOfMonth optionalInt `json:"dayOfMonth"`
	TimeOfDay  *string     `json:"timeOfDay"`
	Platform   *string     `json:"platform"`
	Recipients []string    `json:"recipients"`
	IsActive   *bool       `json:"isActive"`
}

func (request scheduleRequest) createInput() schedule.CreateInput {
	return schedule.CreateInput{
		Name:       deref(request.Name),
		ReportType: domain.ReportType(strings.TrimSpace(deref(request.ReportType))),
		Format:     domain.ReportFormat(strings.ToLower(strings.TrimSpace(deref(request.Format)))),
		Frequency:  domain.Frequency(strings.ToLower(strings.TrimSpace(deref(request.Frequency)))),
		DayOfWeek:  request.DayOfWeek.Value,
		DayOfMonth: request.DayOfMonth.Value,
		TimeOfDay:  deref(request.TimeOfDay),
		Platform:   deref(request.Platform),
		Recipients: request.Recipients,
		IsActive:   request.IsActive,
	}
}

func (request scheduleRequest) patch() domain.SchedulePatch {
	patch := domain.SchedulePatch{
		Name:       request.Name,
		TimeOfDay:  request.TimeOfDay,
		Platform:   request.Platform,
		Recipients: request.Recipients,
		IsActive:   request.IsActive,
	}
	if request.ReportType != nil {
		value := domain.ReportType(strings.TrimSpace(*request.ReportType))
		patch.ReportType = &value
	}
	if request.Format != nil {
		value := domain.ReportFormat(strings.ToLower(strings.TrimSpace(*request.Format)))
		patch.Format = &value
	}
	if request.Frequency != nil {
		value := domain.Frequency(strings.ToLower(strings.TrimSpace(*request.Frequency)))
		patch.Frequency = &value
	}
	if request.DayOfWeek.Set {
		patch.DayOfWeek = request.DayOfWeek.Value
		patch.ClearDayOfWeek = request.DayOfWeek.Value == nil
	}
	if request.DayOfMonth.Set {
		patch.DayOfMonth = request.DayOfMonth.Value
		patch.ClearDayOfMonth = request.DayOfMonth.Value == nil
	}
	return patch
}

func (api *API) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := api.schedules.List(r.Context(), ownerID(r))
	if err != nil {
		api.writeServiceError(w, r, err, "failed to list scheduled reports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"schedules": schedules,
	})
}

func (api *API) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var request scheduleRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	created, err := api.schedules.Create(r.Context(), ownerID(r), request.createInput())
	if err != nil {
		api.writeServiceError(w, r, err, "failed to create scheduled report")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"schedule": created,
	})
}

func (api *API) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := strings.TrimSpace(r.URL.Query().Get("id"))
	if scheduleID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}
	var request scheduleRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	updated, err := api.schedules.Update(r.Context(), ownerID(r), scheduleID, request.patch())
	if err != nil {
		api.writeServiceError(w, r, err, "failed to update scheduled report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"schedule": updated,
	})
}

func (api *API) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := strings.TrimSpace(r.URL.Query().Get("id"))
	if scheduleID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}
	if err := api.schedules.Delete(r.Context(), ownerID(r), scheduleID); err != nil {
		api.writeServiceError(w, r, err, "failed to delete scheduled report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
