package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/iago/socialdesk-back/internal/batch"
	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/policy"
	"github.com/iago/socialdesk-back/internal/service"
)

type bulkProcessRequest struct {
	MessageIDs []string `json:"messageIds"`
	Action     string   `json:"action"`
	BatchSize  int      `json:"batchSize,omitempty"`
	Platform   string   `json:"platform,omitempty"`
}

type analyzeRequest struct {
	MessageContent string `json:"messageContent"`
	Platform       string `json:"platform,omitempty"`
	MessageType    string `json:"messageType,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	PostTitle      string `json:"postTitle,omitempty"`
}

type autoReplyRequest struct {
	MessageID    string `json:"messageId"`
	Tone         string `json:"tone,omitempty"`
	IncludeEmoji bool   `json:"includeEmoji,omitempty"`
	MaxLength    int    `json:"maxLength,omitempty"`
}

func (api *API) BulkProcess(w http.ResponseWriter, r *http.Request) {
	var request bulkProcessRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	result, err := api.messages.BulkProcess(r.Context(), batch.Request{
		MessageIDs: request.MessageIDs,
		Action:     domain.Action(strings.TrimSpace(request.Action)),
		OwnerID:    ownerID(r),
		Platform:   request.Platform,
		BatchSize:  request.BatchSize,
	})
	if err != nil {
		api.writeServiceError(w, r, err, "failed to process messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"processed":    result.Processed,
		"errors":       result.Errors,
		"results":      result.Results,
		"errorDetails": result.ErrorDetails,
	})
}

func (api *API) Analyze(w http.ResponseWriter, r *http.Request) {
	var request analyzeRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	output, err := api.messages.Analyze(r.Context(), service.AnalyzeInput{
		OwnerID:     ownerID(r),
		Content:     request.MessageContent,
		Platform:    request.Platform,
		MessageType: request.MessageType,
		SenderName:  request.SenderName,
		PostTitle:   request.PostTitle,
	})
	if err != nil {
		api.writeServiceError(w, r, err, "failed to analyze message")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"analysis": output.Analysis,
		"fallback": output.Fallback,
	})
}

// AutoReply drafts replies for review. Bodies asking for automatic sending
// are rejected before anything is generated.
func (api *API) AutoReply(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if err := policy.ValidateManualOnlyPayload(body); err != nil {
		api.writeServiceError(w, r, err, "")
		return
	}

	var request autoReplyRequest
	if err := json.Unmarshal(body, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(request.MessageID) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "messageId is required")
		return
	}

	output, err := api.messages.AutoReply(r.Context(), service.AutoReplyInput{
		OwnerID:      ownerID(r),
		MessageID:    strings.TrimSpace(request.MessageID),
		Tone:         request.Tone,
		IncludeEmoji: request.IncludeEmoji,
		MaxLength:    request.MaxLength,
	})
	if err != nil {
		api.writeServiceError(w, r, err, "failed to generate replies")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"autoReplies": output.AutoReplies,
		"fallback":    output.Fallback,
		"hitl":        output.HITL,
	})
}
