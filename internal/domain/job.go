package domain

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusDone       RunStatus = "done"
	RunStatusFailed     RunStatus = "failed"
)

// ReportRun is one execution of a scheduled report.
type ReportRun struct {
	ID           string       `json:"id"`
	ScheduleID   string       `json:"scheduleId"`
	OwnerID      string       `json:"ownerId"`
	ReportType   ReportType   `json:"reportType"`
	Format       ReportFormat `json:"format"`
	Status       RunStatus    `json:"status"`
	ArtifactKey  string       `json:"artifactKey,omitempty"`
	ErrorMessage string       `json:"error,omitempty"`
	Attempts     int          `json:"attempts"`
	ScheduledFor time.Time    `json:"scheduledFor"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

type RunListFilter struct {
	OwnerID    string
	ScheduleID string
	Page       int
	PageSize   int
}

// QueueMessage is the transport format sent to queue backends.
type QueueMessage struct {
	RunID       string          `json:"run_id"`
	ScheduleID  string          `json:"schedule_id"`
	OwnerID     string          `json:"owner_id"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	RequestedAt time.Time       `json:"requested_at"`
}
