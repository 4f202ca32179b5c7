package domain

import "time"

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}

type ScheduledReport struct {
	ID         string       `json:"id"`
	OwnerID    string       `json:"ownerId"`
	Name       string       `json:"name"`
	ReportType ReportType   `json:"reportType"`
	Format     ReportFormat `json:"format"`
	Frequency  Frequency    `json:"frequency"`
	DayOfWeek  *int         `json:"dayOfWeek,omitempty"`
	DayOfMonth *int         `json:"dayOfMonth,omitempty"`
	TimeOfDay  string       `json:"timeOfDay"`
	Platform   string       `json:"platform,omitempty"`
	Recipients []string     `json:"recipients"`
	IsActive   bool         `json:"isActive"`
	NextRunAt  time.Time    `json:"nextRunAt"`
	LastRunAt  *time.Time   `json:"lastRunAt,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// SchedulePatch holds the optional fields of an update request.
type SchedulePatch struct {
	Name       *string
	ReportType *ReportType
	Format     *ReportFormat
	Frequency  *Frequency
	DayOfWeek  *int
	DayOfMonth *int
	TimeOfDay  *string
	Platform   *string
	Recipients []string
	IsActive   *bool

	ClearDayOfWeek  bool
	ClearDayOfMonth bool
}

// TouchesTiming reports whether the patch changes when the schedule fires.
func (p SchedulePatch) TouchesTiming() bool {
	return p.Frequency != nil ||
		p.DayOfWeek != nil ||
		p.DayOfMonth != nil ||
		p.TimeOfDay != nil ||
		p.ClearDayOfWeek ||
		p.ClearDayOfMonth
}
