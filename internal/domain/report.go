package domain

import "time"

type ReportType string

const (
	ReportCampaign   ReportType = "campaign"
	ReportPosts      ReportType = "posts"
	ReportAudience   ReportType = "audience"
	ReportEngagement ReportType = "engagement"
	ReportMessages   ReportType = "messages"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportCampaign, ReportPosts, ReportAudience, ReportEngagement, ReportMessages:
		return true
	default:
		return false
	}
}

type ReportFormat string

const (
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
	FormatPDF  ReportFormat = "pdf"
)

func (f ReportFormat) Valid() bool {
	switch f {
	case FormatJSON, FormatCSV, FormatPDF:
		return true
	default:
		return false
	}
}

type ReportConfig struct {
	Type          ReportType
	Format        ReportFormat
	From          *time.Time
	To            *time.Time
	Platform      string
	IncludeCharts bool
}

// ReportFilter is shared by every grouped query of one report.
type ReportFilter struct {
	OwnerID  string
	From     *time.Time
	To       *time.Time
	Platform string
}

type DateRange struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

type ReportMetadata struct {
	GeneratedAt   time.Time  `json:"generatedAt"`
	ReportType    ReportType `json:"reportType"`
	DateRange     DateRange  `json:"dateRange"`
	Platform      string     `json:"platform,omitempty"`
	OwnerID       string     `json:"ownerId"`
	IncludeCharts bool       `json:"includeCharts"`
}

type ReportPayload struct {
	Type       ReportType                  `json:"type"`
	Summary    map[string]any              `json:"summary"`
	Breakdowns map[string]map[string]int64 `json:"breakdowns"`
	Sample     []map[string]any            `json:"sample"`
	Metadata   ReportMetadata              `json:"metadata"`
}

// Artifact is a rendered report ready to be downloaded.
type Artifact struct {
	Body        []byte
	ContentType string
	Filename    string
}
