package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

const (
	contentTypeJSON = "application/json"
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypePDF  = "application/pdf"
)

var (
	postColumns    = []string{"title", "platform", "status", "likes", "comments", "shares", "engagement", "createdAt"}
	messageColumns = []string{"platform", "type", "senderName", "sentiment", "priority", "isReplied", "createdAt"}
)

// Exporter renders payloads into downloadable artifacts.
type Exporter struct {
	logger *log.Logger
}

func NewExporter(logger *log.Logger) *Exporter {
	return &Exporter{logger: logger}
}

func (e *Exporter) Export(payload domain.ReportPayload, format domain.ReportFormat) (domain.Artifact, error) {
	var (
		body        []byte
		contentType string
		err         error
	)
	switch format {
	case domain.FormatJSON:
		body, err = json.MarshalIndent(payload, "", "  ")
		contentType = contentTypeJSON
	case domain.FormatCSV:
		body, err = renderCSV(payload)
		contentType = contentTypeCSV
	case domain.FormatPDF:
		body = e.renderPDF(payload)
		contentType = contentTypePDF
	default:
		return domain.Artifact{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("render %s report: %w", format, err)
	}

	return domain.Artifact{
		Body:        body,
		ContentType: contentType,
		Filename:    Filename(payload.Type, format, payload.Metadata.GeneratedAt),
	}, nil
}

// Filename returns "<type>-report-<YYYY-MM-DD>.<ext>".
func Filename(reportType domain.ReportType, format domain.ReportFormat, generatedAt time.Time) string {
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}
	return fmt.Sprintf("%s-report-%s.%s", reportType, generatedAt.UTC().Format("2006-01-02"), format)
}

func renderCSV(payload domain.ReportPayload) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)

	var rows [][]string
	switch payload.Type {
	case domain.ReportPosts:
		rows = sampleRows(postColumns, payload.Sample)
	case domain.ReportMessages:
		rows = sampleRows(messageColumns, payload.Sample)
	default:
		rows = keyValueRows(payload)
	}

	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func sampleRows(columns []string, sample []map[string]any) [][]string {
	rows := make([][]string, 0, len(sample)+1)
	rows = append(rows, columns)
	for _, record := range sample {
		row := make([]string, 0, len(columns))
		for _, column := range columns {
			row = append(row, formatCell(record[column]))
		}
		rows = append(rows, row)
	}
	return rows
}

func keyValueRows(payload domain.ReportPayload) [][]string {
	rows := [][]string{
		{"key", "value"},
		{"reportType", string(payload.Type)},
		{"generatedAt", formatCell(payload.Metadata.GeneratedAt)},
		{"dateFrom", formatCell(payload.Metadata.DateRange.From)},
		{"dateTo", formatCell(payload.Metadata.DateRange.To)},
		{"platform", payload.Metadata.Platform},
	}
	for _, key := range sortedKeys(payload.Summary) {
		rows = append(rows, []string{"summary." + key, formatCell(payload.Summary[key])})
	}
	for _, name := range sortedKeys(payload.Breakdowns) {
		breakdown := payload.Breakdowns[name]
		for _, key := range sortedKeys(breakdown) {
			rows = append(rows, []string{name + "." + key, strconv.FormatInt(breakdown[key], 10)})
		}
	}
	return rows
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	case *time.Time:
		if typed == nil {
			return ""
		}
		return typed.UTC().Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// reportLines is the printable layout shared by the PDF renderer and its
// plain-text fallback. The first line is the header.
func reportLines(payload domain.ReportPayload) []string {
	lines := []string{
		Title(payload.Type) + " Report",
		"Generated: " + formatCell(payload.Metadata.GeneratedAt),
		"Date range: " + describeRange(payload.Metadata.DateRange),
		"Platform: " + firstNonEmpty(payload.Metadata.Platform, "all"),
		"",
		"Summary",
	}
	for _, key := range sortedKeys(payload.Summary) {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, formatCell(payload.Summary[key])))
	}
	if len(payload.Breakdowns) > 0 {
		lines = append(lines, "", "Breakdowns")
		for _, name := range sortedKeys(payload.Breakdowns) {
			lines = append(lines, "  "+name)
			breakdown := payload.Breakdowns[name]
			for _, key := range sortedKeys(breakdown) {
				lines = append(lines, fmt.Sprintf("    %s: %d", key, breakdown[key]))
			}
		}
	}
	if len(payload.Sample) > 0 {
		lines = append(lines, "", fmt.Sprintf("Sample (%d records)", len(payload.Sample)))
		for _, record := range payload.Sample {
			parts := make([]string, 0, len(record))
			for _, key := range sortedKeys(record) {
				parts = append(parts, key+"="+formatCell(record[key]))
			}
			lines = append(lines, "  - "+truncate(strings.Join(parts, ", "), 110))
		}
	}
	return lines
}

// Title capitalizes a report type for headings.
func Title(reportType domain.ReportType) string {
	value := string(reportType)
	if value == "" {
		return "Report"
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func describeRange(dateRange domain.DateRange) string {
	if dateRange.From == nil && dateRange.To == nil {
		return "all time"
	}
	return firstNonEmpty(formatCell(dateRange.From), "beginning") + " to " + firstNonEmpty(formatCell(dateRange.To), "now")
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (e *Exporter) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
