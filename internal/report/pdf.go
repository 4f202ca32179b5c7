package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/iago/socialdesk-back/internal/domain"
)

const (
	linesPerPage = 56
	pageTop      = 800
	lineHeight   = 13
	leftMargin   = 48
)

type pdfFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type pdfText struct {
	Value string  `json:"value"`
	Pos   [2]int  `json:"pos"`
	Font  pdfFont `json:"font"`
}

type pdfContent struct {
	Text []pdfText `json:"text"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

type pdfLayout struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

// renderPDF lays the report out through pdfcpu's JSON page description.
// When pdfcpu rejects the layout the plain-text rendering is returned.
func (e *Exporter) renderPDF(payload domain.ReportPayload) []byte {
	lines := reportLines(payload)

	layout, err := json.Marshal(buildPDFLayout(lines))
	if err == nil {
		out := bytes.NewBuffer(nil)
		if err = api.Create(nil, bytes.NewReader(layout), out, nil); err == nil {
			if pages, countErr := api.PageCount(bytes.NewReader(out.Bytes()), nil); countErr == nil && pages > 0 {
				return out.Bytes()
			} else if countErr != nil {
				err = countErr
			}
		}
	}

	e.logf("pdf render fallback report_type=%s: %v", payload.Type, err)
	return []byte(strings.Join(lines, "\n") + "\n")
}

func buildPDFLayout(lines []string) pdfLayout {
	layout := pdfLayout{
		Paper:  "A4P",
		Origin: "LowerLeft",
		Pages:  make(map[string]pdfPage),
	}
	for start := 0; start < len(lines); start += linesPerPage {
		end := start + linesPerPage
		if end > len(lines) {
			end = len(lines)
		}

		texts := make([]pdfText, 0, end-start)
		for offset, line := range lines[start:end] {
			if strings.TrimSpace(line) == "" {
				continue
			}
			font := pdfFont{Name: "Helvetica", Size: 10}
			if start == 0 && offset == 0 {
				font = pdfFont{Name: "Helvetica-Bold", Size: 16}
			}
			texts = append(texts, pdfText{
				Value: line,
				Pos:   [2]int{leftMargin, pageTop - offset*lineHeight},
				Font:  font,
			})
		}
		layout.Pages[fmt.Sprintf("%d", start/linesPerPage+1)] = pdfPage{Content: pdfContent{Text: texts}}
	}
	return layout
}
