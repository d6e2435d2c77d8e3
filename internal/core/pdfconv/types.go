package pdfconv

import (
	"fmt"
	"strings"
	"time"
)

// Status is the terminal state of one file conversion.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusEmpty   Status = "empty"
	StatusError   Status = "error"
)

// ReasonAlreadyProcessed is the skip reason for a cache hit.
const ReasonAlreadyProcessed = "already_processed"

// Format selects the output file extension and the unit marker style.
type Format string

const (
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
)

// ParseFormat accepts "txt" or "md" (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText:
		return FormatText, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want txt or md)", s)
	}
}

// Ext returns the output file extension including the dot.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return ".md"
	}
	return ".txt"
}

// PageStat describes one extraction unit.
type PageStat struct {
	Page       int  `json:"page"`
	CharCount  int  `json:"char_count"`
	HasContent bool `json:"has_content"`
}

// DocumentMetadata is written next to every converted file as <stem>_metadata.json.
type DocumentMetadata struct {
	TotalPages   int        `json:"total_pages"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	CreationDate string     `json:"creation_date"`
	PageTexts    []PageStat `json:"page_texts"`
}

// PagesWithContent counts units that carried non-whitespace text.
func (m DocumentMetadata) PagesWithContent() int {
	n := 0
	for _, p := range m.PageTexts {
		if p.HasContent {
			n++
		}
	}
	return n
}

// HasContent reports whether any unit carried text.
func (m DocumentMetadata) HasContent() bool {
	return m.PagesWithContent() > 0
}

// ExtractionResult is the product of one successful extraction attempt.
type ExtractionResult struct {
	Text     string
	Metadata DocumentMetadata
}

// CharCount returns the rune count summed over all units.
func (r *ExtractionResult) CharCount() int {
	n := 0
	for _, p := range r.Metadata.PageTexts {
		n += p.CharCount
	}
	return n
}

// Validation is the answer of Extractor.Validate.
type Validation struct {
	Valid bool   `json:"valid"`
	Pages int    `json:"pages,omitempty"`
	Error string `json:"error,omitempty"`
}

// PageSize is a page's media box in PDF points.
type PageSize struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DocumentInfo is the metadata-only view returned by Extractor.Describe.
type DocumentInfo struct {
	Filename  string            `json:"filename"`
	Pages     int               `json:"pages"`
	Metadata  map[string]string `json:"metadata"`
	Encrypted bool              `json:"encrypted"`
	PageSizes []PageSize        `json:"page_sizes"`
}

// Outcome is the per-file result of Converter.Convert.
type Outcome struct {
	Status         Status            `json:"status"`
	InputFile      string            `json:"input_file"`
	OutputFile     string            `json:"output_file,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Error          string            `json:"error,omitempty"`
	Metadata       *DocumentMetadata `json:"metadata,omitempty"`
	ProcessingTime float64           `json:"processing_time,omitempty"`
}

// BatchResult aggregates a ConvertBatch run. Files holds outcomes in
// completion order.
type BatchResult struct {
	Success   int       `json:"success"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Empty     int       `json:"empty"`
	Files     []Outcome `json:"files"`
	TotalTime float64   `json:"total_time"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Summary   *Summary  `json:"summary,omitempty"`
}

// Summary holds the derived figures printed by the CLI and written to the report.
type Summary struct {
	TotalFiles     int     `json:"total_files"`
	SuccessRate    float64 `json:"success_rate"`
	AvgTimePerFile float64 `json:"avg_time_per_file"`
}

// add folds one outcome into the counters and the file list.
func (r *BatchResult) add(o Outcome) {
	switch o.Status {
	case StatusSuccess:
		r.Success++
	case StatusSkipped:
		r.Skipped++
	case StatusEmpty:
		r.Empty++
	default:
		r.Failed++
	}
	r.Files = append(r.Files, o)
}

// Summarize computes the summary. Rates are zero when no file ran.
func (r *BatchResult) Summarize() Summary {
	n := len(r.Files)
	s := Summary{TotalFiles: n}
	if n > 0 {
		s.SuccessRate = float64(r.Success) / float64(n) * 100
		s.AvgTimePerFile = r.TotalTime / float64(n)
	}
	return s
}

// FailedFiles returns the error outcomes in completion order.
func (r *BatchResult) FailedFiles() []Outcome {
	var out []Outcome
	for _, o := range r.Files {
		if o.Status == StatusError {
			out = append(out, o)
		}
	}
	return out
}
