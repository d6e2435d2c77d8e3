package pdfconv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	ReportJSONName = "conversion_report.json"
	ReportTextName = "conversion_report.txt"
)

// GenerateReport writes the machine-readable and the human-readable batch
// report into outputDir.
func GenerateReport(result *BatchResult, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	s := result.Summarize()
	result.Summary = &s

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, ReportJSONName), data, 0o644); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}

	if err := os.WriteFile(filepath.Join(outputDir, ReportTextName), []byte(FormatReport(result)), 0o644); err != nil {
		return fmt.Errorf("write text report: %w", err)
	}
	return nil
}

// FormatReport renders the human-readable report.
func FormatReport(result *BatchResult) string {
	s := result.Summarize()

	var b strings.Builder
	b.WriteString("PDF CONVERSION REPORT\n")
	b.WriteString(divider + "\n\n")
	fmt.Fprintf(&b, "Date: %s\n", result.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Total time: %.2f seconds\n", result.TotalTime)
	fmt.Fprintf(&b, "Files processed: %d\n", s.TotalFiles)
	fmt.Fprintf(&b, "Success: %d\n", result.Success)
	fmt.Fprintf(&b, "Errors: %d\n", result.Failed)
	fmt.Fprintf(&b, "Skipped: %d\n", result.Skipped)
	fmt.Fprintf(&b, "Empty: %d\n", result.Empty)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n\n", s.SuccessRate)

	if result.Failed > 0 {
		b.WriteString("FAILED FILES:\n")
		b.WriteString(strings.Repeat("-", 30) + "\n")
		for _, o := range result.FailedFiles() {
			msg := o.Error
			if msg == "" {
				msg = "unknown error"
			}
			fmt.Fprintf(&b, "x %s: %s\n", filepath.Base(o.InputFile), msg)
		}
		b.WriteString("\n")
	}
	return b.String()
}
