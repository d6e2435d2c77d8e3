package pdfconv

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DescribePageLimit caps how many leading pages Describe reports sizes for.
const DescribePageLimit = 5

var divider = strings.Repeat("=", 50)

// ErrNoPages marks a document that parsed but has zero pages.
var ErrNoPages = errors.New("pdf file contains no pages")

// ExtractionError is returned when a document cannot be opened or read.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor turns one PDF into normalized text with per-page markers.
type Extractor struct {
	backend Backend
	format  Format
}

// NewExtractor returns an extractor that emits markers in the given format.
func NewExtractor(backend Backend, format Format) *Extractor {
	if format == "" {
		format = FormatText
	}
	return &Extractor{backend: backend, format: format}
}

// Format is the marker style this extractor writes.
func (e *Extractor) Format() Format { return e.format }

// Extract reads every page in order. The returned text holds each page's
// normalized text preceded by its marker; the metadata carries the raw
// per-page character counts.
func (e *Extractor) Extract(path string) (*ExtractionResult, error) {
	doc, err := e.backend.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer doc.Close()

	info := doc.Info()
	n := doc.NumPages()
	meta := DocumentMetadata{
		TotalPages:   n,
		Title:        info["Title"],
		Author:       info["Author"],
		CreationDate: info["CreationDate"],
		PageTexts:    make([]PageStat, 0, n),
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	for page := 1; page <= n; page++ {
		raw, err := doc.PageText(page)
		if err != nil {
			return nil, &ExtractionError{Path: path, Err: err}
		}
		meta.PageTexts = append(meta.PageTexts, PageStat{
			Page:       page,
			CharCount:  utf8.RuneCountInString(raw),
			HasContent: strings.TrimSpace(raw) != "",
		})
		b.WriteString(e.marker(stem, page))
		b.WriteString(Normalize(raw))
	}

	return &ExtractionResult{Text: b.String(), Metadata: meta}, nil
}

func (e *Extractor) marker(stem string, page int) string {
	if e.format == FormatMarkdown {
		if page == 1 {
			return fmt.Sprintf("# %s\n\n## Page 1\n\n", stem)
		}
		return fmt.Sprintf("\n\n---\n\n## Page %d\n\n", page)
	}
	m := fmt.Sprintf("%s\nPage %d\n%s\n\n", divider, page, divider)
	if page > 1 {
		m = "\n\n" + m
	}
	return m
}

// Validate never returns an error: unreadable or page-less files come back
// as Valid=false with the reason.
func (e *Extractor) Validate(path string) Validation {
	n, err := e.backend.PageCount(path)
	if err != nil {
		return Validation{Error: fmt.Sprintf("invalid PDF file: %v", err)}
	}
	if n <= 0 {
		return Validation{Error: ErrNoPages.Error()}
	}
	return Validation{Valid: true, Pages: n}
}

// Describe returns document-level metadata without extracting text.
func (e *Extractor) Describe(path string) (*DocumentInfo, error) {
	doc, err := e.backend.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer doc.Close()

	info := doc.Info()
	out := &DocumentInfo{
		Filename: filepath.Base(path),
		Pages:    doc.NumPages(),
		Metadata: map[string]string{
			"title":             info["Title"],
			"author":            info["Author"],
			"subject":           info["Subject"],
			"creator":           info["Creator"],
			"producer":          info["Producer"],
			"creation_date":     info["CreationDate"],
			"modification_date": info["ModDate"],
		},
		Encrypted: doc.Encrypted(),
	}

	sizes, err := e.backend.PageSizes(path, DescribePageLimit)
	if err != nil {
		return nil, fmt.Errorf("read page sizes of %s: %w", out.Filename, err)
	}
	out.PageSizes = sizes
	return out, nil
}
