package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/pdfconv"
)

var (
	_ core.DocumentExtractor = (*DocconvExtractor)(nil)
	_ core.DocumentExtractor = (*PDFExtractor)(nil)
	_ core.DocumentExtractor = (*RoutingExtractor)(nil)
)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	logger *slog.Logger
}

func NewDocconvExtractor(logger *slog.Logger) *DocconvExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocconvExtractor{logger: logger}
}

// ExtractText converts the file with docconv and streams its non-empty lines.
func (e *DocconvExtractor) ExtractText(ctx context.Context, g *errgroup.Group, path string) (<-chan string, error) {
	out := make(chan string, 32)

	g.Go(func() error {
		defer close(out)

		res, err := docconv.ConvertPath(path)
		if err != nil {
			e.logger.Error("docconv extraction failed", "file", filepath.Base(path), "error", err)
			return fmt.Errorf("docconv %s: %w", filepath.Base(path), err)
		}
		return emitLines(ctx, out, res.Body)
	})

	return out, nil
}

// PDFExtractor runs PDFs through the pdfconv extractor so ingested text
// carries the same page markers as converted files.
type PDFExtractor struct {
	extractor *pdfconv.Extractor
}

func NewPDFExtractor(extractor *pdfconv.Extractor) *PDFExtractor {
	return &PDFExtractor{extractor: extractor}
}

func (e *PDFExtractor) ExtractText(ctx context.Context, g *errgroup.Group, path string) (<-chan string, error) {
	out := make(chan string, 32)

	g.Go(func() error {
		defer close(out)

		res, err := e.extractor.Extract(path)
		if err != nil {
			return err
		}
		if !res.Metadata.HasContent() {
			return fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyDocument)
		}
		return emitLines(ctx, out, res.Text)
	})

	return out, nil
}

// RoutingExtractor sends .pdf files to the PDF extractor and everything
// else to the fallback.
type RoutingExtractor struct {
	pdf      core.DocumentExtractor
	fallback core.DocumentExtractor
}

func NewRoutingExtractor(pdf, fallback core.DocumentExtractor) *RoutingExtractor {
	return &RoutingExtractor{pdf: pdf, fallback: fallback}
}

func (e *RoutingExtractor) ExtractText(ctx context.Context, g *errgroup.Group, path string) (<-chan string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return e.pdf.ExtractText(ctx, g, path)
	}
	return e.fallback.ExtractText(ctx, g, path)
}

// emitLines splits text into trimmed non-empty lines and sends them to out.
func emitLines(ctx context.Context, out chan<- string, text string) error {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
