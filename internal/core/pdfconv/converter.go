package pdfconv

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultWorkers is the pool size used when Options.Workers is not positive.
const DefaultWorkers = 4

// DefaultPattern selects the files ConvertBatch picks up.
const DefaultPattern = "*.pdf"

// Options tunes batch behaviour.
type Options struct {
	Workers  int
	Parallel bool
	Pattern  string
}

// Converter converts PDFs to text files, skipping inputs the cache says are
// already done.
type Converter struct {
	extractor *Extractor
	cache     *Cache
	logger    *slog.Logger
	opts      Options
}

// NewConverter wires an extractor and a loaded cache.
func NewConverter(extractor *Extractor, cache *Cache, logger *slog.Logger, opts Options) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	return &Converter{extractor: extractor, cache: cache, logger: logger, opts: opts}
}

// OutputPath is where Convert writes the text for inputPath.
func (c *Converter) OutputPath(inputPath, outputDir string) string {
	return filepath.Join(outputDir, stem(inputPath)+c.extractor.Format().Ext())
}

// MetadataPath is where Convert writes the metadata JSON for inputPath.
func MetadataPath(inputPath, outputDir string) string {
	return filepath.Join(outputDir, stem(inputPath)+"_metadata.json")
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Convert never fails: every problem, including a panic in the PDF parser,
// is reported through the returned Outcome.
func (c *Converter) Convert(inputPath, outputDir string) (out Outcome) {
	outputFile := c.OutputPath(inputPath, outputDir)
	logCtx := c.logger.With("file", filepath.Base(inputPath))

	defer func() {
		if r := recover(); r != nil {
			logCtx.Error("conversion panicked", "panic", r)
			out = Outcome{
				Status:     StatusError,
				InputFile:  inputPath,
				OutputFile: outputFile,
				Error:      fmt.Sprint(r),
			}
		}
	}()

	fail := func(err error) Outcome {
		logCtx.Error("conversion failed", "error", err)
		return Outcome{Status: StatusError, InputFile: inputPath, OutputFile: outputFile, Error: err.Error()}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fail(fmt.Errorf("create output dir: %w", err))
	}

	if c.cache.IsProcessed(inputPath, outputFile) {
		logCtx.Info("skipping, already processed")
		return Outcome{
			Status:     StatusSkipped,
			InputFile:  inputPath,
			OutputFile: outputFile,
			Reason:     ReasonAlreadyProcessed,
		}
	}

	logCtx.Info("converting")
	start := time.Now()

	res, err := c.extractor.Extract(inputPath)
	if err != nil {
		return fail(err)
	}

	if !res.Metadata.HasContent() {
		logCtx.Warn("no text found", "pages", res.Metadata.TotalPages)
		return Outcome{
			Status:     StatusEmpty,
			InputFile:  inputPath,
			OutputFile: outputFile,
			Metadata:   &res.Metadata,
		}
	}

	if err := os.WriteFile(outputFile, []byte(res.Text), 0o644); err != nil {
		return fail(fmt.Errorf("write text: %w", err))
	}
	metaJSON, err := json.MarshalIndent(res.Metadata, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("encode metadata: %w", err))
	}
	if err := os.WriteFile(MetadataPath(inputPath, outputDir), metaJSON, 0o644); err != nil {
		return fail(fmt.Errorf("write metadata: %w", err))
	}

	elapsed := time.Since(start).Seconds()

	fp, err := Fingerprint(inputPath)
	if err != nil {
		return fail(fmt.Errorf("fingerprint input: %w", err))
	}
	c.cache.Record(inputPath, CacheEntry{
		Hash:           fp,
		ProcessedAt:    time.Now().Format(time.RFC3339Nano),
		OutputFile:     outputFile,
		ProcessingTime: elapsed,
		Pages:          res.Metadata.TotalPages,
	})

	logCtx.Info("converted", "pages", res.Metadata.TotalPages, "seconds", fmt.Sprintf("%.2f", elapsed))
	return Outcome{
		Status:         StatusSuccess,
		InputFile:      inputPath,
		OutputFile:     outputFile,
		Metadata:       &res.Metadata,
		ProcessingTime: elapsed,
	}
}
