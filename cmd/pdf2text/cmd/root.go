package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docchat/internal/core/pdfconv"
)

type options struct {
	output     string
	format     string
	workers    int
	noParallel bool
	info       bool
	clearCache bool
	pattern    string
	cacheDir   string
	logFile    string
}

func defaultCacheDir() string {
	if dir := os.Getenv("PDF2TEXT_CACHE_DIR"); dir != "" {
		return dir
	}
	return "./pdf_cache"
}

// NewRootCmd builds the pdf2text command.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "pdf2text <input>",
		Short: "Convert PDF files to text or markdown",
		Long: `pdf2text extracts the text of a PDF file, or of every matching PDF in a
directory, into one output file per input plus a metadata JSON file.

Inputs already converted and unchanged since are skipped; the cache lives in
--cache-dir. Directory runs also write conversion_report.json and
conversion_report.txt into the output directory.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "./output", "output directory")
	f.StringVarP(&opts.format, "format", "f", "txt", "output format: txt or md")
	f.IntVarP(&opts.workers, "workers", "w", pdfconv.DefaultWorkers, "parallel workers for directory input")
	f.BoolVar(&opts.noParallel, "no-parallel", false, "convert files one at a time")
	f.BoolVar(&opts.info, "info", false, "print PDF information instead of converting")
	f.BoolVar(&opts.clearCache, "clear-cache", false, "delete the conversion cache and exit")
	f.StringVar(&opts.pattern, "pattern", pdfconv.DefaultPattern, "glob selecting files in a directory input")
	f.StringVar(&opts.cacheDir, "cache-dir", defaultCacheDir(), "directory holding the conversion cache")
	f.StringVar(&opts.logFile, "log-file", "pdf_conversion.log", "append logs to this file (empty disables)")
	return cmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(stderr io.Writer, logFile string) (*slog.Logger, func(), error) {
	if logFile == "" {
		return slog.New(slog.NewTextHandler(stderr, nil)), func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(stderr, f), nil))
	return logger, func() { _ = f.Close() }, nil
}

func run(ctx context.Context, stdout, stderr io.Writer, opts *options, input string) error {
	logger, closeLog, err := newLogger(stderr, opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	cache := pdfconv.NewCache(opts.cacheDir, logger)
	if opts.clearCache {
		if err := cache.Clear(); err != nil {
			return err
		}
		logger.Info("conversion cache cleared", "path", cache.Path())
		fmt.Fprintf(stdout, "cache cleared: %s\n", cache.Path())
		return nil
	}

	format, err := pdfconv.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	fi, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("input path: %w", err)
	}

	extractor := pdfconv.NewExtractor(pdfconv.NewPDFBackend(), format)
	if opts.info {
		return printInfo(stdout, extractor, input, fi.IsDir(), opts.pattern)
	}

	cache.Load()

	conv := pdfconv.NewConverter(extractor, cache, logger, pdfconv.Options{
		Workers:  opts.workers,
		Parallel: !opts.noParallel,
		Pattern:  opts.pattern,
	})

	if !fi.IsDir() {
		out := conv.Convert(input, opts.output)
		if err := cache.Save(); err != nil {
			logger.Warn("cache not saved", "error", err)
		}
		printOutcome(stdout, out)
		return nil
	}

	result, err := conv.ConvertBatch(ctx, input, opts.output)
	if err != nil {
		return err
	}
	if err := pdfconv.GenerateReport(result, opts.output); err != nil {
		return err
	}
	fmt.Fprint(stdout, pdfconv.FormatReport(result))
	return nil
}

func printOutcome(w io.Writer, o pdfconv.Outcome) {
	switch o.Status {
	case pdfconv.StatusSuccess:
		fmt.Fprintf(w, "converted %s -> %s (%.2fs)\n", o.InputFile, o.OutputFile, o.ProcessingTime)
	case pdfconv.StatusSkipped:
		fmt.Fprintf(w, "skipped %s: %s\n", o.InputFile, o.Reason)
	case pdfconv.StatusEmpty:
		fmt.Fprintf(w, "no text found in %s\n", o.InputFile)
	default:
		fmt.Fprintf(w, "failed %s: %s\n", o.InputFile, o.Error)
	}
}

func printInfo(w io.Writer, extractor *pdfconv.Extractor, input string, isDir bool, pattern string) error {
	files := []string{input}
	if isDir {
		var err error
		if files, err = pdfconv.Discover(input, pattern); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	var errs []error
	for _, f := range files {
		info, err := extractor.Describe(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := enc.Encode(info); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}
