package pdfconv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Discover lists the regular files in dir matching pattern, without
// descending into subdirectories, in lexical order.
func Discover(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	files := matches[:0]
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// ConvertBatch converts every matching file in inputDir. Only a missing or
// unreadable input directory is returned as an error; per-file failures land
// in the result. Outcomes are recorded in completion order. Once ctx is done
// no further files are started. The cache is saved once, after all workers
// have finished.
func (c *Converter) ConvertBatch(ctx context.Context, inputDir, outputDir string) (*BatchResult, error) {
	fi, err := os.Stat(inputDir)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", inputDir)
	}

	files, err := Discover(inputDir, c.opts.Pattern)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{StartTime: time.Now(), Files: []Outcome{}}
	if len(files) == 0 {
		c.logger.Warn("no input files found", "dir", inputDir, "pattern", c.opts.Pattern)
		result.EndTime = result.StartTime
		s := result.Summarize()
		result.Summary = &s
		return result, nil
	}

	c.logger.Info("starting batch", "files", len(files), "parallel", c.opts.Parallel, "workers", c.opts.Workers)

	var mu sync.Mutex
	collect := func(o Outcome) {
		mu.Lock()
		result.add(o)
		mu.Unlock()
	}
	claimed := outputClaims(files)
	convert := func(f string) Outcome {
		if first, ok := claimed[f]; ok {
			c.logger.Warn("output name collision, file not converted", "file", f, "claimed_by", first)
			return Outcome{
				Status:    StatusError,
				InputFile: f,
				Error:     fmt.Sprintf("output name collides with %s", filepath.Base(first)),
			}
		}
		return c.Convert(f, outputDir)
	}

	if c.opts.Parallel && len(files) > 1 {
		var g errgroup.Group
		g.SetLimit(c.opts.Workers)
		for _, f := range files {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				collect(convert(f))
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, f := range files {
			if ctx.Err() != nil {
				break
			}
			collect(convert(f))
		}
	}

	if err := ctx.Err(); err != nil {
		c.logger.Warn("batch interrupted", "started", len(result.Files), "total", len(files), "error", err)
	}

	result.EndTime = time.Now()
	result.TotalTime = result.EndTime.Sub(result.StartTime).Seconds()
	_ = c.cache.Save()

	s := result.Summarize()
	result.Summary = &s

	c.logger.Info("batch finished",
		"success", result.Success,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"empty", result.Empty,
		"seconds", fmt.Sprintf("%.2f", result.TotalTime),
	)
	return result, nil
}

// outputClaims maps each file whose output stem, compared case-insensitively,
// was already taken by an earlier file in files to that earlier file.
func outputClaims(files []string) map[string]string {
	owners := make(map[string]string, len(files))
	lost := make(map[string]string)
	for _, f := range files {
		key := strings.ToLower(stem(f))
		if first, ok := owners[key]; ok {
			lost[f] = first
			continue
		}
		owners[key] = f
	}
	return lost
}
