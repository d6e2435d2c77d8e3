package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// FileResult reports one ingested source file.
type FileResult struct {
	Path       string `json:"path"`
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
}

// DirResult aggregates IngestDir.
type DirResult struct {
	Files    []FileResult  `json:"files"`
	Chunks   int           `json:"chunks"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// IndexText chunks, embeds and stores text already extracted by the caller.
// Earlier chunks of the same document are replaced.
func (i *DocumentIngestor) IndexText(ctx context.Context, doc *models.Document, text string) (*core.IndexResult, error) {
	if _, err := i.store.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("clear previous chunks: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	fragCh := streamText(gctx, g, text)
	n, err := i.run(gctx, g, doc, fragCh)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrEmptyDocument
	}
	return &core.IndexResult{FileID: doc.ID, Chunks: n}, nil
}

func (i *DocumentIngestor) RemoveDocument(ctx context.Context, id string) error {
	n, err := i.store.DeleteByDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	i.logger.Info("removed document from index", "document_id", id, "chunks", n)
	return nil
}

func (i *DocumentIngestor) Info(ctx context.Context) (*core.IndexStats, error) {
	return i.store.Stats(ctx)
}

// run wires fragments -> chunks -> embed + persist inside g and waits.
func (i *DocumentIngestor) run(ctx context.Context, g *errgroup.Group, doc *models.Document, frags <-chan string) (int, error) {
	chunkCh := i.streamChunk(ctx, g, frags, i.cfg.TargetTokens, i.cfg.OverlapTokens)

	var stored int
	g.Go(func() error {
		n, err := i.embedAndPersist(ctx, doc, chunkCh, i.cfg.BatchSize)
		stored = n
		return err
	})

	// Wait for all stages. Any error cancels the rest.
	if err := g.Wait(); err != nil {
		return stored, err
	}
	return stored, nil
}

// IngestFile extracts, chunks, embeds and stores one file, keeping its
// document record's status current.
func (i *DocumentIngestor) IngestFile(ctx context.Context, path string) (*FileResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	doc := &models.Document{
		ID:          DocumentID(abs),
		FileName:    filepath.Base(abs),
		ContentType: contentType(abs),
		Status:      models.StatusProcessing,
	}
	res := &FileResult{Path: abs, DocumentID: doc.ID}
	logCtx := i.logger.With("file", doc.FileName, "document_id", doc.ID)

	if err := i.ensureDocument(ctx, doc); err != nil {
		return res, err
	}
	if _, err := i.store.DeleteByDocument(ctx, doc.ID); err != nil {
		return res, i.fail(ctx, doc.ID, fmt.Errorf("clear previous chunks: %w", err))
	}

	g, gctx := errgroup.WithContext(ctx)
	fragCh, err := i.extractor.ExtractText(gctx, g, abs)
	if err != nil {
		_ = g.Wait()
		return res, i.fail(ctx, doc.ID, err)
	}
	n, err := i.run(gctx, g, doc, fragCh)
	res.Chunks = n
	if err != nil {
		logCtx.Error("ingestion failed", "error", err)
		return res, i.fail(ctx, doc.ID, err)
	}
	if n == 0 {
		return res, i.fail(ctx, doc.ID, fmt.Errorf("%s: %w", doc.FileName, ErrEmptyDocument))
	}

	if err := i.docs.UpdateDocumentStatus(ctx, doc.ID, models.StatusReady); err != nil {
		return res, err
	}
	logCtx.Info("document ingested", "chunks", n)
	return res, nil
}

// IngestDir ingests every regular file directly inside dir, Workers at a
// time. One failing file never stops the others.
func (i *DocumentIngestor) IngestDir(ctx context.Context, dir string) (*DirResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read docs dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	start := time.Now()
	out := &DirResult{Files: make([]FileResult, 0, len(paths))}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(i.cfg.Workers)
	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fr, err := i.IngestFile(ctx, p)
			if fr == nil {
				fr = &FileResult{Path: p}
			}
			if err != nil {
				fr.Error = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			out.Files = append(out.Files, *fr)
			if err != nil {
				out.Failed++
			} else {
				out.Chunks += fr.Chunks
			}
			return nil
		})
	}
	_ = g.Wait()

	out.Duration = time.Since(start)
	i.logger.Info("directory ingested", "dir", dir, "files", len(out.Files), "chunks", out.Chunks, "failed", out.Failed)
	return out, ctx.Err()
}

func (i *DocumentIngestor) ensureDocument(ctx context.Context, doc *models.Document) error {
	_, err := i.docs.GetDocumentByID(ctx, doc.ID)
	switch {
	case errors.Is(err, core.ErrDocumentNotFound):
		return i.docs.CreateDocument(ctx, doc)
	case err != nil:
		return err
	default:
		return i.docs.UpdateDocumentStatus(ctx, doc.ID, models.StatusProcessing)
	}
}

func (i *DocumentIngestor) fail(ctx context.Context, docID string, cause error) error {
	if err := i.docs.UpdateDocumentStatus(ctx, docID, models.StatusFailed); err != nil {
		i.logger.Warn("could not mark document failed", "document_id", docID, "error", err)
	}
	return cause
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
