package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/pdfconv"
	"github.com/markdave123-py/docchat/internal/models"
)

const pdfContentType = "application/pdf"

// ProcessingStats summarises one processed upload.
type ProcessingStats struct {
	TotalPages       int   `json:"total_pages"`
	PagesWithContent int   `json:"pages_with_content"`
	CharCount        int   `json:"char_count"`
	FileSizeBytes    int64 `json:"file_size_bytes"`
	ChunksCreated    int   `json:"chunks_created"`
}

// UploadResult is the outcome of a successful ProcessPDF.
type UploadResult struct {
	FileID           string                `json:"file_id"`
	OriginalFilename string                `json:"original_filename"`
	StorageURL       string                `json:"storage_url,omitempty"`
	Stats            ProcessingStats       `json:"processing_stats"`
	Index            *core.IndexResult     `json:"vector_store_result"`
	PDFInfo          *pdfconv.DocumentInfo `json:"pdf_info"`
}

// UploadResponse is the per-file body of the upload endpoints.
type UploadResponse struct {
	Success         bool              `json:"success"`
	Message         string            `json:"message"`
	FileID          string            `json:"file_id,omitempty"`
	ProcessingStats *ProcessingStats  `json:"processing_stats,omitempty"`
	Index           *core.IndexResult `json:"vector_store_result,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// UploadFile is one file of a batch upload.
type UploadFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// SearchResult is the body of the upload search endpoint.
type SearchResult struct {
	Query   string           `json:"query"`
	Results []models.Passage `json:"results"`
}

type UploadService struct {
	extractor *pdfconv.Extractor
	indexer   core.Indexer
	retriever core.Retriever
	docs      *DocumentService
	uploadDir string
	maxBatch  int
	logger    *slog.Logger
}

// NewUploadService creates uploadDir if needed.
func NewUploadService(extractor *pdfconv.Extractor, indexer core.Indexer, retriever core.Retriever, docs *DocumentService, uploadDir string, maxBatch int, logger *slog.Logger) (*UploadService, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if maxBatch <= 0 {
		maxBatch = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{
		extractor: extractor, indexer: indexer, retriever: retriever, docs: docs,
		uploadDir: uploadDir, maxBatch: maxBatch, logger: logger,
	}, nil
}

func isPDFName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// ProcessPDF validates, converts and indexes one uploaded PDF. The uploaded
// bytes only live in uploadDir while the call runs.
func (s *UploadService) ProcessPDF(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || !isPDFName(name) {
		return nil, fmt.Errorf("%w: %q", ErrNotPDF, filename)
	}
	fileID := uuid.NewString()
	logCtx := s.logger.With("file_id", fileID, "filename", name)

	path := filepath.Join(s.uploadDir, fileID+"_"+name)
	size, err := saveUpload(path, r)
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logCtx.Warn("remove temp upload failed", "path", path, "error", rmErr)
		}
	}()
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	logCtx.Info("upload saved", "bytes", size)

	if v := s.extractor.Validate(path); !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPDF, v.Error)
	}
	info, err := s.extractor.Describe(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	info.Filename = name

	res, err := s.extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("%w: conversion failed: %v", ErrInvalidPDF, err)
	}
	if !res.Metadata.HasContent() {
		return nil, ErrNoText
	}
	stats := ProcessingStats{
		TotalPages:       res.Metadata.TotalPages,
		PagesWithContent: res.Metadata.PagesWithContent(),
		CharCount:        res.CharCount(),
		FileSizeBytes:    size,
	}
	logCtx.Info("text extracted", "chars", stats.CharCount, "pages_with_content", stats.PagesWithContent)

	url, err := s.docs.Archive(ctx, fileID, name, pdfContentType, path)
	if err != nil {
		return nil, fmt.Errorf("archive original: %w", err)
	}

	doc := &models.Document{
		ID:          fileID,
		FileName:    name,
		StorageURL:  url,
		ContentType: pdfContentType,
		Status:      models.StatusProcessing,
		Pages:       stats.TotalPages,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	idx, err := s.indexer.IndexText(ctx, doc, res.Text)
	if err != nil {
		if stErr := s.docs.SetStatus(ctx, fileID, models.StatusFailed); stErr != nil {
			logCtx.Error("mark document failed", "error", stErr)
		}
		return nil, fmt.Errorf("index document: %w", err)
	}
	if idx.FileID != "" && idx.FileID != fileID {
		if err := s.docs.SetIndexRef(ctx, fileID, idx.FileID); err != nil {
			return nil, fmt.Errorf("record index ref: %w", err)
		}
	}
	if err := s.docs.SetStatus(ctx, fileID, models.StatusReady); err != nil {
		return nil, fmt.Errorf("mark document ready: %w", err)
	}
	stats.ChunksCreated = idx.Chunks

	logCtx.Info("upload indexed", "chunks", idx.Chunks, "index_ref", idx.FileID)
	return &UploadResult{
		FileID:           fileID,
		OriginalFilename: name,
		StorageURL:       url,
		Stats:            stats,
		Index:            idx,
		PDFInfo:          info,
	}, nil
}

func saveUpload(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// ProcessBatch checks every name before processing anything, then handles
// the files concurrently. Per-file failures are reported in the matching
// response, never as the returned error.
func (s *UploadService) ProcessBatch(ctx context.Context, files []UploadFile) ([]UploadResponse, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if len(files) > s.maxBatch {
		return nil, fmt.Errorf("%w: at most %d per request, got %d", ErrTooManyFiles, s.maxBatch, len(files))
	}
	for _, f := range files {
		if !isPDFName(f.Name) {
			return nil, fmt.Errorf("%w: %q", ErrNotPDF, f.Name)
		}
	}

	out := make([]UploadResponse, len(files))
	var g errgroup.Group
	g.SetLimit(s.maxBatch)
	for i, f := range files {
		g.Go(func() error {
			out[i] = s.processOne(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, r := range out {
		if r.Success {
			ok++
		}
	}
	s.logger.Info("batch upload finished", "files", len(files), "succeeded", ok, "failed", len(files)-ok)
	return out, nil
}

func (s *UploadService) processOne(ctx context.Context, f UploadFile) UploadResponse {
	rc, err := f.Open()
	if err != nil {
		return UploadResponse{Message: fmt.Sprintf("could not read '%s'", f.Name), Error: err.Error()}
	}
	defer rc.Close()

	res, err := s.ProcessPDF(ctx, f.Name, rc)
	if err != nil {
		s.logger.Error("batch file failed", "filename", f.Name, "error", err)
		return UploadResponse{Message: fmt.Sprintf("failed to process '%s'", f.Name), Error: err.Error()}
	}
	return res.Response()
}

// Response converts a result into the endpoint body.
func (r *UploadResult) Response() UploadResponse {
	stats := r.Stats
	return UploadResponse{
		Success:         true,
		Message:         fmt.Sprintf("file '%s' processed and indexed", r.OriginalFilename),
		FileID:          r.FileID,
		ProcessingStats: &stats,
		Index:           r.Index,
	}
}

func (s *UploadService) Info(ctx context.Context) (*core.IndexStats, error) {
	return s.indexer.Info(ctx)
}

func (s *UploadService) Search(ctx context.Context, query string, k int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	passages, err := s.retriever.Retrieve(ctx, query, k)
	if errors.Is(err, core.ErrIndexNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	if passages == nil {
		passages = []models.Passage{}
	}
	return &SearchResult{Query: query, Results: passages}, nil
}

// Delete removes an uploaded document from the index, the archive and the
// document table. Unknown ids give core.ErrDocumentNotFound.
func (s *UploadService) Delete(ctx context.Context, fileID string) error {
	doc, err := s.docs.Get(ctx, fileID)
	if err != nil {
		return err
	}
	ref := doc.IndexRef
	if ref == "" {
		ref = doc.ID
	}
	if err := s.indexer.RemoveDocument(ctx, ref); err != nil {
		return fmt.Errorf("remove from index: %w", err)
	}
	if err := s.docs.Delete(ctx, doc); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.logger.Info("upload deleted", "file_id", fileID)
	return nil
}
