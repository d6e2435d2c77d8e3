package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/services"
)

const maxUploadMemory = 32 << 20

// Uploader is the part of services.UploadService the handler needs.
type Uploader interface {
	ProcessPDF(ctx context.Context, filename string, r io.Reader) (*services.UploadResult, error)
	ProcessBatch(ctx context.Context, files []services.UploadFile) ([]services.UploadResponse, error)
	Info(ctx context.Context) (*core.IndexStats, error)
	Search(ctx context.Context, query string, k int) (*services.SearchResult, error)
	Delete(ctx context.Context, fileID string) error
}

type DocumentHandler struct {
	uploads Uploader
	topK    int
	logger  *slog.Logger
}

func NewDocumentHandler(uploads Uploader, topK int, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{uploads: uploads, topK: topK, logger: logger}
}

// uploadStatus maps service errors onto HTTP status codes.
func uploadStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotPDF),
		errors.Is(err, services.ErrNoFiles),
		errors.Is(err, services.ErrTooManyFiles),
		errors.Is(err, services.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidPDF), errors.Is(err, services.ErrNoText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrDocumentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// UploadPDF converts and indexes the multipart "file" field.
func (h *DocumentHandler) UploadPDF(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "file name not provided")
		return
	}

	h.logger.Info("upload received", "filename", header.Filename, "bytes", header.Size)
	res, err := h.uploads.ProcessPDF(r.Context(), header.Filename, file)
	if err != nil {
		status := uploadStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("upload failed", "filename", header.Filename, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.Response())
}

// UploadBatch handles the multipart "files" field.
func (h *DocumentHandler) UploadBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	headers := r.MultipartForm.File["files"]
	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Filename == "" {
			writeError(w, http.StatusBadRequest, "one of the files has no name")
			return
		}
		files = append(files, services.UploadFile{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	out, err := h.uploads.ProcessBatch(r.Context(), files)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DocumentHandler) Info(w http.ResponseWriter, r *http.Request) {
	st, err := h.uploads.Info(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("index info: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Search takes the form fields "query" and optional "k".
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	k := h.topK
	if v := r.FormValue("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = n
	}
	res, err := h.uploads.Search(r.Context(), r.FormValue("query"), k)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DocumentHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")
	if err := h.uploads.Delete(r.Context(), fileID); err != nil {
		status := uploadStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("delete failed", "file_id", fileID, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": fmt.Sprintf("file %s deleted", fileID)})
}
