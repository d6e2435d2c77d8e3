package services

import (
	"context"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/markdave123-py/docchat/internal/core"
	objectclient "github.com/markdave123-py/docchat/internal/core/object-client"
	"github.com/markdave123-py/docchat/internal/models"
)

// DocumentService keeps document records and, when storage is configured,
// archives the uploaded originals.
type DocumentService struct {
	db      core.DocumentStore
	storage core.ObjectClient
	bucket  string
	logger  *slog.Logger
}

// NewDocumentService accepts a nil storage; archiving is then skipped.
func NewDocumentService(db core.DocumentStore, storage core.ObjectClient, bucket string, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{db: db, storage: storage, bucket: bucket, logger: logger}
}

// Archive uploads the file at localPath and returns its URL, or "" when no
// storage is configured.
func (s *DocumentService) Archive(ctx context.Context, docID, filename, contentType, localPath string) (string, error) {
	if s.storage == nil {
		return "", nil
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.storage.UploadFile(ctx, s.bucket, objectKey(docID, filename), f, contentType)
}

func (s *DocumentService) Create(ctx context.Context, doc *models.Document) error {
	return s.db.CreateDocument(ctx, doc)
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context) ([]models.Document, error) {
	return s.db.ListDocuments(ctx)
}

func (s *DocumentService) SetStatus(ctx context.Context, docID string, status string) error {
	return s.db.UpdateDocumentStatus(ctx, docID, status)
}

func (s *DocumentService) SetIndexRef(ctx context.Context, docID, ref string) error {
	return s.db.SetDocumentIndexRef(ctx, docID, ref)
}

// Delete removes the record and its archived original. A failed object
// delete is logged, not returned.
func (s *DocumentService) Delete(ctx context.Context, doc *models.Document) error {
	if s.storage != nil && doc.StorageURL != "" {
		bucket, key := objectclient.KeyFromURL(doc.StorageURL)
		if err := s.storage.DeleteFile(ctx, bucket, key); err != nil {
			s.logger.Warn("delete archived original failed", "document_id", doc.ID, "url", doc.StorageURL, "error", err)
		}
	}
	return s.db.DeleteDocument(ctx, doc.ID)
}

// objectKey creates a consistent S3 key layout.
func objectKey(docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("documents", docID, filename)
}
