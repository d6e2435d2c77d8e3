package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

const maxUploadNameLen = 100

// OpenAIStore indexes whole documents in a hosted OpenAI vector store.
// Chunking and embedding happen on the OpenAI side.
type OpenAIStore struct {
	client  openai.Client
	storeID string
	logger  *slog.Logger
}

var (
	_ core.Indexer   = (*OpenAIStore)(nil)
	_ core.Retriever = (*OpenAIStore)(nil)
)

func NewOpenAIStore(storeID string, logger *slog.Logger, opts ...option.RequestOption) (*OpenAIStore, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, errors.New("vector store id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIStore{
		client:  openai.NewClient(opts...),
		storeID: storeID,
		logger:  logger.With("vector_store_id", storeID),
	}, nil
}

// IndexText uploads text as one file and attaches it to the store. The
// returned FileID is the OpenAI file id, needed later by RemoveDocument.
func (s *OpenAIStore) IndexText(ctx context.Context, doc *models.Document, text string) (*core.IndexResult, error) {
	name := SafeUploadName(doc.FileName)
	body := fmt.Sprintf("# %s\n# Source: %s\n# Characters: %d\n\n%s", name, doc.FileName, len([]rune(text)), text)

	s.logger.Info("uploading document to hosted store", "file", doc.FileName, "upload_name", name)
	f, err := s.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(strings.NewReader(body), name, "text/plain"),
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	vsFile, err := s.client.VectorStores.Files.New(ctx, s.storeID, openai.VectorStoreFileNewParams{
		FileID: f.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("add file to vector store: %w", err)
	}
	s.logger.Info("file added to hosted store", "file_id", f.ID, "status", vsFile.Status)

	return &core.IndexResult{FileID: f.ID, Chunks: 1}, nil
}

func (s *OpenAIStore) Retrieve(ctx context.Context, query string, k int) ([]models.Passage, error) {
	if k <= 0 {
		k = 5
	}
	page, err := s.client.VectorStores.Search(ctx, s.storeID, openai.VectorStoreSearchParams{
		Query:         openai.VectorStoreSearchParamsQueryUnion{OfString: openai.String(query)},
		MaxNumResults: openai.Int(int64(k)),
	})
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}

	out := make([]models.Passage, 0, len(page.Data))
	for _, r := range page.Data {
		var b strings.Builder
		for _, c := range r.Content {
			if c.Type != "text" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(c.Text)
		}
		out = append(out, models.Passage{DocumentID: r.FileID, Source: r.Filename, Text: b.String(), Score: r.Score})
	}
	return out, nil
}

// RemoveDocument detaches the file from the store and deletes it.
func (s *OpenAIStore) RemoveDocument(ctx context.Context, fileID string) error {
	if _, err := s.client.VectorStores.Files.Delete(ctx, s.storeID, fileID); err != nil {
		return fmt.Errorf("remove file from vector store: %w", err)
	}
	if _, err := s.client.Files.Delete(ctx, fileID); err != nil {
		// The store no longer references the file; an orphaned upload is only logged.
		s.logger.Warn("delete uploaded file failed", "file_id", fileID, "error", err)
	}
	s.logger.Info("file removed from hosted store", "file_id", fileID)
	return nil
}

func (s *OpenAIStore) Info(ctx context.Context) (*core.IndexStats, error) {
	vs, err := s.client.VectorStores.Get(ctx, s.storeID)
	if err != nil {
		return nil, fmt.Errorf("get vector store: %w", err)
	}
	return &core.IndexStats{
		Backend:   config.BackendOpenAI,
		Documents: int(vs.FileCounts.Total),
		Chunks:    int(vs.FileCounts.Completed),
		Extra: map[string]any{
			"vector_store_id": vs.ID,
			"name":            vs.Name,
			"status":          string(vs.Status),
			"usage_bytes":     vs.UsageBytes,
			"created_at":      time.Unix(vs.CreatedAt, 0).UTC(),
			"in_progress":     vs.FileCounts.InProgress,
			"failed":          vs.FileCounts.Failed,
		},
	}, nil
}

// SafeUploadName turns an arbitrary upload name into an ASCII file name the
// Files API accepts, ending in .txt.
func SafeUploadName(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range stem {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '.'
		if !ok {
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}
	clean := strings.Trim(b.String(), "_")
	if len(clean) > maxUploadNameLen {
		clean = clean[:maxUploadNameLen]
	}
	if clean == "" || clean == "." {
		clean = "document_" + time.Now().UTC().Format("20060102_150405")
	}
	return clean + ".txt"
}
