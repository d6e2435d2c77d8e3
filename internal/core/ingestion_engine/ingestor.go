package ingestion_engine

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/markdave123-py/docchat/internal/core"
)

// ErrEmptyDocument marks a source that produced no text to index.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// DocumentIngestor orchestrates the ingestion pipeline:
//
// docs:      persistence for document records.
// store:     vector store receiving embedded chunks.
// embedder:  embedding provider (Gemini/OpenAI/etc).
// extractor: turns a source file into text fragments.
// cfg:       runtime tuning knobs for the pipeline.
type DocumentIngestor struct {
	docs      core.DocumentStore
	store     core.VectorStore
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	cfg       IngestConfig
	logger    *slog.Logger
}

var _ core.Indexer = (*DocumentIngestor)(nil)

func NewDocumentIngestor(
	docs core.DocumentStore,
	store core.VectorStore,
	emb core.EmbeddingProvider,
	extractor core.DocumentExtractor,
	cfg IngestConfig,
	logger *slog.Logger,
) *DocumentIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentIngestor{
		docs: docs, store: store, embedder: emb, extractor: extractor,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// DocumentID derives a stable id from a file path so re-ingesting the same
// file replaces its chunks instead of duplicating them.
func DocumentID(absPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+absPath)).String()
}

func chunkID(docID string, pos int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID+"#"+strconv.Itoa(pos))).String()
}
