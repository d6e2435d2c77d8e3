package core

import (
	"context"
	"errors"
	"io"

	"github.com/markdave123-py/docchat/internal/models"
)

// ErrIndexNotFound is returned by searches against an index that was never built.
var ErrIndexNotFound = errors.New("index not found, run the ingest command first")

// ErrDocumentNotFound is returned when a document id is unknown.
var ErrDocumentNotFound = errors.New("document not found")

// MessageStore persists conversation threads.
type MessageStore interface {
	AddMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, threadID string) ([]models.Message, error)
}

// DocumentStore tracks indexed source documents.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error
	SetDocumentIndexRef(ctx context.Context, id string, ref string) error
	DeleteDocument(ctx context.Context, id string) error
}

// DbClient is the relational store behind the API.
type DbClient interface {
	MessageStore
	DocumentStore
	Close() error
}

// IndexStats summarises a vector index.
type IndexStats struct {
	Backend   string         `json:"backend"`
	Documents int            `json:"documents"`
	Chunks    int            `json:"chunks"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// VectorStore holds embedded chunks and answers nearest-neighbour queries.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []models.DocumentChunk) error
	Search(ctx context.Context, query []float32, k int) ([]models.Passage, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Stats(ctx context.Context) (*IndexStats, error)
}

// Retriever returns the passages most relevant to a free-text query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.Passage, error)
}

// IndexResult describes what IndexText stored.
type IndexResult struct {
	FileID string `json:"file_id"`
	Chunks int    `json:"chunks_created"`
}

// Indexer adds and removes whole documents from the retrieval index.
type Indexer interface {
	IndexText(ctx context.Context, doc *models.Document, text string) (*IndexResult, error)
	RemoveDocument(ctx context.Context, id string) error
	Info(ctx context.Context) (*IndexStats, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
