package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/markdave123-py/docchat/internal/core"
	db "github.com/markdave123-py/docchat/internal/core/database"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
	"github.com/markdave123-py/docchat/internal/core/pdfconv"
	"github.com/markdave123-py/docchat/internal/core/vectorindex"
	"github.com/markdave123-py/docchat/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type hashEmbedder struct{}

func (hashEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 4)
		for j, r := range t {
			v[j%4] += float32(r % 7)
		}
		v[3] += 1
		out[i] = v
	}
	return out, nil
}

// fakeLLM echoes a fixed reply and records the prompt it was given.
type fakeLLM struct {
	mu     sync.Mutex
	prompt []models.ChatMessage
	err    error
}

func (f *fakeLLM) Complete(_ context.Context, msgs []models.ChatMessage) (*models.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompt = msgs
	if f.err != nil {
		return nil, f.err
	}
	return &models.Completion{
		Text:  "  The answer.  ",
		Model: "fake",
		Usage: models.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	}, nil
}

type staticRetriever struct {
	passages []models.Passage
	err      error
}

func (r staticRetriever) Retrieve(context.Context, string, int) ([]models.Passage, error) {
	return r.passages, r.err
}

// memObjects is an in-memory core.ObjectClient.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = b
	return fmt.Sprintf("https://%s.s3.us-east-2.amazonaws.com/%s", bucket, key), nil
}

func (m *memObjects) DeleteFile(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *memObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

func (m *memObjects) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// fakePDFs serves pages by original file name; uploads are saved as
// "<uuid>_<name>" so the prefix is stripped before lookup.
type fakePDFs map[string][]string

var errNotAPDF = errors.New("header not found")

func (f fakePDFs) lookup(path string) ([]string, error) {
	base := filepath.Base(path)
	if _, name, ok := strings.Cut(base, "_"); ok {
		base = name
	}
	pages, ok := f[base]
	if !ok {
		return nil, errNotAPDF
	}
	return pages, nil
}

func (f fakePDFs) Open(path string) (pdfconv.Document, error) {
	pages, err := f.lookup(path)
	if err != nil {
		return nil, err
	}
	return fakeDoc(pages), nil
}

func (f fakePDFs) PageCount(path string) (int, error) {
	pages, err := f.lookup(path)
	return len(pages), err
}

func (f fakePDFs) PageSizes(path string, limit int) ([]pdfconv.PageSize, error) {
	pages, err := f.lookup(path)
	if err != nil {
		return nil, err
	}
	var out []pdfconv.PageSize
	for i := range pages {
		if i == limit {
			break
		}
		out = append(out, pdfconv.PageSize{Page: i + 1, Width: 612, Height: 792})
	}
	return out, nil
}

type fakeDoc []string

func (d fakeDoc) NumPages() int                     { return len(d) }
func (d fakeDoc) PageText(page int) (string, error) { return d[page-1], nil }
func (d fakeDoc) Info() map[string]string           { return map[string]string{"Title": "Fake"} }
func (d fakeDoc) Encrypted() bool                   { return false }
func (d fakeDoc) Close() error                      { return nil }

type uploadFixture struct {
	svc       *UploadService
	db        *db.SQLiteClient
	objects   *memObjects
	uploadDir string
}

func newUploadFixture(t *testing.T, pdfs fakePDFs) *uploadFixture {
	t.Helper()
	ctx := context.Background()
	client, err := db.NewSQLiteClient(ctx, filepath.Join(t.TempDir(), "db.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })

	store, err := vectorindex.NewLocal(t.TempDir(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	var emb core.EmbeddingProvider = hashEmbedder{}
	ingestor := ingestion_engine.NewDocumentIngestor(client, store, emb, nil,
		ingestion_engine.IngestConfig{TargetTokens: 20}, discardLogger())

	objects := &memObjects{objects: map[string][]byte{}}
	docs := NewDocumentService(client, objects, "docs", discardLogger())
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	extractor := pdfconv.NewExtractor(pdfs, pdfconv.FormatMarkdown)

	svc, err := NewUploadService(extractor, ingestor, vectorindex.NewEmbeddingRetriever(emb, store), docs, uploadDir, 3, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return &uploadFixture{svc: svc, db: client, objects: objects, uploadDir: uploadDir}
}

func fileOf(name, body string) UploadFile {
	return UploadFile{Name: name, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte(body))), nil
	}}
}
