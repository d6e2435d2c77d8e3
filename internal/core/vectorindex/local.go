// Package vectorindex holds the retrieval backends behind the chat service.
package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// IndexFileName is the file written under the index directory.
const IndexFileName = "index.json"

// Local is a brute-force cosine index kept in memory and persisted as JSON.
type Local struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	built  bool
	chunks []models.DocumentChunk
	norms  []float64
}

var _ core.VectorStore = (*Local)(nil)

// NewLocal opens the index stored in dir. A directory without an index file
// yields an unbuilt index whose searches fail with core.ErrIndexNotFound.
func NewLocal(dir string, logger *slog.Logger) (*Local, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Local{path: filepath.Join(dir, IndexFileName), logger: logger}

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var chunks []models.DocumentChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", l.path, err)
	}
	l.chunks = chunks
	l.norms = make([]float64, len(chunks))
	for i := range chunks {
		l.norms[i] = norm(chunks[i].Embedding)
	}
	l.built = true
	logger.Info("loaded vector index", "path", l.path, "chunks", len(chunks))
	return l, nil
}

// Upsert replaces chunks with matching ids, appends the rest and persists.
func (l *Local) Upsert(ctx context.Context, chunks []models.DocumentChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	// The whole batch is checked before the index changes.
	dim := -1
	if len(l.chunks) > 0 {
		dim = len(l.chunks[0].Embedding)
	}
	for _, c := range chunks {
		if dim < 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("vector dimension mismatch: chunk %s got %d want %d", c.ID, len(c.Embedding), dim)
		}
	}

	pos := make(map[string]int, len(l.chunks))
	for i, c := range l.chunks {
		pos[c.ID] = i
	}
	for _, c := range chunks {
		if i, ok := pos[c.ID]; ok && c.ID != "" {
			l.chunks[i] = c
			l.norms[i] = norm(c.Embedding)
			continue
		}
		pos[c.ID] = len(l.chunks)
		l.chunks = append(l.chunks, c)
		l.norms = append(l.norms, norm(c.Embedding))
	}
	l.built = true
	return l.persist()
}

// Search ranks every chunk by cosine similarity to query.
func (l *Local) Search(ctx context.Context, query []float32, k int) ([]models.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.built {
		return nil, core.ErrIndexNotFound
	}
	if k <= 0 {
		k = 5
	}

	qn := norm(query)
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(l.chunks))
	for i := range l.chunks {
		scores[i] = scored{idx: i, score: cosine(l.chunks[i].Embedding, query, l.norms[i], qn)}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })
	if k > len(scores) {
		k = len(scores)
	}

	out := make([]models.Passage, 0, k)
	for _, s := range scores[:k] {
		c := l.chunks[s.idx]
		out = append(out, models.Passage{DocumentID: c.DocumentID, Source: c.Source, Text: c.Text, Score: s.score})
	}
	return out, nil
}

func (l *Local) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	keptChunks := l.chunks[:0]
	keptNorms := l.norms[:0]
	removed := 0
	for i, c := range l.chunks {
		if c.DocumentID == documentID {
			removed++
			continue
		}
		keptChunks = append(keptChunks, c)
		keptNorms = append(keptNorms, l.norms[i])
	}
	l.chunks, l.norms = keptChunks, keptNorms
	if removed == 0 {
		return 0, nil
	}
	return removed, l.persist()
}

func (l *Local) Stats(ctx context.Context) (*core.IndexStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	docs := make(map[string]struct{})
	for _, c := range l.chunks {
		docs[c.DocumentID] = struct{}{}
	}
	return &core.IndexStats{
		Backend:   config.BackendLocal,
		Documents: len(docs),
		Chunks:    len(l.chunks),
		Extra:     map[string]any{"path": l.path, "built": l.built},
	}, nil
}

// persist must be called with l.mu held.
func (l *Local) persist() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	data, err := json.Marshal(l.chunks)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
