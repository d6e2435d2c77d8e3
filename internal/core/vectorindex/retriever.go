package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// EmbeddingRetriever embeds the query and searches a VectorStore with it.
type EmbeddingRetriever struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
}

var _ core.Retriever = (*EmbeddingRetriever)(nil)

func NewEmbeddingRetriever(embedder core.EmbeddingProvider, store core.VectorStore) *EmbeddingRetriever {
	return &EmbeddingRetriever{embedder: embedder, store: store}
}

func (r *EmbeddingRetriever) Retrieve(ctx context.Context, query string, k int) ([]models.Passage, error) {
	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, errors.New("embed query: provider returned no vector")
	}
	return r.store.Search(ctx, vecs[0], k)
}
