package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/markdave123-py/docchat/internal/models"
)

// embedAndPersist consumes chunks, embeds them in batches and upserts them
// into the vector store. It returns the number of chunks stored.
func (i *DocumentIngestor) embedAndPersist(
	ctx context.Context,
	doc *models.Document,
	in <-chan chunk,
	batchSize int,
) (int, error) {
	batch := make([]chunk, 0, batchSize)
	stored := 0

	flush := func(items []chunk) error {
		if len(items) == 0 {
			return nil
		}

		texts := make([]string, len(items))
		for idx := range items {
			texts[idx] = items[idx].Text
		}

		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(items) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(items))
		}

		now := time.Now().UTC()
		rows := make([]models.DocumentChunk, len(items))
		for k := range items {
			rows[k] = models.DocumentChunk{
				ID:         chunkID(doc.ID, items[k].Pos),
				DocumentID: doc.ID,
				Source:     doc.FileName,
				Text:       items[k].Text,
				Embedding:  vecs[k],
				Position:   items[k].Pos,
				TokenCount: items[k].TokenCnt,
				CreatedAt:  now,
			}
		}
		if err := i.store.Upsert(ctx, rows); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
		stored += len(rows)
		return nil
	}

	for c := range in {
		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return stored, err
			}
			batch = batch[:0]
		}
	}
	if err := flush(batch); err != nil {
		return stored, err
	}
	return stored, nil
}
