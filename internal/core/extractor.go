package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DocumentExtractor defines the interface for extracting text from various document types.
type DocumentExtractor interface {
	// ExtractText reads the file at path and streams non-empty text fragments.
	// The producing goroutine runs in g so a failure cancels the pipeline.
	ExtractText(ctx context.Context, g *errgroup.Group, path string) (<-chan string, error)
}
