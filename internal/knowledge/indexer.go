package knowledge

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/railsense/railsense/internal/embedcache"
	"github.com/railsense/railsense/internal/model"
)

type ChunkStore interface {
	ReplaceSource(ctx context.Context, source string, chunks []model.DocChunk) error
	CountBySource(ctx context.Context, source string) (int, error)
}

type Indexer struct {
	embedder   embedcache.Embedder
	embedModel string
	embedDim   int
	store      ChunkStore
}

// NewIndexer builds an indexer. embedDim is the width of the doc_chunks
// embedding column; vectors of any other width are rejected before they
// reach the store. Zero disables the check.
func NewIndexer(embedder embedcache.Embedder, embedModel string, embedDim int, store ChunkStore) *Indexer {
	return &Indexer{embedder: embedder, embedModel: embedModel, embedDim: embedDim, store: store}
}

// IndexFile extracts, chunks, embeds, and stores one document. The source
// key is the file's base name; indexing the same file again replaces its
// previous chunks wholesale, so the operation is idempotent.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("path", path))
	pages, err := Extract(path)
	if err != nil {
		return 0, err
	}
	chunks := Chunk(pages)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %s produced no chunks", path)
	}
	logger.Info("document chunked", zap.Int("pages", len(pages)), zap.Int("chunks", len(chunks)))

	for i := range chunks {
		vec, err := ix.embedder.Embed(ctx, ix.embedModel, chunks[i].Content)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if ix.embedDim > 0 && len(vec) != ix.embedDim {
			return 0, fmt.Errorf("model %s returned a %d-dim embedding, column expects %d",
				ix.embedModel, len(vec), ix.embedDim)
		}
		chunks[i].Embedding = vec
	}

	source := filepath.Base(path)
	if err := ix.store.ReplaceSource(ctx, source, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	logger.Info("document indexed", zap.String("source", source), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}
