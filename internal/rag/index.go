package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"agriguardian/internal/chromemdb"
	"agriguardian/internal/config"
	"agriguardian/internal/db"
	"agriguardian/internal/embedding"
	"agriguardian/internal/models"
)

// Index is a writable vector store. Reset empties it.
type Index interface {
	Store
	AddChunks(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Reset(ctx context.Context) error
	Close() error
}

// OpenIndex opens the configured vector store: chromem (default) through the
// reopen, recreate, in-memory cascade, or pgvector.
func OpenIndex(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder) (Index, error) {
	embed := embedding.EmbeddingFunc(embedder)

	switch cfg.VectorDB.Store {
	case "chromem", "":
		index, err := chromemdb.OpenWithFallback(cfg.VectorDB.Path, cfg.VectorDB.CollectionName, cfg.VectorDB.EncryptionKey, embed)
		if err != nil {
			return nil, err
		}
		if index.InMemory() {
			log.Warn().Msg("Vector index is transient, documents will not survive a restart")
		}
		return index, nil
	case "pgvector":
		store, err := db.NewStore(&cfg.Database, embed)
		if err != nil {
			return nil, err
		}
		if err := store.InitDB(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("init pgvector store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.VectorDB.Store)
	}
}
