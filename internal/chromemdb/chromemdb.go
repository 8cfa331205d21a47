package chromemdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"agriguardian/internal/models"
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	embed         chromem.EmbeddingFunc
	dbPath        string
	compress      bool
	inMemory      bool
	encryptionKey string
	filePath      string
}

const (
	compress = false
)

// swapped in tests
var newPersistentDB = chromem.NewPersistentDB

// NewVectorDBManager opens (or creates) a database and the named collection.
func NewVectorDBManager(dbPath, collectionName string, inMemory bool, encryptionKey string, embed chromem.EmbeddingFunc) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(dbPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
		db, err = newPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		embed:         embed,
		dbPath:        dbPath,
		compress:      compress,
		inMemory:      inMemory,
		encryptionKey: encryptionKey,
		filePath:      filepath.Join(dbPath, collectionName+".chromem"),
	}
	if _, err := m.GetOrCreateCollection(collectionName); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenWithFallback opens the persisted index at dbPath. When that fails the directory is
// wiped and recreated, and as a last resort a transient in-memory index is returned.
func OpenWithFallback(dbPath, collectionName, encryptionKey string, embed chromem.EmbeddingFunc) (*VectorDBManager, error) {
	m, err := NewVectorDBManager(dbPath, collectionName, false, encryptionKey, embed)
	if err == nil {
		return m, nil
	}
	log.Error().Err(err).Str("path", dbPath).Msg("Error initializing vector store")

	if rmErr := os.RemoveAll(dbPath); rmErr != nil {
		log.Error().Err(rmErr).Str("path", dbPath).Msg("Failed to remove vector store dir")
	} else {
		m, err = NewVectorDBManager(dbPath, collectionName, false, encryptionKey, embed)
		if err == nil {
			log.Warn().Str("path", dbPath).Msg("Recreated empty vector store")
			return m, nil
		}
		log.Error().Err(err).Str("path", dbPath).Msg("Failed to create new vector store")
	}

	log.Warn().Msg("Falling back to in-memory vector store")
	return NewVectorDBManager(dbPath, collectionName, true, encryptionKey, embed)
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, m.embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

// AddChunks stores chunks with their precomputed embeddings under fresh ids.
func (m *VectorDBManager) AddChunks(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, chromem.Document{
			ID:        uuid.NewString(),
			Content:   chunk.Content,
			Metadata:  chunk.Metadata,
			Embedding: vectors[i],
		})
	}
	return m.CreateDocs(ctx, docs)
}

// Search returns up to k documents nearest to query, most similar first.
func (m *VectorDBManager) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query must be provided")
	}
	n := min(k, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		hits = append(hits, models.SearchResult{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

func (m *VectorDBManager) Count(_ context.Context) (int, error) {
	return m.collection.Count(), nil
}

// InMemory reports whether the index is transient.
func (m *VectorDBManager) InMemory() bool {
	return m.inMemory
}

func (m *VectorDBManager) Close() error {
	return nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	err := m.db.DeleteCollection(m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Reset drops the collection and recreates it empty.
func (m *VectorDBManager) Reset(_ context.Context) error {
	name := m.collection.Name
	if err := m.DeleteCollection(); err != nil {
		return err
	}
	_, err := m.GetOrCreateCollection(name)
	return err
}

// export to file
func (m *VectorDBManager) Export(filePath string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if filePath == "" {
		filePath = m.filePath
	}

	log.Debug().Str("collection", m.collection.Name).Str("file", filePath).Bool("compress", m.compress).Msg("Exporting collection")
	err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// import from file
func (m *VectorDBManager) Import(filePath string) error {
	if filePath == "" {
		filePath = m.filePath
	}
	err := m.db.ImportFromFile(filePath, m.encryptionKey, m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	// the import replaces the collection object
	if _, err := m.GetOrCreateCollection(m.collection.Name); err != nil {
		return err
	}
	return nil
}
