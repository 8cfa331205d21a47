package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"agriguardian/internal/config"
	"agriguardian/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string            `bun:"id,pk"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector   `bun:"embedding,notnull,type:vector"`
	Similarity    float32           `bun:"similarity,scanonly"`
}

// Store is a pgvector backed index of chunks.
type Store struct {
	db         *bun.DB
	embed      func(ctx context.Context, text string) ([]float32, error)
	vectorSize int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver, pgdriver or pq.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	dsn := cfg.URL
	if !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=disable"
	}

	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", dsn)
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// NewStore connects and returns a store; InitDB must run before first use.
func NewStore(cfg *config.DatabaseConfig, embed func(ctx context.Context, text string) ([]float32, error)) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: NewDB(sqldb, cfg.Debug), embed: embed, vectorSize: cfg.VectorSize}, nil
}

func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enable vector extension: %w", err)
	}
	_, err := s.db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (s *Store) AddChunks(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]Document, 0, len(chunks))
	for i, chunk := range chunks {
		if s.vectorSize > 0 && len(vectors[i]) != s.vectorSize {
			return fmt.Errorf("chunk %d dimension mismatch (got %d want %d)", i, len(vectors[i]), s.vectorSize)
		}
		docs = append(docs, Document{
			ID:        uuid.NewString(),
			Content:   chunk.Content,
			Metadata:  chunk.Metadata,
			Embedding: pgvector.NewVector(vectors[i]),
		})
	}

	_, err := s.db.NewInsert().Model(&docs).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}
	log.Debug().Int("count", len(docs)).Msg("Stored documents")
	return nil
}

// Search orders by cosine distance and reports 1 - distance as similarity.
func (s *Store) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query must be provided")
	}
	if k <= 0 {
		return nil, nil
	}
	embedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec := pgvector.NewVector(embedding)

	var docs []Document
	err = s.db.NewSelect().
		Model(&docs).
		Column("id", "content", "metadata").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec).
		OrderExpr("embedding <=> ?", vec).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	hits := make([]models.SearchResult, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, models.SearchResult{
			ID:         d.ID,
			Content:    d.Content,
			Metadata:   d.Metadata,
			Similarity: d.Similarity,
		})
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).Count(ctx)
}

// drop table documents
func (s *Store) DropDocuments(ctx context.Context) error {
	_, err := s.db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

// Reset drops and recreates the documents table.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.DropDocuments(ctx); err != nil {
		return fmt.Errorf("drop documents table: %w", err)
	}
	return s.InitDB(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
