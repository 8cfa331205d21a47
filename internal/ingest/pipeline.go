package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"agriguardian/internal/embedding"
	"agriguardian/internal/models"
)

// Extractor turns one file into chunks carrying meta.
type Extractor interface {
	ParseFile(filePath string, meta map[string]string) ([]models.Chunk, error)
}

// Index receives the embedded chunks; chromemdb and db stores satisfy it.
type Index interface {
	Count(ctx context.Context) (int, error)
	AddChunks(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
}

type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type Result struct {
	Processed []string  `json:"processed"`
	Skipped   []string  `json:"skipped"`
	Failed    []Failure `json:"failed"`
	// NewChunks counts chunks produced in this run, TotalChunks the whole checkpoint.
	NewChunks     int `json:"new_chunks"`
	TotalChunks   int `json:"total_chunks"`
	IndexedChunks int `json:"indexed_chunks"`
}

type Pipeline struct {
	root       string
	checkpoint *Checkpoint
	extractor  Extractor
	embedder   embeddings.Embedder
	index      Index
}

func NewPipeline(root string, checkpoint *Checkpoint, extractor Extractor, embedder embeddings.Embedder, index Index) *Pipeline {
	return &Pipeline{
		root:       root,
		checkpoint: checkpoint,
		extractor:  extractor,
		embedder:   embedder,
		index:      index,
	}
}

// Run processes every unregistered file, saving the checkpoint after each one,
// then indexes once. Chunks are indexed from the persisted marker onward, so a
// failed indexing step is retried by the next run. An empty index receives every
// checkpointed chunk.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	jobs, err := Walk(p.root)
	if err != nil {
		return nil, err
	}
	log.Info().Int("candidates", len(jobs)).Str("root", p.root).Msg("Starting document processing")

	res := &Result{}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if p.checkpoint.Processed(job.Path) {
			res.Skipped = append(res.Skipped, job.Path)
			continue
		}

		log.Info().Str("file", job.Path).Msg("Processing")
		chunks, err := p.extractor.ParseFile(job.Path, job.Meta)
		if err != nil {
			log.Error().Err(err).Str("file", job.Path).Msg("Error processing file")
			res.Failed = append(res.Failed, Failure{Path: job.Path, Reason: err.Error()})
			continue
		}

		p.checkpoint.Add(job.Path, chunks)
		if err := p.checkpoint.Save(); err != nil {
			return res, fmt.Errorf("save checkpoint: %w", err)
		}
		res.NewChunks += len(chunks)
		res.Processed = append(res.Processed, job.Path)
	}
	res.TotalChunks = len(p.checkpoint.Chunks)

	existing, err := p.index.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("count index: %w", err)
	}
	if existing == 0 && p.checkpoint.Indexed > 0 {
		log.Warn().Int("chunks", p.checkpoint.Indexed).Msg("Vector index is empty, rebuilding from checkpoint")
		p.checkpoint.Indexed = 0
	}
	pending := p.checkpoint.Pending()
	if len(pending) == 0 {
		log.Info().Int("indexed", existing).Msg("No new chunks to index")
		return res, nil
	}

	log.Info().Int("chunks", len(pending)).Msg("Creating vector index entries")
	vectors, err := embedding.GenerateEmbedding(ctx, p.embedder, pending)
	if err != nil {
		return res, fmt.Errorf("embed chunks: %w", err)
	}
	if err := p.index.AddChunks(ctx, pending, vectors); err != nil {
		return res, fmt.Errorf("index chunks: %w", err)
	}
	if err := p.checkpoint.MarkIndexed(); err != nil {
		return res, fmt.Errorf("save index marker: %w", err)
	}
	res.IndexedChunks = len(pending)
	return res, nil
}
