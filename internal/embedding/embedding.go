package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"agriguardian/internal/config"
	"agriguardian/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultBatchSize bounds how many chunks go into one embedding request.
const DefaultBatchSize = 100

// NewEmbedder creates a langchaingo embedder for the configured provider.
func NewEmbedder(ctx context.Context, llmConfig *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Loaded embedder config")

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch llmConfig.Provider {
	case "googleai", "":
		client, err = googleai.New(ctx,
			googleai.WithAPIKey(llmConfig.Key),
			googleai.WithDefaultEmbeddingModel(strings.TrimPrefix(llmConfig.Model, "models/")),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		client, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		client, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", llmConfig.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s embedding client: %w", llmConfig.Provider, err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(DefaultBatchSize))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return NewRetryEmbedder(embedder, 30*time.Second), nil
}

// RetryEmbedder retries failed embedding calls with exponential backoff.
type RetryEmbedder struct {
	inner      embeddings.Embedder
	maxElapsed time.Duration
}

func NewRetryEmbedder(inner embeddings.Embedder, maxElapsed time.Duration) *RetryEmbedder {
	return &RetryEmbedder{inner: inner, maxElapsed: maxElapsed}
}

func (r *RetryEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.retry(ctx, func() error {
		var err error
		vectors, err = r.inner.EmbedDocuments(ctx, texts)
		return err
	})
	return vectors, err
}

func (r *RetryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := r.retry(ctx, func() error {
		var err error
		vector, err = r.inner.EmbedQuery(ctx, text)
		return err
	})
	return vector, err
}

func (r *RetryEmbedder) retry(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = r.maxElapsed

	return backoff.Retry(func() error {
		err := operation()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

// EmbeddingFunc adapts an embedder to the single-text function shape vector stores expect.
func EmbeddingFunc(e embeddings.Embedder) func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedQuery(ctx, text)
	}
}

// GenerateEmbedding embeds chunks in batches, returning one vector per chunk in order.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += DefaultBatchSize {
		end := min(start+DefaultBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Content)
		}

		batch, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(batch))
		}
		vectors = append(vectors, batch...)
		log.Debug().Int("done", end).Int("total", len(chunks)).Msg("Embedded chunk batch")
	}
	return vectors, nil
}
