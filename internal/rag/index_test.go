package rag

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agriguardian/internal/config"
	"agriguardian/internal/models"
)

// cropEmbedder places texts by which crop they mention.
type cropEmbedder struct{}

func (cropEmbedder) vector(text string) []float32 {
	text = strings.ToLower(text)
	v := []float32{0.01, 0.01, 0.01}
	for i, word := range []string{"potato", "tomato", "wheat"} {
		if strings.Contains(text, word) {
			v[i] = 1
		}
	}
	return v
}

func (e cropEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e cropEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func TestOpenIndex_Chromem(t *testing.T) {
	cfg := &config.Config{VectorDB: config.VectorDBConfig{
		Store:          "chromem",
		Path:           filepath.Join(t.TempDir(), "vector_db"),
		CollectionName: "agriculture",
	}}
	ctx := context.Background()

	index, err := OpenIndex(ctx, cfg, cropEmbedder{})
	require.NoError(t, err)
	defer index.Close()

	chunks := []models.Chunk{
		{Content: "Potato early blight", Metadata: map[string]string{"crop": "Potato"}},
		{Content: "Wheat rust", Metadata: map[string]string{"crop": "Wheat"}},
	}
	vectors, err := cropEmbedder{}.EmbedDocuments(ctx, []string{chunks[0].Content, chunks[1].Content})
	require.NoError(t, err)
	require.NoError(t, index.AddChunks(ctx, chunks, vectors))

	hits, err := NewRetriever(index, 10).Search(ctx, "early blight treatment in potatoes", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Potato", hits[0].Metadata["crop"])

	require.NoError(t, index.Reset(ctx))
	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpenIndex_UnknownStore(t *testing.T) {
	_, err := OpenIndex(context.Background(), &config.Config{VectorDB: config.VectorDBConfig{Store: "faiss"}}, cropEmbedder{})
	assert.Error(t, err)
}
