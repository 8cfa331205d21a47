package chromemdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agriguardian/internal/models"
)

var vocabulary = []string{"blight", "potato", "rice", "price"}

// keywordEmbedding counts vocabulary words, plus a constant bias so no vector is zero.
func keywordEmbedding(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := make([]float32, len(vocabulary)+1)
	for i, w := range vocabulary {
		vec[i] = float32(strings.Count(text, w))
	}
	vec[len(vocabulary)] = 0.1
	return vec, nil
}

func seed(t *testing.T, m *VectorDBManager, texts ...string) {
	t.Helper()
	chunks := make([]models.Chunk, 0, len(texts))
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		chunks = append(chunks, models.Chunk{Content: text, Metadata: map[string]string{models.MetaCrop: "Potato"}})
		v, _ := keywordEmbedding(context.Background(), text)
		vectors = append(vectors, v)
	}
	require.NoError(t, m.AddChunks(context.Background(), chunks, vectors))
}

func TestSearch_NearestFirst(t *testing.T) {
	m, err := NewVectorDBManager("", "agriculture", true, "", keywordEmbedding)
	require.NoError(t, err)
	seed(t, m, "potato blight spreads fast", "rice price rose this week", "rice paddies need water")

	hits, err := m.Search(context.Background(), "blight on potato", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "potato blight spreads fast", hits[0].Content)
	assert.Equal(t, "Potato", hits[0].Metadata[models.MetaCrop])
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
}

func TestSearch_ClampsToCollectionSize(t *testing.T) {
	m, err := NewVectorDBManager("", "agriculture", true, "", keywordEmbedding)
	require.NoError(t, err)
	seed(t, m, "potato blight", "rice price")

	hits, err := m.Search(context.Background(), "potato", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	count, err := m.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSearch_EmptyCollection(t *testing.T) {
	m, err := NewVectorDBManager("", "agriculture", true, "", keywordEmbedding)
	require.NoError(t, err)

	hits, err := m.Search(context.Background(), "potato", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = m.Search(context.Background(), "", 5)
	assert.Error(t, err)
}

func TestAddChunks_LengthMismatch(t *testing.T) {
	m, err := NewVectorDBManager("", "agriculture", true, "", keywordEmbedding)
	require.NoError(t, err)
	err = m.AddChunks(context.Background(), []models.Chunk{{Content: "a"}}, nil)
	assert.Error(t, err)
}

func TestOpenWithFallback_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vector_db")
	m, err := OpenWithFallback(dir, "agriculture", "", keywordEmbedding)
	require.NoError(t, err)
	assert.False(t, m.InMemory())
	seed(t, m, "potato blight")

	reopened, err := OpenWithFallback(dir, "agriculture", "", keywordEmbedding)
	require.NoError(t, err)
	count, _ := reopened.Count(context.Background())
	assert.Equal(t, 1, count)
}

func TestOpenWithFallback_RecreatesUnusablePath(t *testing.T) {
	// a plain file where the directory should be
	path := filepath.Join(t.TempDir(), "vector_db")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	m, err := OpenWithFallback(path, "agriculture", "", keywordEmbedding)
	require.NoError(t, err)
	assert.False(t, m.InMemory())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenWithFallback_InMemoryLastResort(t *testing.T) {
	orig := newPersistentDB
	newPersistentDB = func(string, bool) (*chromem.DB, error) { return nil, errors.New("disk on fire") }
	t.Cleanup(func() { newPersistentDB = orig })

	m, err := OpenWithFallback(filepath.Join(t.TempDir(), "vector_db"), "agriculture", "", keywordEmbedding)
	require.NoError(t, err)
	assert.True(t, m.InMemory())

	seed(t, m, "rice price")
	hits, err := m.Search(context.Background(), "price", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	key := "0123456789abcdef0123456789abcdef"

	src, err := NewVectorDBManager(dir, "agriculture", true, key, keywordEmbedding)
	require.NoError(t, err)
	seed(t, src, "potato blight", "rice price")
	file := filepath.Join(dir, "export.gob.enc")
	require.NoError(t, src.Export(file))

	dst, err := NewVectorDBManager(dir, "agriculture", true, key, keywordEmbedding)
	require.NoError(t, err)
	require.NoError(t, dst.Import(file))
	count, _ := dst.Count(context.Background())
	assert.Equal(t, 2, count)
}

func TestExport_RequiresKey(t *testing.T) {
	m, err := NewVectorDBManager("", "agriculture", true, "", keywordEmbedding)
	require.NoError(t, err)
	assert.Error(t, m.Export(filepath.Join(t.TempDir(), "x")))
}

func TestReset_EmptiesCollection(t *testing.T) {
	m, err := NewVectorDBManager(filepath.Join(t.TempDir(), "vector_db"), "agriculture", false, "", keywordEmbedding)
	require.NoError(t, err)
	seed(t, m, "potato blight", "rice price")

	require.NoError(t, m.Reset(context.Background()))
	count, err := m.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	seed(t, m, "potato blight")
	hits, err := m.Search(context.Background(), "potato", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
