package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"agriguardian/internal/models"
)

type fakeStore struct {
	hits  []models.SearchResult
	err   error
	lastK int
}

func (f *fakeStore) Search(_ context.Context, _ string, k int) ([]models.SearchResult, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[:min(k, len(f.hits))], nil
}

func (f *fakeStore) Count(context.Context) (int, error) { return len(f.hits), nil }

type echoModel struct {
	messages []llms.MessageContent
}

func (m *echoModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "rotate crops"}}}, nil
}

func (m *echoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestBuildContext_Empty(t *testing.T) {
	assert.Equal(t, "No relevant information found in the vector database.", BuildContext(nil))
}

func TestBuildContext_Blocks(t *testing.T) {
	hits := []Hit{
		{Content: "Early blight", Metadata: map[string]string{"crop": "Potato"}},
		{Content: "Late blight", Metadata: map[string]string{"crop": "Tomato"}},
	}
	want := "Content: Early blight\nSources: {\n  \"crop\": \"Potato\"\n}" +
		"\n\n" +
		"Content: Late blight\nSources: {\n  \"crop\": \"Tomato\"\n}"
	assert.Equal(t, want, BuildContext(hits))
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "Early blight needs copper spray", StripMarkup("**Early blight** needs <b>copper</b> spray"))
	assert.Equal(t, "Wheat & barley", StripMarkup("Wheat & barley"))
	assert.Equal(t, "", StripMarkup("   "))
}

func TestRetriever_DefaultK(t *testing.T) {
	store := &fakeStore{hits: make([]models.SearchResult, 20)}
	r := NewRetriever(store, 0)

	hits, err := r.Search(context.Background(), "blight", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 10)
	assert.Equal(t, 10, store.lastK)

	hits, err = r.Search(context.Background(), "blight", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}

func TestRetriever_PropagatesErrors(t *testing.T) {
	r := NewRetriever(&fakeStore{err: errors.New("index closed")}, 10)
	_, err := r.Search(context.Background(), "blight", 3)
	assert.EqualError(t, err, "index closed")
}

func TestAnswer(t *testing.T) {
	store := &fakeStore{hits: []models.SearchResult{{Content: "Rotate potatoes yearly", Metadata: map[string]string{"crop": "Potato"}}}}
	model := &echoModel{}

	answer, err := NewRetriever(store, 5).Answer(context.Background(), model, 0.3, "how to stop blight")
	require.NoError(t, err)
	assert.Equal(t, "rotate crops", answer)

	require.Len(t, model.messages, 2)
	human := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "Content: Rotate potatoes yearly")
	assert.Contains(t, human, "Query: how to stop blight")
}
