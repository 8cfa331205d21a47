package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"agriguardian/internal/config"
	"agriguardian/internal/lookup"
	"agriguardian/internal/models"
	"agriguardian/internal/rag"
)

type stubStore struct{}

func (stubStore) Search(_ context.Context, _ string, k int) ([]models.SearchResult, error) {
	hits := []models.SearchResult{{Content: "**Copper** sprays slow blight"}, {Content: "Remove infected leaves"}}
	return hits[:min(k, len(hits))], nil
}

func (stubStore) Count(context.Context) (int, error) { return 2, nil }

func TestCleanVideoQuery(t *testing.T) {
	assert.Equal(t, "potato late blight treatment", CleanVideoQuery(" potato late blight treatment , organic, 2024"))
	assert.Equal(t, "no comma", CleanVideoQuery("no comma"))
}

func TestRetrieverTool(t *testing.T) {
	tool := NewRetrieverTool(rag.NewRetriever(stubStore{}, 10))
	assert.Equal(t, AgricultureSearch, tool.Name())

	out, err := tool.Call(context.Background(), "blight")
	require.NoError(t, err)
	assert.Equal(t, "Copper sprays slow blight\n\nRemove infected leaves", out)
}

func TestYouTubeTool(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "2", r.URL.Query().Get("maxResults"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{
			{"id": map[string]string{"kind": "youtube#video", "videoId": "abc123"}},
			{"id": map[string]string{"kind": "youtube#video", "videoId": "def456"}},
		}})
	}))
	defer srv.Close()

	yt, err := NewYouTube(context.Background(), "test-key", option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	out, err := NewYouTubeTool(yt).Call(context.Background(), "early blight tomato, fungicide dose")
	require.NoError(t, err)
	assert.Equal(t, "early blight tomato", gotQuery)
	assert.JSONEq(t, `["https://www.youtube.com/watch?v=abc123","https://www.youtube.com/watch?v=def456"]`, out)
}

func TestYouTubeTool_Unconfigured(t *testing.T) {
	out, err := NewYouTubeTool(nil).Call(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "YouTube search is not configured.", out)
}

func TestDefault_ToolNames(t *testing.T) {
	svc := lookup.NewService(&config.LookupConfig{}, nil)
	search := NewFunc("ddg", "", func(context.Context, string) (string, error) { return "results", nil })

	set := Default(rag.NewRetriever(stubStore{}, 10), search, nil, svc)
	names := make([]string, 0, len(set))
	for _, tool := range set {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{AgricultureSearch, SearchInternet, YouTubeSearch, SoilType, Weather}, names)

	out, err := set[1].Call(context.Background(), "wheat prices")
	require.NoError(t, err)
	assert.Equal(t, "results", out)

	assert.Len(t, Default(rag.NewRetriever(stubStore{}, 10), nil, nil, svc), 4)
}
